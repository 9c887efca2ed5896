package web

import (
	"errors"
	"net/http"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"

	"github.com/tailfeather/fedd/internal/httpx"
	"github.com/tailfeather/fedd/internal/webfinger"
	"github.com/tailfeather/fedd/models"
)

// WebfingerShow maps an acct: resource to the canonical actor URI.
func WebfingerShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	var params struct {
		Resource string `schema:"resource,required"`
	}
	if err := httpx.Params(r, &params); err != nil {
		return err
	}
	acct, err := webfinger.Parse(params.Resource)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}

	actor, err := models.NewActors(env.DB).FindLocal(acct.User)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httpx.Error(http.StatusNotFound, err)
		}
		return err
	}

	w.Header().Set("Content-Type", "application/jrd+json")
	return json.MarshalFull(w, map[string]any{
		"subject": acct.String(),
		"aliases": []string{actor.URI},
		"links": []map[string]any{
			{
				"rel":  "self",
				"type": "application/activity+json",
				"href": actor.URI,
			},
		},
	})
}
