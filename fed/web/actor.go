package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/tailfeather/fedd/internal/httpx"
	"github.com/tailfeather/fedd/internal/to"
	"github.com/tailfeather/fedd/models"
)

// ActorShow serves a local actor's document. The publicKeyPem it
// carries is what remote servers verify our signatures against, so
// every provisioned actor must be reachable here.
func ActorShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	actor, err := models.NewActors(env.DB).FindLocal(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httpx.Error(http.StatusNotFound, err)
		}
		return err
	}

	return to.ActivityJSON(w, map[string]any{
		"@context": []any{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		"id":                actor.URI,
		"type":              "Person",
		"preferredUsername": actor.Name,
		"name":              actor.DisplayName,
		"summary":           actor.Note,
		"inbox":             actor.Inbox(),
		"followers":         actor.FollowersURI(),
		"following":         actor.FollowingURI(),
		"endpoints": map[string]any{
			"sharedInbox": "https://" + actor.Domain + "/inbox",
		},
		"publicKey": map[string]any{
			"id":           actor.PublicKeyID(),
			"owner":        actor.URI,
			"publicKeyPem": string(actor.PublicKey),
		},
	})
}
