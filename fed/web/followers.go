package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/tailfeather/fedd/internal/httpx"
	"github.com/tailfeather/fedd/internal/to"
	"github.com/tailfeather/fedd/models"
)

func FollowersShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	return collectionShow(env, w, r, "followers")
}

func FollowingShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	return collectionShow(env, w, r, "following")
}

func collectionShow(env *Env, w http.ResponseWriter, r *http.Request, which string) error {
	actor, err := models.NewActors(env.DB).FindLocal(chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httpx.Error(http.StatusNotFound, err)
		}
		return err
	}

	rels := models.NewRelationships(env.DB)
	var members []string
	switch which {
	case "followers":
		members, err = rels.Followers(actor)
	case "following":
		members, err = rels.Following(actor)
	}
	if err != nil {
		return err
	}

	id := fmt.Sprintf("%s/%s", actor.URI, which)
	switch r.URL.Query().Get("page") {
	case "true":
		return to.ActivityJSON(w, map[string]any{
			"@context":     "https://www.w3.org/ns/activitystreams",
			"id":           id + "?page=true",
			"type":         "OrderedCollectionPage",
			"partOf":       id,
			"orderedItems": members,
		})
	default:
		return to.ActivityJSON(w, map[string]any{
			"@context":   "https://www.w3.org/ns/activitystreams",
			"id":         id,
			"type":       "OrderedCollection",
			"totalItems": len(members),
			"first":      id + "?page=true",
		})
	}
}
