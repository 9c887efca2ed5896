// Package web serves the federation endpoints remote servers need to
// deliver to us and to verify what we deliver to them: actor documents
// with public keys, webfinger, nodeinfo, follower collections, and the
// inboxes.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/tailfeather/fedd/fed"
	"github.com/tailfeather/fedd/internal/httpx"
)

type Env struct {
	DB     *gorm.DB
	Domain string
	Fed    *fed.Context
}

// Router returns the federation routes.
func Router(env *Env) http.Handler {
	envFn := func(r *http.Request) *Env { return env }

	r := chi.NewRouter()
	r.Route("/users/{name}", func(r chi.Router) {
		r.Get("/", httpx.HandlerFunc(envFn, ActorShow))
		r.Get("/followers", httpx.HandlerFunc(envFn, FollowersShow))
		r.Get("/following", httpx.HandlerFunc(envFn, FollowingShow))
		r.Post("/inbox", httpx.HandlerFunc(envFn, InboxCreate))
	})
	r.Post("/inbox", httpx.HandlerFunc(envFn, InboxCreate))
	r.Route("/.well-known", func(r chi.Router) {
		r.Get("/webfinger", httpx.HandlerFunc(envFn, WebfingerShow))
		r.Get("/nodeinfo", httpx.HandlerFunc(envFn, NodeInfoIndex))
	})
	r.Get("/nodeinfo/2.0", httpx.HandlerFunc(envFn, NodeInfoShow))
	return r
}
