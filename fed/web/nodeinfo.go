package web

import (
	"fmt"
	"net/http"

	"github.com/tailfeather/fedd/internal/to"
	"github.com/tailfeather/fedd/models"
)

// NodeInfoIndex serves the well-known discovery document pointing at
// the nodeinfo schema we publish.
func NodeInfoIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"links": []any{
			map[string]any{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				"href": fmt.Sprintf("https://%s/nodeinfo/2.0", env.Domain),
			},
		},
	})
}

// NodeInfoShow serves the nodeinfo 2.0 document.
// https://github.com/jhass/nodeinfo/blob/main/schemas/2.0/schema.json
func NodeInfoShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	var users, posts int64
	if err := env.DB.Model(&models.Account{}).Count(&users).Error; err != nil {
		return err
	}
	if err := env.DB.Model(&models.Object{}).Count(&posts).Error; err != nil {
		return err
	}

	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"version": "2.0",
		"software": map[string]any{
			"name":    "fedd",
			"version": "1.0.0",
		},
		"protocols": []any{"activitypub"},
		"services": map[string]any{
			"inbound":  []any{},
			"outbound": []any{},
		},
		"usage": map[string]any{
			"users": map[string]any{
				"total": users,
			},
			"localPosts": posts,
		},
		"openRegistrations": false,
		"metadata":          map[string]any{},
	})
}
