package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-fed/httpsig"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"

	"github.com/tailfeather/fedd/fed"
	"github.com/tailfeather/fedd/fed/activities"
	"github.com/tailfeather/fedd/internal/httpx"
	"github.com/tailfeather/fedd/models"
)

const maxActivitySize = 1 << 20

// InboxCreate accepts a signed activity POSTed to a per-actor inbox or
// the shared inbox. Follow and Undo are handled; anything else is
// acknowledged and dropped.
func InboxCreate(env *Env, w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxActivitySize))
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sender, err := verifySender(env, r)
	if err != nil {
		return httpx.Error(http.StatusUnauthorized, err)
	}

	var activity struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object any    `json:"object"`
	}
	if err := json.Unmarshal(body, &activity); err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	if activity.Actor != sender.URI {
		return httpx.Error(http.StatusUnauthorized, errors.New("activity actor does not match signature"))
	}

	switch activity.Type {
	case activities.FOLLOW:
		return inboxFollow(env, w, r, sender, activity.ID, stringFromAny(activity.Object))
	case activities.UNDO:
		obj, _ := activity.Object.(map[string]any)
		if stringFromAny(obj["type"]) == activities.FOLLOW {
			return inboxUnfollow(env, w, sender, stringFromAny(obj["object"]))
		}
	}
	// not ours to handle, but receipt is acknowledged.
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func inboxFollow(env *Env, w http.ResponseWriter, r *http.Request, sender *fed.RemoteActor, followID, target string) error {
	account, err := localAccountForURI(env, target)
	if err != nil {
		return httpx.Error(http.StatusNotFound, err)
	}
	if err := models.NewRelationships(env.DB).Follow(account.Actor, sender.URI); err != nil {
		return err
	}

	accept := activities.Accept(
		"https://"+env.Domain+"/"+uuid.New().String(),
		account.Actor.URI,
		map[string]any{
			"id":     followID,
			"type":   activities.FOLLOW,
			"actor":  sender.URI,
			"object": account.Actor.URI,
		},
	)
	if err := env.Fed.SendActivity(r.Context(), account, fed.To(sender.URI), accept); err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

func inboxUnfollow(env *Env, w http.ResponseWriter, sender *fed.RemoteActor, target string) error {
	account, err := localAccountForURI(env, target)
	if err != nil {
		return httpx.Error(http.StatusNotFound, err)
	}
	if err := models.NewRelationships(env.DB).Unfollow(account.Actor, sender.URI); err != nil {
		return err
	}
	w.WriteHeader(http.StatusAccepted)
	return nil
}

// verifySender verifies the request signature and returns the actor it
// was signed by. A verification failure invalidates the cached actor
// document and retries once against a fresh fetch, in case the key was
// rotated.
func verifySender(env *Env, r *http.Request) (*fed.RemoteActor, error) {
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return nil, err
	}
	actorURI := trimKeyID(verifier.KeyId())

	client := fed.AnonymousClient()
	sender, err := env.Fed.Resolver.Resolve(r.Context(), client, actorURI)
	if err != nil {
		return nil, err
	}
	pubKey, err := sender.PublicKey()
	if err != nil {
		return nil, err
	}
	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err == nil {
		return sender, nil
	}

	// the cached document may carry a superseded key.
	env.Fed.Resolver.Invalidate(sender.URI)
	sender, rerr := env.Fed.Resolver.Resolve(r.Context(), client, actorURI)
	if rerr != nil {
		return nil, rerr
	}
	pubKey, err = sender.PublicKey()
	if err != nil {
		return nil, err
	}
	if err := verifier.Verify(pubKey, httpsig.RSA_SHA256); err != nil {
		return nil, err
	}
	return sender, nil
}

func localAccountForURI(env *Env, uri string) (*models.Account, error) {
	actor, err := models.NewActors(env.DB).FindByURI(uri)
	if err != nil {
		return nil, fmt.Errorf("no local actor %s: %w", uri, err)
	}
	return models.NewAccounts(env.DB).AccountForActor(actor)
}

// trimKeyID removes the #main-key suffix from the key id.
func trimKeyID(id string) string {
	if i := strings.Index(id, "#"); i != -1 {
		return id[:i]
	}
	return id
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}
