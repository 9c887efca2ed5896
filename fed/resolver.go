package fed

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tailfeather/fedd/internal/crypto"
	"github.com/tailfeather/fedd/internal/webfinger"
)

// A RemoteActor is the parsed form of a remote actor document.
// Immutable once fetched; the resolver re-fetches on TTL expiry or
// explicit invalidation.
type RemoteActor struct {
	URI          string
	Type         string
	Name         string
	Inbox        string
	SharedInbox  string
	Followers    string
	Following    string
	PublicKeyID  string
	PublicKeyPem []byte
}

// PreferredInbox returns the shared inbox when the actor's server
// advertises one, otherwise the actor's own inbox.
func (a *RemoteActor) PreferredInbox() string {
	if a.SharedInbox != "" {
		return a.SharedInbox
	}
	return a.Inbox
}

// PublicKey parses the actor's published signing key.
func (a *RemoteActor) PublicKey() (*rsa.PublicKey, error) {
	if len(a.PublicKeyPem) == 0 {
		return nil, errors.New("actor document has no public key")
	}
	return crypto.ParseRSAPublicKey(a.PublicKeyPem)
}

// Resolver resolves actor identifiers to actor documents, caching
// results by canonical URI. Concurrent resolutions of the same URI are
// coalesced into a single fetch.
type Resolver struct {
	// TTL bounds how long a cached document may be served. Entries past
	// TTL are never served stale; the next resolve re-fetches.
	TTL time.Duration

	// FetchAttempts bounds retries of a failed document fetch.
	FetchAttempts int

	mu    sync.Mutex
	cache map[string]resolverEntry
	sf    singleflight.Group
}

type resolverEntry struct {
	actor   *RemoteActor
	fetched time.Time
}

func NewResolver() *Resolver {
	return &Resolver{
		TTL:           time.Hour,
		FetchAttempts: 3,
		cache:         make(map[string]resolverEntry),
	}
}

// Resolve resolves an actor identifier to its actor document. The
// identifier may be a handle (user@host, @user@host) which is first
// discovered via webfinger, or an actor document URI used directly.
// Fetches are performed with the given client.
func (r *Resolver) Resolve(ctx context.Context, client *Client, id string) (*RemoteActor, error) {
	uri := id
	if !strings.HasPrefix(id, "https://") && !strings.HasPrefix(id, "http://") {
		acct, err := webfinger.Parse(id)
		if err != nil {
			return nil, &ValidationError{Reason: err.Error()}
		}
		wf, err := acct.Fetch(ctx)
		if err != nil {
			return nil, &ResolutionError{ID: id, Err: err}
		}
		uri, err = wf.ActivityPub()
		if err != nil {
			return nil, &ResolutionError{ID: id, Err: err}
		}
	}

	if actor, ok := r.cached(uri); ok {
		return actor, nil
	}

	v, err, _ := r.sf.Do(uri, func() (any, error) {
		// a concurrent caller may have populated the cache while we
		// waited our turn.
		if actor, ok := r.cached(uri); ok {
			return actor, nil
		}
		obj, err := r.fetch(ctx, client, uri)
		if err != nil {
			return nil, &ResolutionError{ID: uri, Err: err}
		}
		actor, err := parseActorDocument(uri, obj)
		if err != nil {
			return nil, &ResolutionError{ID: uri, Err: err}
		}
		r.mu.Lock()
		r.cache[uri] = resolverEntry{actor: actor, fetched: time.Now()}
		r.mu.Unlock()
		return actor, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RemoteActor), nil
}

// fetch retrieves the document, retrying transient failures a bounded
// number of times.
func (r *Resolver) fetch(ctx context.Context, client *Client, uri string) (map[string]any, error) {
	attempts := r.FetchAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i) * 250 * time.Millisecond):
			}
		}
		obj, err := client.Get(ctx, uri)
		if err == nil {
			return obj, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// Invalidate drops the cache entry for uri, forcing the next resolve
// to re-fetch. Used when a signature verification failure suggests a
// stale key.
func (r *Resolver) Invalidate(uri string) {
	r.mu.Lock()
	delete(r.cache, uri)
	r.mu.Unlock()
}

func (r *Resolver) cached(uri string) (*RemoteActor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[uri]
	if !ok || time.Since(entry.fetched) >= r.TTL {
		return nil, false
	}
	return entry.actor, true
}

func parseActorDocument(uri string, obj map[string]any) (*RemoteActor, error) {
	actor := &RemoteActor{
		URI:          stringFromAny(obj["id"]),
		Type:         stringFromAny(obj["type"]),
		Name:         stringFromAny(obj["preferredUsername"]),
		Inbox:        stringFromAny(obj["inbox"]),
		SharedInbox:  stringFromAny(mapFromAny(obj["endpoints"])["sharedInbox"]),
		Followers:    stringFromAny(obj["followers"]),
		Following:    stringFromAny(obj["following"]),
		PublicKeyID:  stringFromAny(mapFromAny(obj["publicKey"])["id"]),
		PublicKeyPem: []byte(stringFromAny(mapFromAny(obj["publicKey"])["publicKeyPem"])),
	}
	if actor.URI == "" {
		actor.URI = uri
	}
	if actor.Inbox == "" {
		return nil, errors.New("actor document has no inbox")
	}
	return actor, nil
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func anyToSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
