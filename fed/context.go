package fed

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tailfeather/fedd/fed/activities"
	"github.com/tailfeather/fedd/internal/algorithms"
	"github.com/tailfeather/fedd/internal/httpsig"
	"github.com/tailfeather/fedd/internal/snowflake"
	"github.com/tailfeather/fedd/models"
)

// ObjectStore is the content side-table the delivery core appends to
// and, on failure, compensates against. models.Objects is the default
// implementation.
type ObjectStore interface {
	Append(ctx context.Context, objects ...*models.Object) error
	Delete(ctx context.Context, uri string) error
	Find(ctx context.Context, uri string) (*models.Object, error)
}

// A Context ties together URI construction, object reconstruction, and
// activity delivery for one local domain. It is cheap to construct;
// the resolver and queue it references are shared process-wide.
type Context struct {
	DB       *gorm.DB
	Domain   string
	Resolver *Resolver
	Queue    *Dispatcher
	Store    ObjectStore
}

func NewContext(db *gorm.DB, domain string, resolver *Resolver, queue *Dispatcher) *Context {
	return &Context{
		DB:       db,
		Domain:   domain,
		Resolver: resolver,
		Queue:    queue,
		Store:    models.NewObjects(db),
	}
}

// ActorURI returns the canonical URI for a local actor.
func (c *Context) ActorURI(name string) string {
	return "https://" + c.Domain + "/users/" + name
}

// ObjectURI returns the canonical URI for an object published by a
// local actor.
func (c *Context) ObjectURI(name string, id snowflake.ID) string {
	return fmt.Sprintf("%s/posts/%d", c.ActorURI(name), id)
}

// Object reconstructs a previously stored object by type and the
// parameters its URI was constructed from. Returns nil if absent or
// the stored object has a different type.
func (c *Context) Object(ctx context.Context, typ, name string, id snowflake.ID) (*models.Object, error) {
	obj, err := c.Store.Find(ctx, c.ObjectURI(name, id))
	if err != nil || obj == nil {
		return nil, err
	}
	if obj.Type != typ {
		return nil, nil
	}
	return obj, nil
}

// A Selector names the recipients of an activity: an explicit set of
// actor URIs, a remote collection, or one of the sending actor's own
// collections by name.
type Selector struct {
	name       string
	collection string
	uris       []string
}

// Followers selects the sending actor's followers.
func Followers() Selector { return Selector{name: "followers"} }

// Following selects the actors the sending actor follows.
func Following() Selector { return Selector{name: "following"} }

// To selects an explicit set of actor URIs or handles.
func To(uris ...string) Selector { return Selector{uris: uris} }

// Audience selects the members of a remote collection, fetched
// lazily page by page.
func Audience(collectionURI string) Selector { return Selector{collection: collectionURI} }

// SendActivity signs and queues the activity for delivery to every
// recipient the selector expands to. It returns once the deliveries
// are queued; delivery itself happens asynchronously with retry, and
// terminal failures surface as dead letters, never to this caller.
func (c *Context) SendActivity(ctx context.Context, account *models.Account, sel Selector, activity *activities.Activity) error {
	switch {
	case activity == nil:
		return &ValidationError{Reason: "missing activity"}
	case !activities.Valid(activity.Type):
		return &ValidationError{Reason: "unsupported activity type " + activity.Type}
	case activity.ID == "", activity.Actor == "":
		return &ValidationError{Reason: "activity requires id and actor"}
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if len(body) > httpsig.MaxBodySize {
		return &SigningError{KeyID: account.PublicKeyID(), Err: httpsig.ErrBodyTooLarge}
	}

	// fail before anything is queued if the actor cannot sign.
	client, err := NewClient(account)
	if err != nil {
		return err
	}

	recipients, err := c.expand(ctx, account, client, sel)
	if err != nil {
		return err
	}

	// resolve recipients to inboxes, isolating failures: one
	// unreachable recipient must not sink delivery to the rest.
	var inboxes []string
	for _, recipient := range recipients {
		actor, err := c.Resolver.Resolve(ctx, client, recipient)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Printf("sendActivity: skipping %s: %v", recipient, err)
			continue
		}
		inboxes = append(inboxes, actor.PreferredInbox())
	}

	// at most one delivery per distinct inbox per activity, even when
	// recipients share an inbox.
	inboxes = algorithms.Uniq(inboxes)

	now := time.Now()
	deliveries := algorithms.Map(inboxes, func(inbox string) *models.Delivery {
		return &models.Delivery{
			AccountID:   account.ID,
			Inbox:       inbox,
			ActivityID:  activity.ID,
			KeyID:       account.PublicKeyID(),
			Body:        body,
			NextAttempt: now,
		}
	})
	return c.Queue.Enqueue(ctx, deliveries...)
}

// expand turns a selector into a list of recipient actor URIs.
func (c *Context) expand(ctx context.Context, account *models.Account, client *Client, sel Selector) ([]string, error) {
	switch {
	case sel.name == "followers":
		return models.NewRelationships(c.DB).Followers(account.Actor)
	case sel.name == "following":
		return models.NewRelationships(c.DB).Following(account.Actor)
	case sel.collection != "":
		var uris []string
		pager := NewPager(client, sel.collection)
		for {
			batch, err := pager.Next(ctx)
			if err == ErrDone {
				return uris, nil
			}
			if err != nil {
				return nil, err
			}
			uris = append(uris, batch...)
		}
	default:
		return sel.uris, nil
	}
}

// PublishNote appends a note to the object store and queues a Create
// activity to the actor's followers. If delivery cannot be constructed
// or signed the stored note is deleted again, so no orphaned,
// undeliverable post remains.
func (c *Context) PublishNote(ctx context.Context, account *models.Account, content string) (*models.Object, error) {
	if content == "" {
		return nil, &ValidationError{Reason: "missing content"}
	}

	id := snowflake.Now()
	obj := &models.Object{
		ID:      id,
		URI:     c.ObjectURI(account.Name(), id),
		ActorID: account.ActorID,
		Type:    "Note",
		Content: content,
		To:      []string{activities.Public},
		CC:      []string{account.Actor.FollowersURI()},
	}
	if err := c.Store.Append(ctx, obj); err != nil {
		return nil, err
	}

	note := activities.NewNote(obj.URI, account.Actor.URI, content, obj.To, obj.CC)
	create := activities.Create(obj.URI+"/activity", account.Actor.URI, note, obj.To, obj.CC)
	if err := c.SendActivity(ctx, account, Followers(), create); err != nil {
		if derr := c.Store.Delete(ctx, obj.URI); derr != nil {
			log.Printf("publishNote: compensating delete of %s failed: %v", obj.URI, derr)
		}
		return nil, err
	}
	return obj, nil
}

// SendFollow resolves the target, records the relationship, and queues
// a Follow activity to the target's inbox.
func (c *Context) SendFollow(ctx context.Context, account *models.Account, target string) error {
	client, err := NewClient(account)
	if err != nil {
		return err
	}
	actor, err := c.Resolver.Resolve(ctx, client, target)
	if err != nil {
		return err
	}
	if err := models.NewRelationships(c.DB).AddFollowing(account.Actor, actor.URI); err != nil {
		return err
	}
	follow := activities.Follow(
		"https://"+c.Domain+"/"+uuid.New().String(),
		account.Actor.URI,
		actor.URI,
	)
	return c.SendActivity(ctx, account, To(actor.URI), follow)
}
