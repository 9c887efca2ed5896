// Package activities constructs the closed set of ActivityPub activity
// and object types this server sends. New types are added here as new
// variants together with their constructor; there is no open-ended
// extension point.
package activities

import "time"

const (
	CREATE = "Create"
	FOLLOW = "Follow"
	ACCEPT = "Accept"
	UNDO   = "Undo"
	DELETE = "Delete"
)

// ActivityStreams is the JSON-LD context for all outgoing documents.
const ActivityStreams = "https://www.w3.org/ns/activitystreams"

// Public is the special collection addressing an activity to the world.
const Public = "https://www.w3.org/ns/activitystreams#Public"

// Valid reports whether typ is an activity type this server knows how
// to construct and deliver.
func Valid(typ string) bool {
	switch typ {
	case CREATE, FOLLOW, ACCEPT, UNDO, DELETE:
		return true
	default:
		return false
	}
}

// An Activity is a protocol message describing an action. The Type
// field is the discriminant; Object holds the variant payload, either
// a URI, a *Note, or a nested *Activity.
type Activity struct {
	Context   any      `json:"@context,omitempty"`
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Actor     string   `json:"actor"`
	Object    any      `json:"object,omitempty"`
	To        []string `json:"to,omitempty"`
	CC        []string `json:"cc,omitempty"`
	Published string   `json:"published,omitempty"`
}

// A Note is a short piece of content attributed to an actor.
type Note struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	AttributedTo string   `json:"attributedTo"`
	Content      string   `json:"content"`
	To           []string `json:"to,omitempty"`
	CC           []string `json:"cc,omitempty"`
	Published    string   `json:"published,omitempty"`
	URL          string   `json:"url,omitempty"`
}

func NewNote(id, attributedTo, content string, to, cc []string) *Note {
	return &Note{
		ID:           id,
		Type:         "Note",
		AttributedTo: attributedTo,
		Content:      content,
		To:           to,
		CC:           cc,
		Published:    time.Now().UTC().Format(time.RFC3339),
	}
}

func Create(id, actor string, object any, to, cc []string) *Activity {
	return &Activity{
		Context:   ActivityStreams,
		ID:        id,
		Type:      CREATE,
		Actor:     actor,
		Object:    object,
		To:        to,
		CC:        cc,
		Published: time.Now().UTC().Format(time.RFC3339),
	}
}

func Follow(id, actor, object string) *Activity {
	return &Activity{
		Context: ActivityStreams,
		ID:      id,
		Type:    FOLLOW,
		Actor:   actor,
		Object:  object,
	}
}

func Accept(id, actor string, object any) *Activity {
	return &Activity{
		Context: ActivityStreams,
		ID:      id,
		Type:    ACCEPT,
		Actor:   actor,
		Object:  object,
	}
}

func Undo(id, actor string, object *Activity) *Activity {
	// the nested activity is embedded without its own @context.
	inner := *object
	inner.Context = nil
	return &Activity{
		Context: ActivityStreams,
		ID:      id,
		Type:    UNDO,
		Actor:   actor,
		Object:  &inner,
	}
}

func Delete(id, actor, object string, to []string) *Activity {
	return &Activity{
		Context: ActivityStreams,
		ID:      id,
		Type:    DELETE,
		Actor:   actor,
		Object:  object,
		To:      to,
	}
}
