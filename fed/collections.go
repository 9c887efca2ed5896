package fed

import (
	"context"
	"errors"
)

// ErrDone is returned by Pager.Next when the collection has no further
// pages.
var ErrDone = errors.New("fed: no more pages")

// A Pager walks a remote collection page by page. Pages are fetched
// lazily; consumers may stop early. A pager is not rewindable, but the
// current cursor can be saved and a new pager started from it.
type Pager struct {
	client *Client
	next   string
}

// NewPager returns a pager over the collection at uri. The uri may
// also be a saved cursor from Pager.Cursor.
func NewPager(client *Client, uri string) *Pager {
	return &Pager{client: client, next: uri}
}

// Cursor returns the URI the next call to Next will fetch, or the
// empty string if the pager is exhausted.
func (p *Pager) Cursor() string {
	return p.next
}

// Next fetches the next page and returns the member URIs it contains.
// It returns ErrDone when the collection is exhausted. Any other error
// leaves already-returned batches valid; Next may be retried.
func (p *Pager) Next(ctx context.Context) ([]string, error) {
	for {
		if p.next == "" {
			return nil, ErrDone
		}
		obj, err := p.client.Get(ctx, p.next)
		if err != nil {
			return nil, &ResolutionError{ID: p.next, Err: err}
		}

		items, next, err := parseCollectionPage(obj)
		if err != nil {
			return nil, &ResolutionError{ID: p.next, Err: err}
		}
		p.next = next
		if len(items) > 0 {
			return items, nil
		}
		// a bare collection header points at its first page; follow it
		// before reporting anything.
	}
}

func parseCollectionPage(obj map[string]any) (items []string, next string, err error) {
	switch typ := stringFromAny(obj["type"]); typ {
	case "OrderedCollection", "Collection":
		items = itemURIs(obj)
		if first := stringFromAny(obj["first"]); first != "" && len(items) == 0 {
			return nil, first, nil
		}
		// small collections inline their items with no pages.
		return items, "", nil
	case "OrderedCollectionPage", "CollectionPage":
		return itemURIs(obj), stringFromAny(obj["next"]), nil
	default:
		return nil, "", errors.New("not a collection: " + typ)
	}
}

// itemURIs extracts member URIs from a page. Members may be bare URIs
// or embedded objects with an id.
func itemURIs(obj map[string]any) []string {
	members := anyToSlice(obj["orderedItems"])
	if members == nil {
		members = anyToSlice(obj["items"])
	}
	var uris []string
	for _, member := range members {
		switch member := member.(type) {
		case string:
			uris = append(uris, member)
		case map[string]any:
			if id := stringFromAny(member["id"]); id != "" {
				uris = append(uris, id)
			}
		}
	}
	return uris
}
