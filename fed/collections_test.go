package fed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func serveCollection(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var ts *httptest.Server
	mux.HandleFunc("/followers", func(w http.ResponseWriter, r *http.Request) {
		activityJSON(w, map[string]any{
			"id":         ts.URL + "/followers",
			"type":       "OrderedCollection",
			"totalItems": 3,
			"first":      ts.URL + "/followers/page/1",
		})
	})
	mux.HandleFunc("/followers/page/1", func(w http.ResponseWriter, r *http.Request) {
		activityJSON(w, map[string]any{
			"id":           ts.URL + "/followers/page/1",
			"type":         "OrderedCollectionPage",
			"partOf":       ts.URL + "/followers",
			"orderedItems": []any{"https://b.example/users/bob", "https://c.example/users/carol"},
			"next":         ts.URL + "/followers/page/2",
		})
	})
	mux.HandleFunc("/followers/page/2", func(w http.ResponseWriter, r *http.Request) {
		activityJSON(w, map[string]any{
			"id":           ts.URL + "/followers/page/2",
			"type":         "OrderedCollectionPage",
			"partOf":       ts.URL + "/followers",
			"orderedItems": []any{"https://d.example/users/dan"},
		})
	})
	ts = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestPagerWalksPages(t *testing.T) {
	require := require.New(t)
	ts := serveCollection(t)
	ctx := context.Background()

	pager := NewPager(AnonymousClient(), ts.URL+"/followers")

	batch, err := pager.Next(ctx)
	require.NoError(err)
	require.Equal([]string{"https://b.example/users/bob", "https://c.example/users/carol"}, batch)

	batch, err = pager.Next(ctx)
	require.NoError(err)
	require.Equal([]string{"https://d.example/users/dan"}, batch)

	_, err = pager.Next(ctx)
	require.ErrorIs(err, ErrDone)
	require.Empty(pager.Cursor())

	// exhausted pagers stay exhausted.
	_, err = pager.Next(ctx)
	require.ErrorIs(err, ErrDone)
}

func TestPagerCursorRestart(t *testing.T) {
	require := require.New(t)
	ts := serveCollection(t)
	ctx := context.Background()

	pager := NewPager(AnonymousClient(), ts.URL+"/followers")
	_, err := pager.Next(ctx)
	require.NoError(err)

	cursor := pager.Cursor()
	require.Equal(ts.URL+"/followers/page/2", cursor)

	// a fresh pager started from the saved cursor picks up where the
	// first left off.
	resumed := NewPager(AnonymousClient(), cursor)
	batch, err := resumed.Next(ctx)
	require.NoError(err)
	require.Equal([]string{"https://d.example/users/dan"}, batch)
	_, err = resumed.Next(ctx)
	require.ErrorIs(err, ErrDone)
}

func TestPagerInlineItems(t *testing.T) {
	require := require.New(t)
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		activityJSON(w, map[string]any{
			"id":           ts.URL + "/followers",
			"type":         "Collection",
			"totalItems":   2,
			"items":        []any{"https://b.example/users/bob", "https://c.example/users/carol"},
		})
	}))
	t.Cleanup(ts.Close)

	pager := NewPager(AnonymousClient(), ts.URL+"/followers")
	batch, err := pager.Next(context.Background())
	require.NoError(err)
	require.Equal([]string{"https://b.example/users/bob", "https://c.example/users/carol"}, batch)
	_, err = pager.Next(context.Background())
	require.ErrorIs(err, ErrDone)
}

func TestPagerEmbeddedMembers(t *testing.T) {
	require := require.New(t)
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		activityJSON(w, map[string]any{
			"id":   ts.URL + "/followers",
			"type": "OrderedCollection",
			"orderedItems": []any{
				map[string]any{"id": "https://b.example/users/bob", "type": "Person"},
				"https://c.example/users/carol",
				map[string]any{"type": "Person"}, // no id, skipped
			},
		})
	}))
	t.Cleanup(ts.Close)

	pager := NewPager(AnonymousClient(), ts.URL+"/followers")
	batch, err := pager.Next(context.Background())
	require.NoError(err)
	require.Equal([]string{"https://b.example/users/bob", "https://c.example/users/carol"}, batch)
}

func TestPagerErrorLeavesCursorRetryable(t *testing.T) {
	require := require.New(t)
	var failures atomic.Int32
	failures.Store(1)
	mux := http.NewServeMux()
	var ts *httptest.Server
	mux.HandleFunc("/followers", func(w http.ResponseWriter, r *http.Request) {
		activityJSON(w, map[string]any{
			"id":    ts.URL + "/followers",
			"type":  "OrderedCollection",
			"first": ts.URL + "/followers/page/1",
		})
	})
	mux.HandleFunc("/followers/page/1", func(w http.ResponseWriter, r *http.Request) {
		if failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		activityJSON(w, map[string]any{
			"id":           ts.URL + "/followers/page/1",
			"type":         "OrderedCollectionPage",
			"orderedItems": []any{"https://b.example/users/bob"},
		})
	})
	ts = httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	client := AnonymousClient()
	pager := NewPager(client, ts.URL+"/followers")

	_, err := pager.Next(context.Background())
	var rerr *ResolutionError
	require.ErrorAs(err, &rerr)

	// the failed page is still the cursor; retrying resumes there.
	batch, err := NewPager(client, pager.Cursor()).Next(context.Background())
	require.NoError(err)
	require.Equal([]string{"https://b.example/users/bob"}, batch)
}

func TestPagerRejectsNonCollection(t *testing.T) {
	require := require.New(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		activityJSON(w, map[string]any{
			"id":   "https://b.example/users/bob",
			"type": "Person",
		})
	}))
	t.Cleanup(ts.Close)

	pager := NewPager(AnonymousClient(), ts.URL+"/users/bob")
	_, err := pager.Next(context.Background())
	var rerr *ResolutionError
	require.ErrorAs(err, &rerr)
}
