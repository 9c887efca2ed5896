package web

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tailfeather/fedd/fed"
	"github.com/tailfeather/fedd/internal/crypto"
	"github.com/tailfeather/fedd/internal/httpsig"
	"github.com/tailfeather/fedd/models"
)

func testEnv(t *testing.T) (*Env, *models.Account) {
	t.Helper()
	require := require.New(t)

	db, err := gorm.Open(&sqlite.Dialector{DSN: "file::memory:"}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(err)
	sqlDB, err := db.DB()
	require.NoError(err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(models.AutoMigrate(db))

	account, err := models.NewAccounts(db).Create("alice", "a.example", "", "")
	require.NoError(err)

	queue := fed.NewDispatcher(db, fed.NewKeyStore(db))
	fedCtx := fed.NewContext(db, "a.example", fed.NewResolver(), queue)
	return &Env{DB: db, Domain: "a.example", Fed: fedCtx}, account
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.UnmarshalFull(resp.Body, out))
	}
	return resp
}

func TestWebfinger(t *testing.T) {
	require := require.New(t)
	env, account := testEnv(t)
	ts := httptest.NewServer(Router(env))
	t.Cleanup(ts.Close)

	var doc map[string]any
	resp := getJSON(t, ts.URL+"/.well-known/webfinger?resource=acct:alice@a.example", &doc)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Equal("application/jrd+json", resp.Header.Get("Content-Type"))
	require.Equal("acct:alice@a.example", doc["subject"])
	links := doc["links"].([]any)
	require.Len(links, 1)
	require.Equal(account.Actor.URI, links[0].(map[string]any)["href"])

	resp = getJSON(t, ts.URL+"/.well-known/webfinger?resource=acct:bob@a.example", nil)
	require.Equal(http.StatusNotFound, resp.StatusCode)

	resp = getJSON(t, ts.URL+"/.well-known/webfinger", nil)
	require.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = getJSON(t, ts.URL+"/.well-known/webfinger?resource=acct:alice", nil)
	require.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestActorShow(t *testing.T) {
	require := require.New(t)
	env, account := testEnv(t)
	ts := httptest.NewServer(Router(env))
	t.Cleanup(ts.Close)

	var doc map[string]any
	resp := getJSON(t, ts.URL+"/users/alice", &doc)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Equal("application/activity+json", resp.Header.Get("Content-Type"))
	require.Equal(account.Actor.URI, doc["id"])
	require.Equal("Person", doc["type"])
	require.Equal("alice", doc["preferredUsername"])

	key := doc["publicKey"].(map[string]any)
	require.Equal(account.PublicKeyID(), key["id"])
	require.Equal(account.Actor.URI, key["owner"])
	require.Contains(key["publicKeyPem"], "BEGIN PUBLIC KEY")

	resp = getJSON(t, ts.URL+"/users/ghost", nil)
	require.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestFollowersCollection(t *testing.T) {
	require := require.New(t)
	env, account := testEnv(t)
	ts := httptest.NewServer(Router(env))
	t.Cleanup(ts.Close)

	rels := models.NewRelationships(env.DB)
	require.NoError(rels.Follow(account.Actor, "https://b.example/users/bob"))
	require.NoError(rels.Follow(account.Actor, "https://c.example/users/carol"))

	var index map[string]any
	resp := getJSON(t, ts.URL+"/users/alice/followers", &index)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Equal("OrderedCollection", index["type"])
	require.EqualValues(2, index["totalItems"])

	var page map[string]any
	resp = getJSON(t, ts.URL+"/users/alice/followers?page=true", &page)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Equal("OrderedCollectionPage", page["type"])
	require.Equal([]any{"https://b.example/users/bob", "https://c.example/users/carol"}, page["orderedItems"])

	var following map[string]any
	resp = getJSON(t, ts.URL+"/users/alice/following", &following)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.EqualValues(0, following["totalItems"])
}

func TestNodeInfoEndpoints(t *testing.T) {
	require := require.New(t)
	env, _ := testEnv(t)
	ts := httptest.NewServer(Router(env))
	t.Cleanup(ts.Close)

	var disco map[string]any
	resp := getJSON(t, ts.URL+"/.well-known/nodeinfo", &disco)
	require.Equal(http.StatusOK, resp.StatusCode)
	links := disco["links"].([]any)
	require.Len(links, 1)
	require.Equal("http://nodeinfo.diaspora.software/ns/schema/2.0", links[0].(map[string]any)["rel"])

	var ni map[string]any
	resp = getJSON(t, ts.URL+"/nodeinfo/2.0", &ni)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Equal("2.0", ni["version"])
	require.Equal([]any{"activitypub"}, ni["protocols"])
	usage := ni["usage"].(map[string]any)
	require.EqualValues(1, usage["users"].(map[string]any)["total"])
}

// remotePeer is a fake remote server with one actor and its keypair.
type remotePeer struct {
	ts      *httptest.Server
	keypair *crypto.Keypair
}

func (p *remotePeer) actorURI() string { return p.ts.URL + "/users/bob" }
func (p *remotePeer) keyID() string    { return p.actorURI() + "#main-key" }

func (p *remotePeer) sign(t *testing.T, req *http.Request, body []byte) {
	t.Helper()
	_, priv, err := crypto.ParseRSAPrivateKey(p.keypair.PrivateKey)
	require.NoError(t, err)
	require.NoError(t, httpsig.Sign(req, p.keyID(), priv, body))
}

func newRemotePeer(t *testing.T) *remotePeer {
	t.Helper()
	keypair, err := crypto.GenerateRSAKeypair()
	require.NoError(t, err)

	peer := &remotePeer{keypair: keypair}
	mux := http.NewServeMux()
	mux.HandleFunc("/users/bob", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		json.MarshalFull(w, map[string]any{
			"id":                peer.actorURI(),
			"type":              "Person",
			"preferredUsername": "bob",
			"inbox":             peer.actorURI() + "/inbox",
			"publicKey": map[string]any{
				"id":           peer.keyID(),
				"owner":        peer.actorURI(),
				"publicKeyPem": string(keypair.PublicKey),
			},
		})
	})
	peer.ts = httptest.NewServer(mux)
	t.Cleanup(peer.ts.Close)
	return peer
}

func postActivity(t *testing.T, peer *remotePeer, inbox string, activity map[string]any) *http.Response {
	t.Helper()
	body, err := json.Marshal(activity)
	require.NoError(t, err)

	req, err := http.NewRequest("POST", inbox, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/activity+json")
	peer.sign(t, req, body)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestInboxFollowThenUndo(t *testing.T) {
	require := require.New(t)
	env, account := testEnv(t)
	ts := httptest.NewServer(Router(env))
	t.Cleanup(ts.Close)
	peer := newRemotePeer(t)

	follow := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       peer.ts.URL + "/follows/1",
		"type":     "Follow",
		"actor":    peer.actorURI(),
		"object":   account.Actor.URI,
	}
	resp := postActivity(t, peer, ts.URL+"/users/alice/inbox", follow)
	require.Equal(http.StatusAccepted, resp.StatusCode)

	followers, err := models.NewRelationships(env.DB).Followers(account.Actor)
	require.NoError(err)
	require.Equal([]string{peer.actorURI()}, followers)

	// the Accept is queued for bob's inbox.
	var deliveries []models.Delivery
	require.NoError(env.DB.Find(&deliveries).Error)
	require.Len(deliveries, 1)
	require.Equal(peer.actorURI()+"/inbox", deliveries[0].Inbox)

	var accept struct {
		Type   string `json:"type"`
		Actor  string `json:"actor"`
		Object struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"object"`
	}
	require.NoError(json.Unmarshal(deliveries[0].Body, &accept))
	require.Equal("Accept", accept.Type)
	require.Equal(account.Actor.URI, accept.Actor)
	require.Equal("Follow", accept.Object.Type)
	require.Equal(peer.ts.URL+"/follows/1", accept.Object.ID)

	undo := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       peer.ts.URL + "/follows/1#undo",
		"type":     "Undo",
		"actor":    peer.actorURI(),
		"object": map[string]any{
			"id":     peer.ts.URL + "/follows/1",
			"type":   "Follow",
			"actor":  peer.actorURI(),
			"object": account.Actor.URI,
		},
	}
	resp = postActivity(t, peer, ts.URL+"/users/alice/inbox", undo)
	require.Equal(http.StatusAccepted, resp.StatusCode)

	followers, err = models.NewRelationships(env.DB).Followers(account.Actor)
	require.NoError(err)
	require.Empty(followers)
}

func TestInboxSharedEndpoint(t *testing.T) {
	require := require.New(t)
	env, account := testEnv(t)
	ts := httptest.NewServer(Router(env))
	t.Cleanup(ts.Close)
	peer := newRemotePeer(t)

	follow := map[string]any{
		"id":     peer.ts.URL + "/follows/2",
		"type":   "Follow",
		"actor":  peer.actorURI(),
		"object": account.Actor.URI,
	}
	resp := postActivity(t, peer, ts.URL+"/inbox", follow)
	require.Equal(http.StatusAccepted, resp.StatusCode)

	followers, err := models.NewRelationships(env.DB).Followers(account.Actor)
	require.NoError(err)
	require.Equal([]string{peer.actorURI()}, followers)
}

func TestInboxRejectsUnsignedDelivery(t *testing.T) {
	require := require.New(t)
	env, account := testEnv(t)
	ts := httptest.NewServer(Router(env))
	t.Cleanup(ts.Close)

	body := []byte(`{"id":"https://b.example/1","type":"Follow","actor":"https://b.example/users/bob","object":"` + account.Actor.URI + `"}`)
	resp, err := http.Post(ts.URL+"/users/alice/inbox", "application/activity+json", bytes.NewReader(body))
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusUnauthorized, resp.StatusCode)

	followers, err := models.NewRelationships(env.DB).Followers(account.Actor)
	require.NoError(err)
	require.Empty(followers)
}

func TestInboxRejectsActorMismatch(t *testing.T) {
	require := require.New(t)
	env, account := testEnv(t)
	ts := httptest.NewServer(Router(env))
	t.Cleanup(ts.Close)
	peer := newRemotePeer(t)

	// signed by bob, claims to be carol.
	follow := map[string]any{
		"id":     peer.ts.URL + "/follows/3",
		"type":   "Follow",
		"actor":  "https://c.example/users/carol",
		"object": account.Actor.URI,
	}
	resp := postActivity(t, peer, ts.URL+"/users/alice/inbox", follow)
	require.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestInboxIgnoresUnhandledActivity(t *testing.T) {
	require := require.New(t)
	env, account := testEnv(t)
	ts := httptest.NewServer(Router(env))
	t.Cleanup(ts.Close)
	peer := newRemotePeer(t)

	like := map[string]any{
		"id":     peer.ts.URL + "/likes/1",
		"type":   "Like",
		"actor":  peer.actorURI(),
		"object": account.Actor.URI + "/posts/1",
	}
	resp := postActivity(t, peer, ts.URL+"/users/alice/inbox", like)
	require.Equal(http.StatusAccepted, resp.StatusCode)
}
