package fed

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/go-json-experiment/json"

	"github.com/tailfeather/fedd/internal/httpsig"
)

const userAgent = "fedd/1.0"

// Client is an ActivityPub client which can be used to fetch remote
// ActivityPub resources and post to remote inboxes.
type Client struct {
	keyID      string
	privateKey crypto.PrivateKey
}

// Signer represents an object that can sign HTTP requests.
type Signer interface {
	PublicKeyID() string
	PrivKey() (*rsa.PrivateKey, error)
}

// NewClient returns a new ActivityPub client signing as signAs.
func NewClient(signAs Signer) (*Client, error) {
	privateKey, err := signAs.PrivKey()
	if err != nil {
		return nil, &SigningError{KeyID: signAs.PublicKeyID(), Err: err}
	}
	return &Client{
		keyID:      signAs.PublicKeyID(),
		privateKey: privateKey,
	}, nil
}

// AnonymousClient returns a client that does not sign its requests.
// Some servers refuse unsigned fetches; use a signing client when an
// account is available.
func AnonymousClient() *Client {
	return &Client{}
}

// Fetch fetches the ActivityPub resource at the given URL and decodes it into the given object.
func (c *Client) Fetch(ctx context.Context, uri string, obj interface{}) error {
	return requests.URL(uri).
		Accept(`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		Header("User-Agent", userAgent).
		Transport(requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if c.privateKey != nil {
				if err := httpsig.Sign(req, c.keyID, c.privateKey, nil); err != nil {
					return nil, fmt.Errorf("failed to sign request: %w", err)
				}
			}
			return http.DefaultTransport.RoundTrip(req)
		})).
		CheckContentType(
			"application/ld+json",
			"application/activity+json",
			"application/jrd+json",
			"application/json",
			"application/octet-stream", // sigh
		).
		CheckStatus(http.StatusOK).
		ToJSON(obj).
		Fetch(ctx)
}

// Get fetches the ActivityPub resource at the given URL.
func (c *Client) Get(ctx context.Context, uri string) (map[string]any, error) {
	var obj map[string]any
	err := c.Fetch(ctx, uri, &obj)
	return obj, err
}

// Post delivers the given serialized activity to the given inbox and
// returns the response status code. A status of zero means the request
// never reached the remote server.
func (c *Client) Post(ctx context.Context, inbox string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", inbox, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)
	req.Header.Set("User-Agent", userAgent)
	if err := httpsig.Sign(req, c.keyID, c.privateKey, body); err != nil {
		return 0, &SigningError{KeyID: c.keyID, Err: err}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

// Marshal serializes an outgoing document.
func Marshal(obj any) ([]byte, error) {
	return json.Marshal(obj)
}
