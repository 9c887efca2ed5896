package httpsig

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"testing"

	"github.com/go-fed/httpsig"
	"github.com/stretchr/testify/require"
)

func TestSignRequest(t *testing.T) {
	require := require.New(t)
	req, err := http.NewRequest("GET", "https://example.com/users/foo", nil)
	require.NoError(err)
	req.Header.Set("Accept", "application/ld+json")

	const keyID = "https://example.com#main-key"
	privatekey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	pubKey := &privatekey.PublicKey

	err = Sign(req, keyID, privatekey, nil)
	require.NoError(err)

	verifier, err := httpsig.NewVerifier(req)
	require.NoError(err)
	require.Equal(keyID, verifier.KeyId())
	err = verifier.Verify(pubKey, httpsig.RSA_SHA256)
	require.NoError(err, "req.Signature: %s", req.Header.Get("Signature"))
}

func TestSignPostRoundTrip(t *testing.T) {
	require := require.New(t)
	body := []byte(`{"type":"Create"}`)
	req, err := http.NewRequest("POST", "https://remote.example/inbox", bytes.NewReader(body))
	require.NoError(err)

	const keyID = "https://local.example/users/alice#main-key"
	privatekey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)

	require.NoError(Sign(req, keyID, privatekey, body))
	require.NotEmpty(req.Header.Get("Digest"))
	require.NotEmpty(req.Header.Get("Date"))

	// the mirror operation must accept what Sign produced.
	err = Verify(req, func(id string) (crypto.PublicKey, error) {
		require.Equal(keyID, id)
		return &privatekey.PublicKey, nil
	})
	require.NoError(err)
}

func TestSignRejectsOversizedBody(t *testing.T) {
	require := require.New(t)
	body := make([]byte, MaxBodySize+1)
	req, err := http.NewRequest("POST", "https://remote.example/inbox", bytes.NewReader(body))
	require.NoError(err)

	privatekey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)

	err = Sign(req, "https://local.example#main-key", privatekey, body)
	require.ErrorIs(err, ErrBodyTooLarge)
}

func TestSignRejectsMissingKey(t *testing.T) {
	require := require.New(t)
	req, err := http.NewRequest("GET", "https://example.com/users/foo", nil)
	require.NoError(err)
	err = Sign(req, "https://example.com#main-key", nil, nil)
	require.Error(err)
}

func TestVerifyRejectsMalformedHeader(t *testing.T) {
	keyFn := func(string) (crypto.PublicKey, error) {
		return &rsa.PublicKey{}, nil
	}
	for _, header := range []string{
		`keyId="https://example.com#main-key",`,
		`garbage`,
		`keyId`,
		`,`,
	} {
		t.Run(header, func(t *testing.T) {
			req, err := http.NewRequest("POST", "https://remote.example/inbox", nil)
			require.NoError(t, err)
			req.Header.Set("Signature", header)
			require.Error(t, Verify(req, keyFn))
		})
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	require := require.New(t)
	body := []byte(`{"type":"Create"}`)
	req, err := http.NewRequest("POST", "https://remote.example/inbox", bytes.NewReader(body))
	require.NoError(err)

	privatekey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	require.NoError(Sign(req, "https://local.example#main-key", privatekey, body))

	// a tampered digest must not verify.
	req.Header.Set("Digest", "SHA-256=AAAA")
	err = Verify(req, func(string) (crypto.PublicKey, error) {
		return &privatekey.PublicKey, nil
	})
	require.Error(err)
}
