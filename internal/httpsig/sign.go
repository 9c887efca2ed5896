// Package httpsig implements the HTTP Signature scheme as defined in draft-cavage-http-signatures-10.
package httpsig

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// RequestTarget is the pseudo-header used to sign the request target.
	RequestTarget = "(request-target)"

	// MaxBodySize is the largest request body Sign will produce a
	// digest for. Activities are small; anything larger is a caller bug.
	MaxBodySize = 1 << 20
)

// ErrBodyTooLarge is returned by Sign when the body exceeds MaxBodySize.
var ErrBodyTooLarge = errors.New("httpsig: body exceeds maximum size")

// Sign signs the request using the given keyID and privateKey.
// For POST requests body must be the exact bytes that will be sent;
// a Digest header is computed over it and included in the signature.
func Sign(req *http.Request, keyID string, privateKey crypto.PrivateKey, body []byte) error {
	if privateKey == nil {
		return errors.New("httpsig: missing private key")
	}
	if len(body) > MaxBodySize {
		return ErrBodyTooLarge
	}
	req.Header.Set("Date", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")) // Date must be in GMT, not UTC 🤯
	headersToSign := []string{
		RequestTarget,
	}
	switch req.Method {
	case "GET":
		headersToSign = append(headersToSign, "host", "date", "accept")
	case "POST":
		headersToSign = append(headersToSign, "host", "date", "digest")
		addDigest(req, body)
	}

	var sb bytes.Buffer
	for _, header := range headersToSign {
		switch header {
		case RequestTarget:
			sb.WriteString("(request-target): ")
			sb.WriteString(strings.ToLower(req.Method))
			sb.WriteString(" ")
			sb.WriteString(req.URL.Path)

			if req.URL.RawQuery != "" {
				sb.WriteString("?")
				sb.WriteString(req.URL.RawQuery)
			}
		case "Host", "host":
			sb.WriteString("host: ")
			sb.WriteString(host(req))
		case "Date", "date":
			sb.WriteString("date: ")
			sb.WriteString(req.Header.Get("Date"))
		case "Accept", "accept":
			sb.WriteString("accept: ")
			sb.WriteString(req.Header.Get("Accept"))
		case "Digest", "digest":
			sb.WriteString("digest: ")
			sb.WriteString(req.Header.Get("Digest"))
		default:
			return fmt.Errorf("unknown header to sign: %s", header)
		}
		sb.WriteString("\n")
	}
	hash := sha256.New()
	hash.Write(bytes.TrimRight(sb.Bytes(), "\n")) // remove trailing newline
	digest := hash.Sum(nil)

	key, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("httpsig: unsupported private key type %T", privateKey)
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest)
	if err != nil {
		return err
	}
	enc := base64.StdEncoding.EncodeToString(sig)
	req.Header.Set("Signature", fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",headers="%s",signature="%s"`, keyID, strings.Join(headersToSign, " "), enc))
	return nil
}

// host returns the host the request will be sent to. req.Host is only
// populated on the server side; outgoing requests carry it in the URL.
func host(req *http.Request) string {
	if req.Host != "" {
		return req.Host
	}
	return req.URL.Host
}

func addDigest(req *http.Request, body []byte) {
	hash := sha256.New()
	hash.Write(body)
	digest := hash.Sum(nil)
	req.Header.Set("Digest", fmt.Sprintf("SHA-256=%s", base64.StdEncoding.EncodeToString(digest)))
}
