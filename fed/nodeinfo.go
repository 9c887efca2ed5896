package fed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carlmjohnson/requests"
)

// ErrUnsupportedVersion is returned when a server advertises no
// nodeinfo schema version we can parse.
var ErrUnsupportedVersion = errors.New("fed: no supported nodeinfo version advertised")

// A FetchError reports a network or parse failure while fetching
// nodeinfo.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NodeInfo is a remote server's self-reported metadata.
// See https://nodeinfo.diaspora.software/.
type NodeInfo struct {
	Version  string `json:"version"`
	Software struct {
		Name       string `json:"name"`
		Version    string `json:"version"`
		Repository string `json:"repository,omitempty"`
	} `json:"software"`
	Protocols []string `json:"protocols"`
	Usage     struct {
		Users struct {
			Total          int `json:"total"`
			ActiveMonth    int `json:"activeMonth"`
			ActiveHalfyear int `json:"activeHalfyear"`
		} `json:"users"`
		LocalPosts int `json:"localPosts"`
	} `json:"usage"`
	OpenRegistrations bool           `json:"openRegistrations"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

const nodeInfoSchema = "http://nodeinfo.diaspora.software/ns/schema/"

// GetNodeInfo fetches a server's nodeinfo document: the well-known
// discovery document first, then the highest 2.x schema it advertises.
// The result reflects the server at fetch time only; software changes,
// so do not cache it for long.
func GetNodeInfo(ctx context.Context, server string) (*NodeInfo, error) {
	base := server
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	base = strings.TrimSuffix(base, "/")

	discovery := base + "/.well-known/nodeinfo"
	var disco struct {
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := requests.URL(discovery).ToJSON(&disco).Fetch(ctx); err != nil {
		return nil, &FetchError{URL: discovery, Err: err}
	}

	// prefer the newest 2.x schema on offer.
	var href, version string
	for _, link := range disco.Links {
		v := strings.TrimPrefix(link.Rel, nodeInfoSchema)
		if v == link.Rel || !strings.HasPrefix(v, "2.") || link.Href == "" {
			continue
		}
		if v > version {
			version, href = v, link.Href
		}
	}
	if href == "" {
		return nil, ErrUnsupportedVersion
	}

	var ni NodeInfo
	if err := requests.URL(href).ToJSON(&ni).Fetch(ctx); err != nil {
		return nil, &FetchError{URL: href, Err: err}
	}
	return &ni, nil
}
