// Package urlutil resolves and canonicalizes job posting URLs. Many boards
// publish tracking links that 30x-redirect to the employer's posting; the
// resolved, normalized form is what cross-source duplicate detection keys on.
package urlutil

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// maxRedirectHops bounds how many redirects ResolveRedirect will follow.
const maxRedirectHops = 10

// trackingParams are query parameters stripped during normalization.
var trackingParams = map[string]struct{}{
	"fbclid":       {},
	"gclid":        {},
	"mc_cid":       {},
	"mc_eid":       {},
	"msclkid":      {},
	"ref":          {},
	"refid":        {},
	"utm_campaign": {},
	"utm_content":  {},
	"utm_medium":   {},
	"utm_source":   {},
	"utm_term":     {},
}

// Resolver follows redirect chains to find the canonical URL behind a
// tracking link. It issues HEAD requests only and never downloads bodies.
type Resolver struct {
	client *http.Client
}

// NewResolver builds a Resolver around the given HTTP client. The client's
// redirect policy is bypassed; hops are followed manually so each can be
// inspected. A nil client uses http.DefaultClient's transport.
func NewResolver(client *http.Client) *Resolver {
	base := client
	if base == nil {
		base = http.DefaultClient
	}
	// Copy so disabling redirect-following does not mutate the caller's client.
	c := &http.Client{
		Transport: base.Transport,
		Timeout:   base.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Resolver{client: c}
}

// Resolve follows 301/302/303/307/308 redirects from rawURL and returns the
// final destination. A URL that does not redirect resolves to itself. Any
// network or protocol failure returns an error; callers treat resolution as
// best-effort and fall back to the original URL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	current := rawURL
	for hop := 0; hop < maxRedirectHops; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, current, nil)
		if err != nil {
			return "", fmt.Errorf("build resolve request: %w", err)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", current, err)
		}
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			loc := resp.Header.Get("Location")
			if loc == "" {
				return current, nil
			}
			next, err := resp.Request.URL.Parse(loc)
			if err != nil {
				return "", fmt.Errorf("parse redirect location %q: %w", loc, err)
			}
			current = next.String()
		default:
			return current, nil
		}
	}
	return "", fmt.Errorf("too many redirects resolving %s", rawURL)
}

// Normalize canonicalizes a URL for cross-source identity comparison:
// lowercased scheme and host, default ports and fragments dropped, tracking
// parameters removed, remaining query sorted, and a leading www. stripped
// when it sits directly on the registrable domain.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("url has no host: %s", rawURL)
	}

	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		if host == "www."+etld1 {
			host = etld1
		}
	}

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}

	q := u.Query()
	for key := range q {
		if _, drop := trackingParams[strings.ToLower(key)]; drop {
			q.Del(key)
		}
	}
	query := canonicalQuery(q)

	path := u.EscapedPath()
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	normalized := url.URL{
		Scheme:   strings.ToLower(u.Scheme),
		Host:     host,
		Path:     path,
		RawQuery: query,
	}
	return normalized.String(), nil
}

func canonicalQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		values := q[k]
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
