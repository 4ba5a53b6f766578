package urlutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "already canonical",
			input: "https://example.com/jobs/1",
			want:  "https://example.com/jobs/1",
		},
		{
			name:  "uppercase scheme and host",
			input: "HTTPS://Example.COM/jobs/1",
			want:  "https://example.com/jobs/1",
		},
		{
			name:  "strips www on registrable domain",
			input: "https://www.example.com/jobs/1",
			want:  "https://example.com/jobs/1",
		},
		{
			name:  "keeps www on subdomain",
			input: "https://www.boards.example.com/jobs/1",
			want:  "https://www.boards.example.com/jobs/1",
		},
		{
			name:  "drops default https port",
			input: "https://example.com:443/jobs/1",
			want:  "https://example.com/jobs/1",
		},
		{
			name:  "keeps explicit port",
			input: "http://example.com:8080/jobs/1",
			want:  "http://example.com:8080/jobs/1",
		},
		{
			name:  "strips tracking params and sorts the rest",
			input: "https://example.com/jobs?utm_source=feed&b=2&a=1&gclid=xyz",
			want:  "https://example.com/jobs?a=1&b=2",
		},
		{
			name:  "drops fragment",
			input: "https://example.com/jobs/1#apply",
			want:  "https://example.com/jobs/1",
		},
		{
			name:  "trims trailing slash",
			input: "https://example.com/jobs/1/",
			want:  "https://example.com/jobs/1",
		},
		{
			name:  "root path survives",
			input: "https://example.com/",
			want:  "https://example.com/",
		},
		{
			name:  "surrounding whitespace",
			input: "  https://example.com/jobs/1  ",
			want:  "https://example.com/jobs/1",
		},
		{
			name:    "unsupported scheme",
			input:   "ftp://example.com/jobs",
			wantErr: true,
		},
		{
			name:    "missing host",
			input:   "https:///jobs",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	first, err := Normalize("https://WWW.Example.com/jobs/1/?utm_medium=rss&page=2")
	require.NoError(t, err)
	second, err := Normalize(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveFollowsRedirectChain(t *testing.T) {
	var final *httptest.Server
	final = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/jobs/1", http.StatusFound)
	}))
	defer hop.Close()

	tracker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, hop.URL, http.StatusMovedPermanently)
	}))
	defer tracker.Close()

	r := NewResolver(nil)

	resolved, err := r.Resolve(context.Background(), tracker.URL)
	require.NoError(t, err)
	assert.Equal(t, final.URL+"/jobs/1", resolved)
}

func TestResolveNonRedirectResolvesToItself(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewResolver(nil)

	resolved, err := r.Resolve(context.Background(), srv.URL+"/direct")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/direct", resolved)
}

func TestResolveRelativeLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			w.Header().Set("Location", "/jobs/42")
			w.WriteHeader(http.StatusSeeOther)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewResolver(nil)

	resolved, err := r.Resolve(context.Background(), srv.URL+"/start")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/jobs/42", resolved)
}

func TestResolveRedirectLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.String(), http.StatusFound)
	}))
	defer srv.Close()

	r := NewResolver(nil)

	_, err := r.Resolve(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many redirects")
}

func TestResolveHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(nil)

	_, err := r.Resolve(ctx, srv.URL)
	require.Error(t, err)
}
