// Package apifeed implements a configurable JSON API source adapter. Each
// database source row configures one feed: the endpoint, how to
// authenticate, how to paginate, and JMESPath expressions that map the
// provider's response shape onto the normalized posting fields.
package apifeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/zapply/ingest-api/internal/adapters/sources"
	"github.com/zapply/ingest-api/internal/domain/model"
)

// Auth mode constants accepted in feed settings.
const (
	AuthNone   = "none"
	AuthAPIKey = "api_key"
	AuthBearer = "bearer"
	AuthOAuth2 = "oauth2"
)

const (
	defaultMaxPages     = 10
	defaultLookBackDays = 1
	maxResponseBytes    = 10 << 20 // 10 MiB
)

// FieldMap holds the JMESPath expressions that project one feed item onto the
// normalized posting shape. Items and the identifying fields are mandatory;
// everything else is optional.
type FieldMap struct {
	Items        string `json:"items"`
	SourceID     string `json:"source_id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Company      string `json:"company,omitempty"`
	Description  string `json:"description,omitempty"`
	Requirements string `json:"requirements,omitempty"`
	Location     string `json:"location,omitempty"`
	Salary       string `json:"salary,omitempty"`
	Tags         string `json:"tags,omitempty"`
	PostedAt     string `json:"posted_at,omitempty"`
}

// Settings is the per-source configuration document for an API feed.
type Settings struct {
	Endpoint string   `json:"endpoint"`
	Auth     string   `json:"auth,omitempty"`
	// APIKeyHeader names the header carrying the API key in api_key mode.
	APIKeyHeader string `json:"api_key_header,omitempty"`
	// TokenURL and Scopes configure oauth2 client-credentials mode. The
	// client id/secret come from the source's environment credentials.
	TokenURL string   `json:"token_url,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	// PageParam enables pagination when set; pages start at 1.
	PageParam string `json:"page_param,omitempty"`
	MaxPages  int    `json:"max_pages,omitempty"`
	Fields    FieldMap `json:"fields"`
}

// Validate checks the settings document for the fields scraping cannot
// proceed without.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if _, err := url.ParseRequestURI(s.Endpoint); err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	switch s.Auth {
	case "", AuthNone, AuthAPIKey, AuthBearer:
	case AuthOAuth2:
		if strings.TrimSpace(s.TokenURL) == "" {
			return errors.New("token_url is required for oauth2 auth")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", s.Auth)
	}
	if s.Fields.Items == "" {
		return errors.New("fields.items expression is required")
	}
	for name, expr := range map[string]string{
		"source_id": s.Fields.SourceID,
		"url":       s.Fields.URL,
		"title":     s.Fields.Title,
	} {
		if strings.TrimSpace(expr) == "" {
			return fmt.Errorf("fields.%s expression is required", name)
		}
	}
	return nil
}

// Adapter scrapes a JSON API feed.
type Adapter struct {
	name    string
	label   string
	client  *http.Client
	limiter *rate.Limiter
}

// Options configures an Adapter.
type Options struct {
	// Name is the registry identifier for this feed instance.
	Name string
	// Label is the display name.
	Label string
	// Client is the HTTP client used for feed requests. Defaults to a
	// client with a 30s timeout.
	Client *http.Client
	// RequestsPerSecond throttles feed requests. Zero disables throttling.
	RequestsPerSecond float64
}

// New builds an API feed adapter.
func New(opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, errors.New("adapter name is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	label := opts.Label
	if label == "" {
		label = opts.Name
	}
	return &Adapter{
		name:    opts.Name,
		label:   label,
		client:  client,
		limiter: limiter,
	}, nil
}

// Name implements sources.Adapter.
func (a *Adapter) Name() string { return a.name }

// Label implements sources.Adapter.
func (a *Adapter) Label() string { return a.label }

// RequiresLogin implements sources.Adapter. Whether credentials are actually
// needed depends on the configured auth mode, so the adapter never blocks a
// scrape on missing credentials up front.
func (a *Adapter) RequiresLogin() bool { return false }

// Scrape implements sources.Adapter.
func (a *Adapter) Scrape(ctx context.Context, req sources.ScrapeRequest) ([]model.NormalizedJob, error) {
	var settings Settings
	if len(req.Settings) > 0 {
		if err := json.Unmarshal(req.Settings, &settings); err != nil {
			return nil, fmt.Errorf("parse feed settings: %w", err)
		}
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("feed settings: %w", err)
	}

	program, err := compileFields(settings.Fields)
	if err != nil {
		return nil, err
	}

	client, err := a.authedClient(ctx, settings, req.Credentials)
	if err != nil {
		return nil, err
	}

	lookBack := req.LookBackDays
	if lookBack <= 0 {
		lookBack = defaultLookBackDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -lookBack)

	maxPages := settings.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if settings.PageParam == "" {
		maxPages = 1
	}

	var out []model.NormalizedJob
	for page := 1; page <= maxPages; page++ {
		items, err := a.fetchPage(ctx, client, settings, req.Credentials, page, program)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		req.Report("page %d: %d items", page, len(items))

		sawKnown := false
		for _, item := range items {
			job, postedAt, err := program.project(item, a.name)
			if err != nil {
				req.Report("skipping malformed item: %v", err)
				continue
			}
			if postedAt != nil && postedAt.Before(cutoff) {
				continue
			}
			if _, known := req.KnownIDs[job.SourceID]; known {
				sawKnown = true
				continue
			}
			out = append(out, job)
			if req.JobLimit > 0 && len(out) >= req.JobLimit {
				req.Report("job limit %d reached", req.JobLimit)
				return out, nil
			}
		}

		// Feeds are newest-first; a page full of already-known postings
		// means the rest is history we have already ingested.
		if sawKnown {
			break
		}
	}
	return out, nil
}

func (a *Adapter) authedClient(ctx context.Context, settings Settings, creds model.SourceCredentials) (*http.Client, error) {
	if settings.Auth != AuthOAuth2 {
		return a.client, nil
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, errors.New("oauth2 feed requires client id/secret credentials")
	}
	cfg := clientcredentials.Config{
		ClientID:     creds.Username,
		ClientSecret: creds.Password,
		TokenURL:     settings.TokenURL,
		Scopes:       settings.Scopes,
	}
	return cfg.Client(ctx), nil
}

func (a *Adapter) fetchPage(
	ctx context.Context,
	client *http.Client,
	settings Settings,
	creds model.SourceCredentials,
	page int,
	program *fieldProgram,
) ([]any, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	endpoint := settings.Endpoint
	if settings.PageParam != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		q := u.Query()
		q.Set(settings.PageParam, strconv.Itoa(page))
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	switch settings.Auth {
	case AuthAPIKey:
		header := settings.APIKeyHeader
		if header == "" {
			header = "X-Api-Key"
		}
		if creds.APIKey == "" {
			return nil, errors.New("api_key feed requires an api key credential")
		}
		httpReq.Header.Set(header, creds.APIKey)
	case AuthBearer:
		if creds.Token == "" {
			return nil, errors.New("bearer feed requires a token credential")
		}
		httpReq.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch feed page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed page %d: %s: %s", page, resp.Status, strings.TrimSpace(string(body)))
	}

	var doc any
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed page %d: %w", page, err)
	}

	items, err := program.items(doc)
	if err != nil {
		return nil, fmt.Errorf("extract items from page %d: %w", page, err)
	}
	return items, nil
}

// fieldProgram holds the compiled JMESPath expressions for one feed.
type fieldProgram struct {
	itemsExpr jmespath.JMESPath
	exprs     map[string]jmespath.JMESPath
}

func compileFields(fields FieldMap) (*fieldProgram, error) {
	itemsExpr, err := jmespath.Compile(fields.Items)
	if err != nil {
		return nil, fmt.Errorf("compile fields.items: %w", err)
	}

	p := &fieldProgram{
		itemsExpr: itemsExpr,
		exprs:     make(map[string]jmespath.JMESPath),
	}
	for name, expr := range map[string]string{
		"source_id":    fields.SourceID,
		"url":          fields.URL,
		"title":        fields.Title,
		"company":      fields.Company,
		"description":  fields.Description,
		"requirements": fields.Requirements,
		"location":     fields.Location,
		"salary":       fields.Salary,
		"tags":         fields.Tags,
		"posted_at":    fields.PostedAt,
	} {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		compiled, err := jmespath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile fields.%s: %w", name, err)
		}
		p.exprs[name] = compiled
	}
	return p, nil
}

func (p *fieldProgram) items(doc any) ([]any, error) {
	result, err := p.itemsExpr.Search(doc)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	items, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("items expression yielded %T, want array", result)
	}
	return items, nil
}

func (p *fieldProgram) project(item any, source string) (model.NormalizedJob, *time.Time, error) {
	job := model.NormalizedJob{Source: source}

	sourceID, err := p.stringField(item, "source_id")
	if err != nil {
		return job, nil, err
	}
	job.SourceID = sourceID

	job.URL, err = p.stringField(item, "url")
	if err != nil {
		return job, nil, err
	}
	job.Title, err = p.stringField(item, "title")
	if err != nil {
		return job, nil, err
	}

	job.Company = p.optionalString(item, "company")
	job.Description = p.optionalString(item, "description")
	job.Requirements = optionalPtr(p.optionalString(item, "requirements"))
	job.Location = optionalPtr(p.optionalString(item, "location"))
	job.Salary = optionalPtr(p.optionalString(item, "salary"))
	job.Tags = p.tags(item)

	if raw, err := json.Marshal(item); err == nil {
		job.RawData = raw
	}

	if err := job.Validate(); err != nil {
		return job, nil, err
	}

	var postedAt *time.Time
	if ts := p.optionalString(item, "posted_at"); ts != "" {
		if parsed, err := parseTimestamp(ts); err == nil {
			postedAt = &parsed
		}
	}
	return job, postedAt, nil
}

func (p *fieldProgram) stringField(item any, name string) (string, error) {
	value := p.optionalString(item, name)
	if value == "" {
		return "", fmt.Errorf("item has no %s", name)
	}
	return value, nil
}

func (p *fieldProgram) optionalString(item any, name string) string {
	expr, ok := p.exprs[name]
	if !ok {
		return ""
	}
	result, err := expr.Search(item)
	if err != nil || result == nil {
		return ""
	}
	switch v := result.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func (p *fieldProgram) tags(item any) []string {
	expr, ok := p.exprs["tags"]
	if !ok {
		return nil
	}
	result, err := expr.Search(item)
	if err != nil || result == nil {
		return nil
	}
	raw, ok := result.([]any)
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok && strings.TrimSpace(s) != "" {
			tags = append(tags, strings.TrimSpace(s))
		}
	}
	return tags
}

func optionalPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var timestampLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	// Unix seconds are common in board APIs.
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
