// Package rssfeed implements an RSS 2.0 source adapter. Many job boards
// expose category feeds; each database source row configures one or more
// feed URLs and the adapter merges their items.
package rssfeed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/zapply/ingest-api/internal/adapters/sources"
	"github.com/zapply/ingest-api/internal/domain/model"
)

const (
	defaultLookBackDays = 1
	maxFeedBytes        = 5 << 20 // 5 MiB
)

// Settings is the per-source configuration document for RSS feeds.
type Settings struct {
	FeedURLs []string `json:"feed_urls"`
	// Company overrides the feed channel title as the company value. Feeds
	// aggregating many employers usually leave this empty and rely on the
	// item title convention "Company: Role".
	Company string `json:"company,omitempty"`
}

// Validate checks the settings document.
func (s *Settings) Validate() error {
	if len(s.FeedURLs) == 0 {
		return errors.New("at least one feed url is required")
	}
	for _, raw := range s.FeedURLs {
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid feed url %q: %w", raw, err)
		}
	}
	return nil
}

// Adapter scrapes RSS 2.0 feeds.
type Adapter struct {
	name    string
	label   string
	client  *http.Client
	limiter *rate.Limiter
}

// Options configures an Adapter.
type Options struct {
	Name  string
	Label string
	// Client is the HTTP client used for feed requests. Defaults to a
	// client with a 30s timeout.
	Client *http.Client
	// RequestsPerSecond throttles feed requests. Zero disables throttling.
	RequestsPerSecond float64
}

// New builds an RSS feed adapter.
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

// RequiresLogin implements sources.Adapter. RSS feeds are public.
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

	lookBack := req.LookBackDays
	if lookBack <= 0 {
		lookBack = defaultLookBackDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -lookBack)

	var out []model.NormalizedJob
	seen := make(map[string]struct{})
	for _, feedURL := range settings.FeedURLs {
		channel, err := a.fetch(ctx, feedURL)
		if err != nil {
			return nil, err
		}
		req.Report("feed %s: %d items", feedURL, len(channel.Items))

		for _, item := range channel.Items {
			job, postedAt, err := item.normalize(a.name, settings.Company, channel.Title)
			if err != nil {
				req.Report("skipping malformed item: %v", err)
				continue
			}
			if postedAt != nil && postedAt.Before(cutoff) {
				continue
			}
			if _, dup := seen[job.SourceID]; dup {
				continue
			}
			seen[job.SourceID] = struct{}{}
			if _, known := req.KnownIDs[job.SourceID]; known {
				continue
			}
			out = append(out, job)
			if req.JobLimit > 0 && len(out) >= req.JobLimit {
				req.Report("job limit %d reached", req.JobLimit)
				return out, nil
			}
		}
	}
	return out, nil
}

func (a *Adapter) fetch(ctx context.Context, feedURL string) (*channel, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed %s: %s", feedURL, resp.Status)
	}

	var doc rss
	dec := xml.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed %s: %w", feedURL, err)
	}
	return &doc.Channel, nil
}

type rss struct {
	XMLName xml.Name `xml:"rss"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title string `xml:"title"`
	Items []item `xml:"item"`
}

type item struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        string   `xml:"guid"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category"`
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

func (it *item) normalize(source, companyOverride, channelTitle string) (model.NormalizedJob, *time.Time, error) {
	sourceID := strings.TrimSpace(it.GUID)
	if sourceID == "" {
		sourceID = strings.TrimSpace(it.Link)
	}

	title := strings.TrimSpace(it.Title)
	company := strings.TrimSpace(companyOverride)

	// "Company: Role" is the common convention in aggregator feeds.
	if company == "" {
		if idx := strings.Index(title, ": "); idx > 0 {
			company = title[:idx]
			title = strings.TrimSpace(title[idx+2:])
		} else {
			company = strings.TrimSpace(channelTitle)
		}
	}

	job := model.NormalizedJob{
		Source:      source,
		SourceID:    sourceID,
		URL:         strings.TrimSpace(it.Link),
		Title:       title,
		Company:     company,
		Description: stripMarkup(it.Description),
		Tags:        cleanTags(it.Categories),
	}
	if raw, err := json.Marshal(it); err == nil {
		job.RawData = raw
	}
	if err := job.Validate(); err != nil {
		return job, nil, err
	}

	var postedAt *time.Time
	if ts := strings.TrimSpace(it.PubDate); ts != "" {
		if parsed, err := parsePubDate(ts); err == nil {
			postedAt = &parsed
		}
	}
	return job, postedAt, nil
}

func stripMarkup(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func cleanTags(categories []string) []string {
	tags := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			tags = append(tags, c)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

func parsePubDate(value string) (time.Time, error) {
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized pubDate %q", value)
}
