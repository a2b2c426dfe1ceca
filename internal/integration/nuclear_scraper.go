// Package integration handles external service interactions
package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single plant request
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent identifies as a browser; some plant pages reject default client identifiers
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	maxBodyBytes = 8 << 20
)

// NuclearScraper fetches and normalizes production data for one plant at a time
type NuclearScraper struct {
	httpClient *http.Client
	userAgent  string
	logger     *zap.Logger
	now        func() time.Time
	extractors map[entities.SourceKind]Extractor
}

// Option configures a NuclearScraper
type Option func(*NuclearScraper)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(s *NuclearScraper) { s.httpClient = c }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(s *NuclearScraper) {
		c := *s.httpClient
		c.Timeout = d
		s.httpClient = &c
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(s *NuclearScraper) { s.userAgent = ua }
}

// WithClock sets the clock used as the fallback snapshot timestamp
func WithClock(now func() time.Time) Option {
	return func(s *NuclearScraper) { s.now = now }
}

// NewNuclearScraper creates a new plant data scraper
func NewNuclearScraper(logger *zap.Logger, opts ...Option) *NuclearScraper {
	logger = logger.Named("scraper")
	s := &NuclearScraper{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  DefaultUserAgent,
		logger:     logger,
		now:        time.Now,
		extractors: map[entities.SourceKind]Extractor{
			entities.SourceHTMLEmbeddedJSON: NewEmbeddedJSONExtractor(logger),
			entities.SourceJSONAPI:          NewAPIExtractor(logger),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchPlant retrieves one plant's source and extracts a snapshot from it.
// Transport errors are reported as entities.ErrFetchFailed, payload problems as entities.ErrExtractionFailed.
func (s *NuclearScraper) FetchPlant(ctx context.Context, plant entities.PlantDescriptor) (*entities.PlantSnapshot, error) {
	extractor, ok := s.extractors[plant.SourceKind]
	if !ok {
		return nil, entities.ExtractionFailed(plant.Key, fmt.Errorf("unknown source kind %q", plant.SourceKind))
	}

	endpoint, err := requestURL(plant)
	if err != nil {
		return nil, entities.FetchFailed(plant.Key, err)
	}

	s.logger.Info("Sending HTTP request to plant source",
		zap.String("plant", plant.Key), zap.String("url", endpoint))

	body, err := s.get(ctx, endpoint)
	if err != nil {
		return nil, entities.FetchFailed(plant.Key, err)
	}
	fetchedAt := s.now()

	snapshot, err := extractor.Extract(body, plant, fetchedAt)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Successfully extracted plant data",
		zap.String("plant", plant.Key),
		zap.Int("readings", len(snapshot.Readings)),
		zap.Time("timestamp", snapshot.Timestamp))
	return snapshot, nil
}

func (s *NuclearScraper) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d %s", res.StatusCode, http.StatusText(res.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d MiB", maxBodyBytes>>20)
	}
	return body, nil
}

// requestURL appends the format selector the JSON API needs
func requestURL(plant entities.PlantDescriptor) (string, error) {
	if plant.SourceKind != entities.SourceJSONAPI {
		return plant.URL, nil
	}
	u, err := url.Parse(plant.URL)
	if err != nil {
		return "", fmt.Errorf("invalid source url %q: %w", plant.URL, err)
	}
	q := u.Query()
	q.Set("format", "json")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
