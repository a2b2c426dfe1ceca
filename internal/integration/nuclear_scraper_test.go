package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockServer creates a test server that serves a fixed response and hands each request to seen
func mockServer(status int, contentType, body string, seen chan<- *http.Request) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			select {
			case seen <- r.Clone(context.Background()):
			default:
			}
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func htmlPlant(url string) entities.PlantDescriptor {
	return entities.PlantDescriptor{
		Key:        "ringhals",
		Name:       "Ringhals",
		URL:        url,
		SourceKind: entities.SourceHTMLEmbeddedJSON,
		Reactors:   []string{"R3", "R4"},
		Capacity:   map[string]float64{"R3": 1074, "R4": 1130},
	}
}

func apiPlant(url string) entities.PlantDescriptor {
	return entities.PlantDescriptor{
		Key:        "okg",
		Name:       "Oskarshamn",
		URL:        url,
		SourceKind: entities.SourceJSONAPI,
		Reactors:   []string{"O3"},
		Capacity:   map[string]float64{"O3": 1450},
	}
}

func TestFetchPlant_HTML(t *testing.T) {
	requests := make(chan *http.Request, 1)
	server := mockServer(http.StatusOK, "text/html", ringhalsPage, requests)
	defer server.Close()

	scraper := NewNuclearScraper(zap.NewNop())
	snap, err := scraper.FetchPlant(context.Background(), htmlPlant(server.URL+"/ringhals/produktion"))
	require.NoError(t, err)

	assert.Len(t, snap.Readings, 2)
	seen := <-requests
	assert.Equal(t, DefaultUserAgent, seen.Header.Get("User-Agent"))
	assert.Equal(t, "/ringhals/produktion", seen.URL.Path)
	assert.Empty(t, seen.URL.RawQuery)
}

func TestFetchPlant_APIAddsFormat(t *testing.T) {
	requests := make(chan *http.Request, 1)
	server := mockServer(http.StatusOK, "application/json", `{"value": 1450, "valueDate": "2024-01-01"}`, requests)
	defer server.Close()

	fetchedAt := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	scraper := NewNuclearScraper(zap.NewNop(), WithClock(func() time.Time { return fetchedAt }))
	snap, err := scraper.FetchPlant(context.Background(), apiPlant(server.URL+"/.netlify/functions/getReactorOutput"))
	require.NoError(t, err)

	seen := <-requests
	assert.Equal(t, "json", seen.URL.Query().Get("format"))
	assert.Equal(t, DefaultUserAgent, seen.Header.Get("User-Agent"))
	assert.Equal(t, fetchedAt, snap.Timestamp)
	require.Len(t, snap.Readings, 1)
	assert.Equal(t, 100.0, *snap.Readings[0].Percent)
}

func TestFetchPlant_FetchFailures(t *testing.T) {
	t.Run("non 2xx status", func(t *testing.T) {
		server := mockServer(http.StatusForbidden, "text/html", "go away", nil)
		defer server.Close()

		_, err := NewNuclearScraper(zap.NewNop()).FetchPlant(context.Background(), htmlPlant(server.URL))
		require.Error(t, err)
		assert.ErrorIs(t, err, entities.ErrFetchFailed)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		scraper := NewNuclearScraper(zap.NewNop(), WithTimeout(50*time.Millisecond))
		_, err := scraper.FetchPlant(context.Background(), apiPlant(server.URL))
		assert.ErrorIs(t, err, entities.ErrFetchFailed)
	})

	t.Run("connection refused", func(t *testing.T) {
		server := mockServer(http.StatusOK, "text/html", "", nil)
		url := server.URL
		server.Close()

		_, err := NewNuclearScraper(zap.NewNop()).FetchPlant(context.Background(), htmlPlant(url))
		assert.ErrorIs(t, err, entities.ErrFetchFailed)
	})

	t.Run("oversized body", func(t *testing.T) {
		server := mockServer(http.StatusOK, "text/html", strings.Repeat("x", maxBodyBytes+1), nil)
		defer server.Close()

		_, err := NewNuclearScraper(zap.NewNop()).FetchPlant(context.Background(), htmlPlant(server.URL))
		require.Error(t, err)
		assert.ErrorIs(t, err, entities.ErrFetchFailed)
		assert.NotErrorIs(t, err, entities.ErrExtractionFailed)
		assert.Contains(t, err.Error(), "exceeds 8 MiB")
	})

	t.Run("cancelled context", func(t *testing.T) {
		server := mockServer(http.StatusOK, "text/html", ringhalsPage, nil)
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewNuclearScraper(zap.NewNop()).FetchPlant(ctx, htmlPlant(server.URL))
		assert.ErrorIs(t, err, entities.ErrFetchFailed)
	})
}

func TestFetchPlant_ExtractionFailure(t *testing.T) {
	server := mockServer(http.StatusOK, "text/html", "<html><body>No data today</body></html>", nil)
	defer server.Close()

	_, err := NewNuclearScraper(zap.NewNop()).FetchPlant(context.Background(), htmlPlant(server.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrExtractionFailed)
	assert.NotErrorIs(t, err, entities.ErrFetchFailed)
}
