package observer

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/neooracle/pricefeed/internal/attestation"
	"github.com/neooracle/pricefeed/internal/publisher"
	"github.com/neooracle/pricefeed/internal/quote"
)

func testPublisher(t *testing.T) *publisher.Publisher {
	t.Helper()
	attestor, err := attestation.New(t.TempDir(), attestation.Secrets{}, zerolog.Nop())
	require.NoError(t, err)
	return publisher.New(publisher.Config{}, nil, attestor, zerolog.Nop())
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	store := NewStore()
	srv := New(store, testPublisher(t), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetPrice_NotFoundWhenNoSnapshot(t *testing.T) {
	store := NewStore()
	srv := New(store, testPublisher(t), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prices/BTCUSDT", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetPrice_ReturnsQuoteFromSnapshot(t *testing.T) {
	store := NewStore()
	store.Update(Snapshot{
		Quotes: []quote.AggregatedQuote{
			{Symbol: "BTCUSDT", Price: decimal.RequireFromString("50000"), Confidence: 100, AggregatedAt: time.Now()},
		},
		BatchID:     "batch-1",
		CompletedAt: time.Now(),
	})
	srv := New(store, testPublisher(t), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prices/BTCUSDT", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetBatchStatus_UnknownForUnrecordedBatch(t *testing.T) {
	store := NewStore()
	srv := New(store, testPublisher(t), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/nonexistent", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
