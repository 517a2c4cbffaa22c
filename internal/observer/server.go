// Package observer exposes a read-only HTTP surface over the last completed
// pipeline run, adapted from the teacher's api/server.go (gorilla/mux + rs/cors)
// and generalized from single-price lookups to the full AggregatedQuote/
// BatchStatus model (spec.md §4.8 output, §6 "observability" ambient concern).
package observer

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/neooracle/pricefeed/internal/publisher"
	"github.com/neooracle/pricefeed/internal/quote"
)

// Snapshot is the state of the most recently completed pipeline run.
type Snapshot struct {
	Quotes      []quote.AggregatedQuote
	BatchID     string
	CompletedAt time.Time
}

// Store holds the latest Snapshot, replaced through Update and read
// concurrently by HTTP handlers.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Update replaces the stored snapshot.
func (s *Store) Update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

func (s *Store) current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Server is the read-only observability HTTP surface.
type Server struct {
	router    *mux.Router
	store     *Store
	publisher *publisher.Publisher
	log       zerolog.Logger
}

// New builds a Server over store (filled by whoever calls Store.Update) and pub
// (for batch-status lookups).
func New(store *Store, pub *publisher.Publisher, logger zerolog.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		store:     store,
		publisher: pub,
		log:       logger.With().Str("component", "observer").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/v1/prices", s.handleListPrices()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/prices/{symbol}", s.handleGetPrice()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/batches/{batchId}", s.handleGetBatchStatus()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/health", s.handleHealth()).Methods(http.MethodGet)
}

// Handler returns the CORS-wrapped router ready for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.router)
}

func (s *Server) handleListPrices() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.store.current()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"batchId":     snap.BatchID,
			"completedAt": snap.CompletedAt,
			"quotes":      snap.Quotes,
		})
	}
}

func (s *Server) handleGetPrice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := quote.CanonicalSymbol(mux.Vars(r)["symbol"])
		snap := s.store.current()
		for _, q := range snap.Quotes {
			if q.Symbol == symbol {
				writeJSON(w, http.StatusOK, q)
				return
			}
		}
		http.Error(w, "symbol not found in last run", http.StatusNotFound)
	}
}

func (s *Server) handleGetBatchStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID := mux.Vars(r)["batchId"]
		status := s.publisher.Status(batchID)
		writeJSON(w, http.StatusOK, status)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return
	}
}
