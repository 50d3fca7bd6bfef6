package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/game"
	"github.com/MJE43/guessrun/internal/store"
)

// Config wires the server's collaborators. Nil fields take defaults.
type Config struct {
	DB      store.DB
	Catalog *effects.Catalog
	Tuning  *game.Tuning
	Arcs    []*game.Arc
	Logger  *log.Logger
	// GameLogger receives session logs; nil discards them.
	GameLogger *log.Logger
}

// Server handles HTTP requests.
type Server struct {
	db           store.DB
	catalog      *effects.Catalog
	tuning       game.Tuning
	arcs         []*game.Arc
	sessions     *sessionRegistry
	errorHandler *ErrorHandler
	logger       *log.Logger
	gameLogger   *log.Logger
	startTime    time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = effects.DefaultCatalog()
	}
	tuning := game.DefaultTuning()
	if cfg.Tuning != nil {
		tuning = *cfg.Tuning
	}

	s := &Server{
		db:           cfg.DB,
		catalog:      catalog,
		tuning:       tuning,
		arcs:         cfg.Arcs,
		sessions:     newSessionRegistry(),
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		gameLogger:   cfg.GameLogger,
		startTime:    time.Now(),
	}
	logger.Printf("server_startup effects=%d database_enabled=%v", catalog.Len(), s.db != nil)
	return s
}

// Routes sets up the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		// the feed is long-lived and must stay outside the request timeout
		r.Get("/sessions/{id}/feed", s.handleFeed)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/catalog", s.handleCatalog)
			r.Get("/version", s.handleVersion)

			r.Post("/sessions", s.handleCreateSession)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Get("/transcript", s.handleTranscript)
				r.Get("/transcript.csv", s.handleTranscriptCSV)

				r.Post("/start", s.handleStart)
				r.Post("/guess", s.handleGuess)
				r.Post("/next", s.handleNext)

				r.Post("/shop/open", s.handleOpenShop)
				r.Post("/shop/buy", s.handleBuy)
				r.Post("/shop/sell", s.handleSell)
				r.Post("/shop/reroll", s.handleReroll)
				r.Post("/scripts/use", s.handleUseScript)

				r.Post("/apps/open", s.handleOpenApp)
				r.Post("/apps/close", s.handleCloseApp)
				r.Post("/apps/trade", s.handleTrade)
				r.Post("/apps/scan", s.handleScan)
				r.Post("/apps/sliders", s.handleSliders)

				r.Post("/save", s.handleSave)
				r.Post("/load", s.handleLoad)
				r.Get("/export", s.handleExport)
				r.Post("/import", s.handleImport)
			})

			r.Get("/slots", s.handleListSlots)
			r.Delete("/slots/{slotID}", s.handleDeleteSlot)
		})
	})

	return r
}

// Shutdown flushes session transcripts.
func (s *Server) Shutdown() {
	for _, ls := range s.sessions.all() {
		ls.mu.Lock()
		ls.close()
		ls.mu.Unlock()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decode reads a JSON body into v. An empty body leaves v unchanged.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.errorHandler.HandleValidationError(w, r, "body", err.Error())
		return false
	}
	return true
}
