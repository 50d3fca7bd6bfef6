package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/MJE43/guessrun/internal/api"
	"github.com/MJE43/guessrun/internal/config"
	"github.com/MJE43/guessrun/internal/effects"
	"github.com/MJE43/guessrun/internal/game"
	"github.com/MJE43/guessrun/internal/scripting"
	"github.com/MJE43/guessrun/internal/store"
)

func main() {
	log.Printf("Starting guessrun %s (Go %s)...", api.EngineVersion, runtime.Version())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var tuning *game.Tuning
	if cfg.TuningPath != "" {
		t, err := game.LoadTuning(cfg.TuningPath)
		if err != nil {
			log.Fatalf("tuning: %v", err)
		}
		tuning = &t
		log.Printf("loaded tuning from %s", cfg.TuningPath)
	}

	catalog, err := buildCatalog(cfg.ScriptsDir)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	var db store.DB
	if !cfg.NoDB {
		sqlDB, err := store.NewSQLiteDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("database open failed: %v", err)
		}
		if err := sqlDB.Migrate(); err != nil {
			log.Fatalf("database migrate failed: %v", err)
		}
		defer sqlDB.Close()
		db = sqlDB
		log.Printf("database ready at %s", cfg.DBPath)
	}

	var gameLogger *log.Logger
	if cfg.GameLog {
		gameLogger = log.New(os.Stdout, "[GAME] ", log.LstdFlags)
	}

	server := api.NewServer(api.Config{
		DB:         db,
		Catalog:    catalog,
		Tuning:     tuning,
		GameLogger: gameLogger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	server.Shutdown()
}

// buildCatalog registers the builtin effects followed by any scripted packs.
func buildCatalog(scriptsDir string) (*effects.Catalog, error) {
	catalog, err := effects.NewCatalog(effects.Builtin()...)
	if err != nil {
		return nil, err
	}
	if scriptsDir == "" {
		return catalog, nil
	}
	templates, err := scripting.LoadDir(scriptsDir)
	if err != nil {
		return nil, err
	}
	for _, t := range templates {
		if err := catalog.Register(t); err != nil {
			return nil, err
		}
	}
	log.Printf("loaded %d scripted effects from %s", len(templates), scriptsDir)
	return catalog, nil
}
