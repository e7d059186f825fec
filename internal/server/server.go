// Package server assembles all HTTP handlers and starts the server.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/speak2fill/speak2fill/internal/engine"
	"github.com/speak2fill/speak2fill/internal/eventbus"
	"github.com/speak2fill/speak2fill/internal/handler"
	"github.com/speak2fill/speak2fill/internal/live"
	"github.com/speak2fill/speak2fill/internal/store"
)

// Config holds server configuration.
type Config struct {
	Port        int
	Store       store.Store
	Engine      *engine.Engine
	OCR         handler.OCRService
	Infer       handler.FieldInferrer
	Transcriber handler.Transcriber
	Synthesizer handler.Synthesizer
	Bus         *eventbus.Bus
}

// Routes builds the full router. Split from Run so tests can exercise the
// route table without binding a port.
func Routes(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	ah := handler.NewAnalyzeHandler(cfg.Store, cfg.OCR, cfg.Infer, cfg.Bus)
	ch := handler.NewChatHandler(cfg.Engine)
	sh := handler.NewSessionHandler(cfg.Store)
	sph := handler.NewSpeechHandler(cfg.Store, cfg.Transcriber, cfg.Synthesizer)
	lh := live.NewHandler(cfg.Engine)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze-form", ah.AnalyzeForm)
		r.Post("/chat", ch.Chat)
		r.Get("/sessions/{id}", sh.GetSession)
		r.Get("/sessions/{id}/image", sh.GetImage)
		r.Post("/stt", sph.Transcribe)
		r.Post("/tts", sph.Synthesize)
		r.Get("/live", lh.ServeHTTP)
	})

	return r
}

// Run starts the HTTP server with all routes registered and shuts it down
// when ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("starting server on %s", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           Routes(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
