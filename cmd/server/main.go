package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/speak2fill/speak2fill/internal/engine"
	"github.com/speak2fill/speak2fill/internal/eventbus"
	"github.com/speak2fill/speak2fill/internal/infer"
	"github.com/speak2fill/speak2fill/internal/lang"
	"github.com/speak2fill/speak2fill/internal/ocr"
	"github.com/speak2fill/speak2fill/internal/server"
	"github.com/speak2fill/speak2fill/internal/speech"
	"github.com/speak2fill/speak2fill/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := os.Getenv("SPEAK2FILL_DB_PATH")
	if dsn == "" {
		dsn = "file:speak2fill.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	// One connection serializes session updates; concurrent chat turns for
	// the same session queue instead of clobbering each other.
	db.SetMaxOpenConns(1)
	defer db.Close()

	st := store.NewSQLiteStore(db)
	if err := st.Init(ctx); err != nil {
		log.Fatalf("initializing database schema: %v", err)
	}
	log.Println("database initialized")

	phrases, err := lang.Load()
	if err != nil {
		log.Fatalf("loading phrase tables: %v", err)
	}

	bus := eventbus.New(256)
	bus.Subscribe("log", eventbus.NewLogConsumer())
	bus.Start(ctx)
	defer bus.Stop()

	ocrClient := ocr.NewClient(envOr("OCR_SERVICE_URL", "http://localhost:8501"))
	inferClient := infer.NewClient(os.Getenv("GEMINI_API_KEY"))
	speechClient := speech.NewClient(os.Getenv("SARVAM_API_KEY"))

	eng := engine.New(st, phrases, bus)

	port := 8080
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	if err := server.Run(ctx, server.Config{
		Port:        port,
		Store:       st,
		Engine:      eng,
		OCR:         ocrClient,
		Infer:       inferClient,
		Transcriber: speechClient,
		Synthesizer: speechClient,
		Bus:         bus,
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
