package main

import (
	"log"
	"os"

	"github.com/seantiz/runbook/internal/api"
	"github.com/seantiz/runbook/internal/config"
	"github.com/seantiz/runbook/internal/engine"
	"github.com/seantiz/runbook/internal/scripts"
	"github.com/seantiz/runbook/internal/store"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("runbook: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"scripts_dir", cfg.ScriptsDir,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	catalog, err := scripts.NewCatalog(cfg.ScriptsDir, logger)
	if err != nil {
		log.Fatalf("failed to load script catalog: %v", err)
	}
	if err := catalog.Watch(); err != nil {
		logger.Warn("script catalog watch disabled", "error", err)
	}
	defer catalog.Close()

	eng := engine.NewEngine(db, cfg.Shell, logger)
	defer eng.Shutdown()

	srv := api.NewServer(cfg.ListenAddr, eng, db, catalog, cfg.TimeoutS, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
