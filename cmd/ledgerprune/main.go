package main

import (
	"context"
	"flag"
	"log"
	"time"

	"glazestudio/internal/config"
	"glazestudio/internal/database"
	"glazestudio/internal/repository"
)

func main() {
	olderThan := flag.Duration("older-than", 30*24*time.Hour, "drop creation keys last touched before now minus this")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.Ledger.DSN, nil)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	ledger := repository.NewCreationLedger(db)
	if err := ledger.Migrate(); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	n, err := ledger.Prune(context.Background(), time.Now().Add(-*olderThan))
	if err != nil {
		log.Fatalf("prune slot_creation_keys failed: %v", err)
	}
	log.Printf("ledger prune completed: slot_creation_keys=%d", n)
}
