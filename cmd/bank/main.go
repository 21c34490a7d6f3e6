// Command bank runs the RSCoin Bank node: the §4.E/§4.F storage and period
// engine bound to the §4.G RPC surface, wired the way cmd/engine/main.go
// wires its own dependencies — env-driven config, optional persistence,
// websocket hub for explorer broadcast, then serve.
package main

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/rawblock/rscoin/internal/api"
	"github.com/rawblock/rscoin/internal/bank"
	"github.com/rawblock/rscoin/internal/config"
	"github.com/rawblock/rscoin/internal/store"
	"github.com/rawblock/rscoin/pkg/rscoin"
)

const (
	snapshotKind = "bank-snapshot"
	bankNodeID   = "bank"
)

func main() {
	log.Println("Starting RSCoin bank node...")

	cfg, err := config.Load("BANK_SECRET_KEY")
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	var persist store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.Connect(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, falling back to in-memory store: %v", err)
			persist = store.NewMemoryStore()
		} else {
			defer pg.Close()
			persist = pg
		}
	} else {
		log.Println("DATABASE_URL not set — running with in-memory store only")
		persist = store.NewMemoryStore()
	}

	bankAddress := rscoin.NewAddress(cfg.SecretKey.Public())
	initial := bank.NewState(bankAddress, cfg.OwnerFanout)
	if data, _, ok, err := persist.LoadLatest(context.Background(), snapshotKind, bankNodeID); err != nil {
		log.Printf("Warning: snapshot load failed: %v", err)
	} else if ok {
		var restored bank.State
		if err := json.Unmarshal(data, &restored); err != nil {
			log.Printf("Warning: snapshot corrupt, starting fresh: %v", err)
		} else {
			initial = restored
			log.Printf("Restored snapshot at period %d", restored.PeriodID)
		}
	}
	bstore := bank.NewStorage(initial)

	wsHub := api.NewHub()
	go wsHub.Run()

	notifier := bank.NewNotifier(api.BroadcastPeriodEvent(wsHub))

	go snapshotLoop(persist, bstore, cfg.SnapshotInterval)

	r := api.SetupBankRouter(bstore, cfg.SecretKey, wsHub, notifier, cfg.APIAuthToken)

	log.Printf("Bank running on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// snapshotLoop mirrors cmd/mintette's own: persist the live state on a
// timer so a restart resumes from the last snapshot instead of genesis.
func snapshotLoop(persist store.Store, bstore *bank.Storage, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		snap := bstore.Snapshot()
		data, err := json.Marshal(snap)
		if err != nil {
			log.Printf("Warning: snapshot marshal failed: %v", err)
			continue
		}
		rec := store.Record{Kind: snapshotKind, NodeID: bankNodeID, PeriodID: snap.PeriodID, Data: data}
		if err := persist.Save(context.Background(), rec); err != nil {
			log.Printf("Warning: snapshot save failed: %v", err)
		}
	}
}
