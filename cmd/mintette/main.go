// Command mintette runs one RSCoin mintette node: the §4.C/§4.D storage and
// state machine bound to the §4.G RPC surface, following the wiring shape of
// the teacher's cmd/engine/main.go (env-driven config, optional persistence,
// websocket hub, then serve).
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/rawblock/rscoin/internal/api"
	"github.com/rawblock/rscoin/internal/config"
	"github.com/rawblock/rscoin/internal/mintette"
	"github.com/rawblock/rscoin/internal/store"
	"github.com/rawblock/rscoin/pkg/rscoin"
)

const snapshotKind = "mintette-snapshot"

func main() {
	log.Println("Starting RSCoin mintette node...")

	cfg, err := config.Load("MINTETTE_SECRET_KEY")
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	mintetteID, err := strconv.Atoi(getEnvOrDefault("MINTETTE_ID", "0"))
	if err != nil {
		log.Fatalf("FATAL: MINTETTE_ID: %v", err)
	}
	nodeID := "mintette-" + strconv.Itoa(mintetteID)

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

	initial := mintette.NewState(rscoin.MintetteID(mintetteID), nil, nil, cfg.OwnerFanout)
	if data, _, ok, err := persist.LoadLatest(context.Background(), snapshotKind, nodeID); err != nil {
		log.Printf("Warning: snapshot load failed: %v", err)
	} else if ok {
		var restored mintette.State
		if err := json.Unmarshal(data, &restored); err != nil {
			log.Printf("Warning: snapshot corrupt, starting fresh: %v", err)
		} else {
			initial = restored
			log.Printf("Restored snapshot at period %d", restored.PeriodID)
		}
	}
	mstore := mintette.NewStorage(initial)

	wsHub := api.NewHub()
	go wsHub.Run()

	go snapshotLoop(persist, mstore, nodeID, cfg.SnapshotInterval)

	r := api.SetupMintetteRouter(mstore, cfg.SecretKey, wsHub, cfg.APIAuthToken)

	log.Printf("Mintette %d running on :%s", mintetteID, cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// snapshotLoop periodically persists the live state so a restart can
// resume via LoadLatest instead of replaying from genesis, mirroring
// cmd/engine/main.go's pattern of a background goroutine running alongside
// the HTTP server rather than blocking startup on it.
func snapshotLoop(persist store.Store, mstore *mintette.Storage, nodeID string, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		snap := mstore.Snapshot()
		data, err := json.Marshal(snap)
		if err != nil {
			log.Printf("Warning: snapshot marshal failed: %v", err)
			continue
		}
		rec := store.Record{Kind: snapshotKind, NodeID: nodeID, PeriodID: snap.PeriodID, Data: data}
		if err := persist.Save(context.Background(), rec); err != nil {
			log.Printf("Warning: snapshot save failed: %v", err)
		}
	}
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
