package store

import (
	"context"
	"testing"
)

func TestMemoryStoreSaveLoadRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	rec := Record{Kind: "snapshot", NodeID: "bank", PeriodID: 3, Data: []byte(`{"periodId":3}`)}
	if err := m.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, ok, err := m.Load(ctx, "snapshot", "bank", 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to be found")
	}
	if string(data) != `{"periodId":3}` {
		t.Fatalf("unexpected data: %s", data)
	}
}

func TestMemoryStoreLoadMissingReturnsNotFound(t *testing.T) {
	m := NewMemoryStore()
	_, ok, err := m.Load(context.Background(), "snapshot", "bank", 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected not found on empty store")
	}
}

func TestMemoryStoreLoadLatestReturnsHighestPeriod(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	for _, p := range []uint64{0, 2, 1} {
		rec := Record{Kind: "snapshot", NodeID: "mintette-0", PeriodID: p, Data: []byte("data")}
		if err := m.Save(ctx, rec); err != nil {
			t.Fatalf("save period %d: %v", p, err)
		}
	}

	_, periodID, ok, err := m.LoadLatest(ctx, "snapshot", "mintette-0")
	if err != nil {
		t.Fatalf("loadLatest: %v", err)
	}
	if !ok {
		t.Fatalf("expected a latest record")
	}
	if periodID != 2 {
		t.Fatalf("expected latest period 2, got %d", periodID)
	}
}

func TestMemoryStoreLoadLatestEmptyNotFound(t *testing.T) {
	m := NewMemoryStore()
	_, _, ok, err := m.LoadLatest(context.Background(), "snapshot", "unknown-node")
	if err != nil {
		t.Fatalf("loadLatest: %v", err)
	}
	if ok {
		t.Fatalf("expected not found for unknown node")
	}
}

func TestMemoryStoreKeepsNodesAndKindsIndependent(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.Save(ctx, Record{Kind: "snapshot", NodeID: "bank", PeriodID: 0, Data: []byte("bank-data")}); err != nil {
		t.Fatalf("save bank: %v", err)
	}
	if err := m.Save(ctx, Record{Kind: "snapshot", NodeID: "mintette-0", PeriodID: 0, Data: []byte("mintette-data")}); err != nil {
		t.Fatalf("save mintette: %v", err)
	}

	bankData, ok, err := m.Load(ctx, "snapshot", "bank", 0)
	if err != nil || !ok {
		t.Fatalf("load bank: ok=%v err=%v", ok, err)
	}
	if string(bankData) != "bank-data" {
		t.Fatalf("bank/mintette records leaked into each other: got %s", bankData)
	}
}
