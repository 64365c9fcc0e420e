package store

import (
	"path/filepath"
	"testing"

	"github.com/MakaremHind/human-in-loop-warehouse/config"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOrderJournal(t *testing.T) {
	db := testDB(t)

	rec := &OrderRecord{
		CorrelationID: "cid-1",
		SenderID:      "OrderGenerator",
		StartModule:   "conveyor_02",
		GoalModule:    "container_01",
		BoxID:         7,
		BoxColor:      "red",
		BoxType:       "small",
	}
	if err := db.RecordDispatch(rec); err != nil {
		t.Fatalf("record dispatch: %v", err)
	}

	got, err := db.GetOrder("cid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "dispatched" {
		t.Errorf("Status = %q, want dispatched", got.Status)
	}
	if got.StartModule != "conveyor_02" || got.GoalModule != "container_01" {
		t.Errorf("route = %q -> %q", got.StartModule, got.GoalModule)
	}
	if got.BoxID != 7 || got.BoxColor != "red" {
		t.Errorf("cargo = %d %q", got.BoxID, got.BoxColor)
	}
	if got.ResolvedAt != nil {
		t.Error("ResolvedAt should be nil before resolution")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	if err := db.ResolveOrder("cid-1", "success", "mock_handler"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ = db.GetOrder("cid-1")
	if got.Status != "success" || got.ResponderID != "mock_handler" {
		t.Errorf("after resolve: status=%q responder=%q", got.Status, got.ResponderID)
	}
	if got.ResolvedAt == nil {
		t.Error("ResolvedAt should be set after resolution")
	}
}

func TestGetOrderMissing(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetOrder("nope"); err == nil {
		t.Fatal("expected error for unknown correlation id")
	}
}

func TestDuplicateCorrelationIDRejected(t *testing.T) {
	db := testDB(t)

	if err := db.RecordDispatch(&OrderRecord{CorrelationID: "dup"}); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if err := db.RecordDispatch(&OrderRecord{CorrelationID: "dup"}); err == nil {
		t.Fatal("expected unique constraint violation")
	}
}

func TestListRecentOrdersNewestFirst(t *testing.T) {
	db := testDB(t)

	for _, cid := range []string{"a", "b", "c"} {
		if err := db.RecordDispatch(&OrderRecord{CorrelationID: cid}); err != nil {
			t.Fatalf("dispatch %s: %v", cid, err)
		}
	}

	orders, err := db.ListRecentOrders(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("len = %d, want 2", len(orders))
	}
	if orders[0].CorrelationID != "c" || orders[1].CorrelationID != "b" {
		t.Errorf("order = %q, %q, want c, b", orders[0].CorrelationID, orders[1].CorrelationID)
	}
}

func TestOrderEventTrail(t *testing.T) {
	db := testDB(t)

	db.RecordDispatch(&OrderRecord{CorrelationID: "cid-2"})
	db.ResolveOrder("cid-2", "cancelled", "")

	events, err := db.ListOrderEvents("cid-2")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Status != "dispatched" || events[1].Status != "cancelled" {
		t.Errorf("trail = %q, %q", events[0].Status, events[1].Status)
	}
}

func TestCountOrdersByStatus(t *testing.T) {
	db := testDB(t)

	db.RecordDispatch(&OrderRecord{CorrelationID: "x"})
	db.RecordDispatch(&OrderRecord{CorrelationID: "y"})
	db.ResolveOrder("y", "timeout", "")

	counts, err := db.CountOrdersByStatus()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["dispatched"] != 1 || counts["timeout"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestAdminUsers(t *testing.T) {
	db := testDB(t)

	exists, err := db.AdminUserExists()
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("fresh db should have no admin users")
	}

	if err := db.CreateAdminUser("admin", "hash"); err != nil {
		t.Fatalf("create: %v", err)
	}
	u, err := db.GetAdminUser("admin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.PasswordHash != "hash" {
		t.Errorf("hash = %q", u.PasswordHash)
	}
	if exists, _ = db.AdminUserExists(); !exists {
		t.Error("expected admin user to exist")
	}
}

func TestRebind(t *testing.T) {
	got := Rebind(`INSERT INTO t (a, b) VALUES (?, ?)`)
	want := `INSERT INTO t (a, b) VALUES ($1, $2)`
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}
}
