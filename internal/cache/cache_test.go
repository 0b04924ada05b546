package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"docvault/client/internal/gateway"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := New("redis://"+s.Addr(), time.Minute, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create cache store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func TestPutGetVersions(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	versions := []gateway.Version{
		{ID: "v2", VersionNumber: 2, IsCurrent: true},
		{ID: "v1", VersionNumber: 1},
	}
	if err := store.PutVersions(ctx, "doc-1", versions); err != nil {
		t.Fatalf("PutVersions failed: %v", err)
	}

	got, ok := store.GetVersions(ctx, "doc-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[0].ID != "v2" || !got[0].IsCurrent {
		t.Errorf("unexpected versions: %+v", got)
	}
}

func TestGetMiss(t *testing.T) {
	store, _ := setupTestStore(t)

	if _, ok := store.GetVersions(context.Background(), "nope"); ok {
		t.Error("expected a miss for an unknown document")
	}
}

func TestInvalidateDocumentDropsAllScopes(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.PutDocument(ctx, gateway.Document{ID: "doc-1", Title: "Plan"}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutVersions(ctx, "doc-1", []gateway.Version{{ID: "v1"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutAuditLog(ctx, "doc-1", []gateway.AuditEntry{{ID: 1, Action: "create"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutMetadata(ctx, "doc-1", gateway.Metadata{Title: "Plan"}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutDocuments(ctx, []gateway.Document{{ID: "doc-1"}}); err != nil {
		t.Fatal(err)
	}
	// Unrelated document must survive.
	if err := store.PutVersions(ctx, "doc-2", []gateway.Version{{ID: "x1"}}); err != nil {
		t.Fatal(err)
	}

	if err := store.InvalidateDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("InvalidateDocument failed: %v", err)
	}

	if _, ok := store.GetDocument(ctx, "doc-1"); ok {
		t.Error("document detail should be gone")
	}
	if _, ok := store.GetVersions(ctx, "doc-1"); ok {
		t.Error("version list should be gone")
	}
	if _, ok := store.GetAuditLog(ctx, "doc-1"); ok {
		t.Error("audit log should be gone")
	}
	if _, ok := store.GetMetadata(ctx, "doc-1"); ok {
		t.Error("metadata should be gone")
	}
	if _, ok := store.GetDocuments(ctx); ok {
		t.Error("global collection should be gone")
	}
	if _, ok := store.GetVersions(ctx, "doc-2"); !ok {
		t.Error("unrelated document should survive invalidation")
	}
}

func TestInvalidateTags(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.PutTags(ctx, []gateway.Tag{{ID: 1, Key: "priority"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.InvalidateTags(ctx); err != nil {
		t.Fatalf("InvalidateTags failed: %v", err)
	}
	if _, ok := store.GetTags(ctx); ok {
		t.Error("tags should be gone")
	}
}

func TestClearWipesOnlyClientKeys(t *testing.T) {
	store, s := setupTestStore(t)
	ctx := context.Background()

	if err := store.PutDocument(ctx, gateway.Document{ID: "doc-1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutTags(ctx, []gateway.Tag{{ID: 1, Key: "team"}}); err != nil {
		t.Fatal(err)
	}
	// Foreign key outside the client prefix.
	s.Set("other:app", "keep me")

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, ok := store.GetDocument(ctx, "doc-1"); ok {
		t.Error("client entry should be cleared on sign-out")
	}
	if _, ok := store.GetTags(ctx); ok {
		t.Error("tag collection should be cleared on sign-out")
	}
	if !s.Exists("other:app") {
		t.Error("keys outside the client prefix must survive")
	}
}

func TestEntryExpiry(t *testing.T) {
	store, s := setupTestStore(t)
	ctx := context.Background()

	if err := store.PutMetadata(ctx, "doc-1", gateway.Metadata{Title: "Plan"}); err != nil {
		t.Fatal(err)
	}

	s.FastForward(2 * time.Minute)

	if _, ok := store.GetMetadata(ctx, "doc-1"); ok {
		t.Error("entry should expire after the configured ttl")
	}
}
