package testsupport

import (
	"context"
	"testing"
	"time"

	"marquee/internal/catalog"
	"marquee/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem inserts a pending item and returns it.
func NewItem(t testing.TB, store *catalog.Store, providerID int64, title string) *catalog.Item {
	t.Helper()

	ctx := context.Background()
	if _, err := store.InsertItems(ctx, []catalog.NewItem{{ProviderID: providerID, Title: title, DiscoveredBy: "test"}}); err != nil {
		t.Fatalf("store.InsertItems: %v", err)
	}
	item, err := store.GetItemByProviderID(ctx, providerID)
	if err != nil || item == nil {
		t.Fatalf("store.GetItemByProviderID(%d): %v", providerID, err)
	}
	return item
}

// NewItemWithMetadata inserts an item and writes md as its fetched metadata.
func NewItemWithMetadata(t testing.TB, store *catalog.Store, providerID int64, md catalog.Metadata) *catalog.Item {
	t.Helper()

	item := NewItem(t, store, providerID, md.Title)
	ctx := context.Background()
	if err := store.UpdateMetadata(ctx, item.ID, md, time.Now()); err != nil {
		t.Fatalf("store.UpdateMetadata: %v", err)
	}
	updated, err := store.GetItem(ctx, item.ID)
	if err != nil || updated == nil {
		t.Fatalf("store.GetItem(%d): %v", item.ID, err)
	}
	return updated
}
