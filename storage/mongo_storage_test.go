package storage

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"
)

// Runs only against a live server, e.g. DATABASE_URL=mongodb://localhost:27017
func TestMongoStoreRoundTrip(t *testing.T) {
	uri := os.Getenv("DATABASE_URL")
	if uri == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := NewMongoStore(ctx, uri, "vote_ledger_test", "ledger_"+time.Now().Format("20060102150405"))
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer func() {
		store.collection.Drop(ctx)
		store.Close(ctx)
	}()

	state, err := store.Load(ctx)
	if err != nil || state != nil {
		t.Fatalf("expected empty collection, got %+v / %v", state, err)
	}

	want := sampleState()
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("second save (replace) failed: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}
