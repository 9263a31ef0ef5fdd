package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"practicum/pkg/interfaces"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "session.db")
	store, err := OpenSQLite(DefaultStoreConfig(path), nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Both implementations must satisfy the same contract.
func storeFactories() map[string]func(t *testing.T) interfaces.KeyValueStore {
	return map[string]func(t *testing.T) interfaces.KeyValueStore{
		"sqlite": func(t *testing.T) interfaces.KeyValueStore { return openTestSQLite(t) },
		"memory": func(t *testing.T) interfaces.KeyValueStore { return NewMemoryStore() },
	}
}

func TestStore_SetGet(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			if _, ok, err := store.Get(ctx, "access_token"); err != nil || ok {
				t.Fatalf("Expected missing key, got ok=%v err=%v", ok, err)
			}
			if err := store.Set(ctx, "access_token", "a1"); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			if err := store.Set(ctx, "access_token", "a2"); err != nil {
				t.Fatalf("Overwrite failed: %v", err)
			}
			v, ok, err := store.Get(ctx, "access_token")
			if err != nil || !ok || v != "a2" {
				t.Errorf("Expected a2, got %q ok=%v err=%v", v, ok, err)
			}
		})
	}
}

func TestStore_SetManyAndDelete(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			err := store.SetMany(ctx, map[string]string{
				"access_token":  "a",
				"refresh_token": "r",
				"user_data":     `{"user_id":1}`,
			})
			if err != nil {
				t.Fatalf("SetMany failed: %v", err)
			}
			for _, key := range []string{"access_token", "refresh_token", "user_data"} {
				if _, ok, _ := store.Get(ctx, key); !ok {
					t.Errorf("Expected %s to be stored", key)
				}
			}

			if err := store.Delete(ctx, "access_token", "refresh_token", "user_data", "never_set"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			for _, key := range []string{"access_token", "refresh_token", "user_data"} {
				if _, ok, _ := store.Get(ctx, key); ok {
					t.Errorf("Expected %s to be deleted", key)
				}
			}

			// Idempotent
			if err := store.Delete(ctx, "access_token"); err != nil {
				t.Errorf("Second delete should succeed: %v", err)
			}
		})
	}
}

func TestStore_EmptyKeyRejected(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			err := store.SetMany(ctx, map[string]string{"ok": "1", "": "2"})
			if !errors.Is(err, ErrEmptyKey) {
				t.Errorf("Expected ErrEmptyKey, got %v", err)
			}
			if _, ok, _ := store.Get(ctx, "ok"); ok {
				t.Error("Rejected SetMany must not write any key")
			}
		})
	}
}

func TestStore_ClosedStore(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			if err := store.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}
			if err := store.Close(); err != nil {
				t.Errorf("Second close should be a no-op: %v", err)
			}
			if err := store.Set(context.Background(), "k", "v"); !errors.Is(err, ErrStoreClosed) {
				t.Errorf("Expected ErrStoreClosed, got %v", err)
			}
		})
	}
}

func TestSQLiteStore_ConcurrentWrites(t *testing.T) {
	store := openTestSQLite(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key_%d", i)
			if err := store.SetMany(ctx, map[string]string{key: "v", "shared": key}); err != nil {
				t.Errorf("Concurrent write %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		if _, ok, _ := store.Get(ctx, fmt.Sprintf("key_%d", i)); !ok {
			t.Errorf("Missing key_%d", i)
		}
	}
}

func TestSQLiteStore_WriteTimeoutOutcome(t *testing.T) {
	config := DefaultStoreConfig(filepath.Join(t.TempDir(), "session.db"))
	config.Timeout = 50 * time.Millisecond
	store, err := OpenSQLite(config, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	slow := make(chan error, 1)
	go func() {
		slow <- store.executeWrite(ctx, func(db *sql.DB) error {
			close(started)
			<-release
			_, err := db.ExecContext(ctx, "INSERT INTO kv_store (key, value) VALUES ('slow', '1')")
			return err
		})
	}()
	<-started

	// Queued behind the slow write; its caller gives up before it starts.
	err = store.SetMany(ctx, map[string]string{"access_token": "a1", "refresh_token": "r1"})
	if !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Expected ErrWriteTimeout, got %v", err)
	}

	time.Sleep(2 * config.Timeout)
	close(release)

	// A write that already started is awaited past the timeout.
	if err := <-slow; err != nil {
		t.Errorf("Expected the running write to report its own result, got %v", err)
	}
	if _, ok, _ := store.Get(ctx, "slow"); !ok {
		t.Error("Expected the running write committed")
	}

	// The abandoned write must never be applied.
	if err := store.Set(ctx, "marker", "m"); err != nil {
		t.Fatalf("Set after the timeout failed: %v", err)
	}
	for _, key := range []string{"access_token", "refresh_token"} {
		if _, ok, _ := store.Get(ctx, key); ok {
			t.Errorf("Expected %s not persisted after a reported timeout", key)
		}
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	first, err := OpenSQLite(DefaultStoreConfig(path), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := first.Set(ctx, "user_data", `{"name":"X"}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	_ = first.Close()

	second, err := OpenSQLite(DefaultStoreConfig(path), nil)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer second.Close()

	v, ok, err := second.Get(ctx, "user_data")
	if err != nil || !ok || v != `{"name":"X"}` {
		t.Errorf("Expected persisted user_data, got %q ok=%v err=%v", v, ok, err)
	}
	if err := second.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestMigrations_Ordered(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations failed: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("Expected at least one migration")
	}
	if migrations[0].Version != "001" || migrations[0].Description != "kv_store" {
		t.Errorf("Unexpected first migration %+v", migrations[0])
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Errorf("Migrations out of order: %s before %s", migrations[i-1].Version, migrations[i].Version)
		}
	}
}
