package kv

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"reqtx/internal/infrastructure/persistence/gormdb/model"
	gormrepo "reqtx/internal/infrastructure/persistence/gormdb/repository"
	gormuow "reqtx/internal/infrastructure/persistence/gormdb/uow"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "kv.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	svc := NewService(gormrepo.NewKVRepository(db), gormuow.NewUnitOfWork(db))
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }
	return svc
}

func TestPutGetHistory(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Put(ctx, " greeting ", "hello"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := svc.Put(ctx, "greeting", "hi"); err != nil {
		t.Fatalf("Put(update) error = %v", err)
	}

	got, err := svc.Get(ctx, "greeting")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Value != "hi" || got.UpdatedAt != "2026-10-19T08:00:00Z" {
		t.Fatalf("Get() = %+v", got)
	}

	history, err := svc.History(ctx, "greeting", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Value != "hello" || history[1].Action != actionPut {
		t.Fatalf("History() = %+v", history)
	}
}

func TestDeleteMissingKey(t *testing.T) {
	svc := setupService(t)

	err := svc.Delete(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestInvalidKeys(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for _, key := range []string{"", "   ", "a b", "tab\tkey", strings.Repeat("k", maxKeyLength+1)} {
		if _, err := svc.Put(ctx, key, "v"); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Put(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestBatchIsAllOrNothing(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.Put(ctx, "keep", "1"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	_, err := svc.Batch(ctx, BatchInput{
		Set:    map[string]string{"a": "1", "b": "2"},
		Delete: []string{"keep", "bad key"},
	})
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Batch() error = %v, want ErrInvalidKey", err)
	}

	if _, err := svc.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(a) error = %v, want ErrNotFound", err)
	}
	if got, err := svc.Get(ctx, "keep"); err != nil || got.Value != "1" {
		t.Fatalf("Get(keep) = %+v, %v", got, err)
	}

	result, err := svc.Batch(ctx, BatchInput{
		Set:    map[string]string{"a": "1", "b": "2"},
		Delete: []string{"keep"},
	})
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if result.Set != 2 || result.Deleted != 1 {
		t.Fatalf("Batch() = %+v", result)
	}

	entries, err := svc.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "a" || entries[1].Key != "b" {
		t.Fatalf("List() = %+v", entries)
	}
}

func TestEmptyBatch(t *testing.T) {
	svc := setupService(t)

	if _, err := svc.Batch(context.Background(), BatchInput{}); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("Batch() error = %v, want ErrEmptyBatch", err)
	}
}
