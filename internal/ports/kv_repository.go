package ports

import (
	"context"
	"errors"
)

var ErrEntryNotFound = errors.New("kv entry not found")

type KVEntry struct {
	Key       string
	Value     string
	UpdatedAt string
}

type KVEvent struct {
	EventID   uint64
	Key       string
	Action    string
	Value     string
	CreatedAt string
}

type KVEventCreate struct {
	Key       string
	Action    string
	Value     string
	CreatedAt string
}

type KVRepository interface {
	GetEntry(ctx context.Context, key string) (KVEntry, error)
	ListEntries(ctx context.Context, prefix string, limit int) ([]KVEntry, error)
	UpsertEntry(ctx context.Context, entry KVEntry) error
	// DeleteEntry reports whether a row was removed.
	DeleteEntry(ctx context.Context, key string) (bool, error)
	AppendEvent(ctx context.Context, input KVEventCreate) error
	ListEvents(ctx context.Context, key string, limit int) ([]KVEvent, error)
}
