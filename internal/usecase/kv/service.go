package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reqtx/internal/errs"
	"reqtx/internal/ports"
)

const (
	maxKeyLength = 256

	actionPut    = "put"
	actionDelete = "delete"
)

var (
	ErrInvalidKey = errors.New("invalid key")
	ErrNotFound   = ports.ErrEntryNotFound
	ErrEmptyBatch = errors.New("batch has no operations")
)

type Service struct {
	repo ports.KVRepository
	uow  ports.UnitOfWork
	now  func() time.Time
}

// NewService wires key-value usecases with a repository and a unit of work.
func NewService(repo ports.KVRepository, uow ports.UnitOfWork) *Service {
	return &Service{
		repo: repo,
		uow:  uow,
		now:  time.Now,
	}
}

type Entry struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

type Event struct {
	EventID   uint64 `json:"event_id"`
	Action    string `json:"action"`
	Value     string `json:"value,omitempty"`
	CreatedAt string `json:"created_at"`
}

// BatchInput is applied atomically: sets first, then deletes.
type BatchInput struct {
	Set    map[string]string
	Delete []string
}

type BatchResult struct {
	Set     int `json:"set"`
	Deleted int `json:"deleted"`
}

func (s *Service) Get(ctx context.Context, key string) (Entry, error) {
	if err := s.check(ctx); err != nil {
		return Entry{}, err
	}
	key, err := normalizeKey(key)
	if err != nil {
		return Entry{}, err
	}

	row, err := s.repo.GetEntry(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	return mapEntry(row), nil
}

func (s *Service) List(ctx context.Context, prefix string, limit int) ([]Entry, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	rows, err := s.repo.ListEntries(ctx, strings.TrimSpace(prefix), limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapEntry(row))
	}
	return out, nil
}

// Put stores value under key and records the change in the key's history.
func (s *Service) Put(ctx context.Context, key string, value string) (Entry, error) {
	if err := s.check(ctx); err != nil {
		return Entry{}, err
	}
	key, err := normalizeKey(key)
	if err != nil {
		return Entry{}, err
	}

	entry := ports.KVEntry{Key: key, Value: value, UpdatedAt: s.nowString()}
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		return s.putTx(txCtx, entry)
	}); err != nil {
		return Entry{}, err
	}
	return mapEntry(entry), nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	now := s.nowString()
	return s.uow.WithTx(ctx, func(txCtx context.Context) error {
		return s.deleteTx(txCtx, key, now)
	})
}

// Batch applies every operation or none of them.
func (s *Service) Batch(ctx context.Context, input BatchInput) (BatchResult, error) {
	if err := s.check(ctx); err != nil {
		return BatchResult{}, err
	}
	if len(input.Set) == 0 && len(input.Delete) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}

	now := s.nowString()
	var result BatchResult
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		for _, key := range sortedKeys(input.Set) {
			normalized, err := normalizeKey(key)
			if err != nil {
				return err
			}
			if err := s.putTx(txCtx, ports.KVEntry{Key: normalized, Value: input.Set[key], UpdatedAt: now}); err != nil {
				return err
			}
			result.Set++
		}
		for _, key := range input.Delete {
			normalized, err := normalizeKey(key)
			if err != nil {
				return err
			}
			if err := s.deleteTx(txCtx, normalized, now); err != nil {
				return err
			}
			result.Deleted++
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	return result, nil
}

func (s *Service) History(ctx context.Context, key string, limit int) ([]Event, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListEvents(ctx, key, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, Event{
			EventID:   row.EventID,
			Action:    row.Action,
			Value:     row.Value,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) putTx(ctx context.Context, entry ports.KVEntry) error {
	if err := s.repo.UpsertEntry(ctx, entry); err != nil {
		return err
	}
	return s.repo.AppendEvent(ctx, ports.KVEventCreate{
		Key:       entry.Key,
		Action:    actionPut,
		Value:     entry.Value,
		CreatedAt: entry.UpdatedAt,
	})
}

func (s *Service) deleteTx(ctx context.Context, key string, now string) error {
	deleted, err := s.repo.DeleteEntry(ctx, key)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return s.repo.AppendEvent(ctx, ports.KVEventCreate{
		Key:       key,
		Action:    actionDelete,
		CreatedAt: now,
	})
}

func (s *Service) check(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return errors.New("kv repository is required")
	}
	if s.uow == nil {
		return errors.New("kv unit of work is required")
	}
	return nil
}

func (s *Service) nowString() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}
