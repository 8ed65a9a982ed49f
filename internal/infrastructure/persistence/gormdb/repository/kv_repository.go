package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reqtx/internal/errs"
	"reqtx/internal/infrastructure/persistence/gormdb/model"
	"reqtx/internal/ports"
)

type KVRepository struct {
	db *gorm.DB
}

var _ ports.KVRepository = (*KVRepository)(nil)

func NewKVRepository(db *gorm.DB) *KVRepository {
	return &KVRepository{db: db}
}

func (r *KVRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *KVRepository) GetEntry(ctx context.Context, key string) (ports.KVEntry, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.KVEntry{}, err
	}

	var row model.Entry
	if err := db.Where("key = ?", key).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.KVEntry{}, ports.ErrEntryNotFound
		}
		return ports.KVEntry{}, errs.Wrap(err, "query kv entry")
	}
	return mapEntry(row), nil
}

func (r *KVRepository) ListEntries(ctx context.Context, prefix string, limit int) ([]ports.KVEntry, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Entry{}).Order("key asc")
	if prefix != "" {
		query = query.Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.Entry
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query kv entries")
	}

	items := make([]ports.KVEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapEntry(row))
	}
	return items, nil
}

func (r *KVRepository) UpsertEntry(ctx context.Context, entry ports.KVEntry) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.Entry{
		Key:       entry.Key,
		Value:     entry.Value,
		UpdatedAt: entry.UpdatedAt,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      row.Value,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert kv entry")
	}
	return nil
}

func (r *KVRepository) DeleteEntry(ctx context.Context, key string) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Where("key = ?", key).Delete(&model.Entry{})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "delete kv entry")
	}
	return result.RowsAffected > 0, nil
}

func (r *KVRepository) AppendEvent(ctx context.Context, input ports.KVEventCreate) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.EntryEvent{
		Key:       input.Key,
		Action:    input.Action,
		Value:     input.Value,
		CreatedAt: input.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert kv event")
	}
	return nil
}

func (r *KVRepository) ListEvents(ctx context.Context, key string, limit int) ([]ports.KVEvent, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.EntryEvent{}).Order("event_id asc")
	if key != "" {
		query = query.Where("key = ?", key)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.EntryEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query kv events")
	}

	items := make([]ports.KVEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.KVEvent{
			EventID:   row.EventID,
			Key:       row.Key,
			Action:    row.Action,
			Value:     row.Value,
			CreatedAt: row.CreatedAt,
		})
	}
	return items, nil
}

func mapEntry(row model.Entry) ports.KVEntry {
	return ports.KVEntry{
		Key:       row.Key,
		Value:     row.Value,
		UpdatedAt: row.UpdatedAt,
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
