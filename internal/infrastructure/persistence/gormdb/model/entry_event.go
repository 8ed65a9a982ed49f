package model

type EntryEvent struct {
	EventID   uint64 `gorm:"column:event_id;primaryKey;autoIncrement"`
	Key       string `gorm:"column:key;type:text;not null;index"`
	Action    string `gorm:"column:action;type:text;not null"`
	Value     string `gorm:"column:value;type:text;not null"`
	CreatedAt string `gorm:"column:created_at;type:text;not null"`
}

func (EntryEvent) TableName() string {
	return "kv_events"
}
