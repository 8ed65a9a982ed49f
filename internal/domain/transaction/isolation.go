package transaction

import (
	"database/sql"
	"fmt"
	"strings"
)

// IsolationLevel is the concurrency-control strength requested when a
// transaction begins. The zero value is ReadCommitted.
type IsolationLevel int

const (
	ReadCommitted IsolationLevel = iota
	ReadUncommitted
	RepeatableRead
	Serializable
	// Snapshot is SQL Server only. PostgreSQL rejects it.
	Snapshot
	// Unspecified leaves the choice to the database.
	Unspecified
)

var isolationNames = map[IsolationLevel]string{
	ReadCommitted:   "read_committed",
	ReadUncommitted: "read_uncommitted",
	RepeatableRead:  "repeatable_read",
	Serializable:    "serializable",
	Snapshot:        "snapshot",
	Unspecified:     "unspecified",
}

func (l IsolationLevel) String() string {
	if name, ok := isolationNames[l]; ok {
		return name
	}
	return fmt.Sprintf("isolation_level(%d)", int(l))
}

func (l IsolationLevel) Valid() bool {
	_, ok := isolationNames[l]
	return ok
}

// SQL maps the level onto database/sql.
func (l IsolationLevel) SQL() sql.IsolationLevel {
	switch l {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case ReadCommitted:
		return sql.LevelReadCommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	case Snapshot:
		return sql.LevelSnapshot
	default:
		return sql.LevelDefault
	}
}

// ParseIsolationLevel accepts snake_case, kebab-case, spaced or CamelCase
// names, e.g. "read_committed", "RepeatableRead", "read committed".
// An empty string yields ReadCommitted.
func ParseIsolationLevel(raw string) (IsolationLevel, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ReadCommitted, nil
	}
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)

	for level, name := range isolationNames {
		if strings.ReplaceAll(name, "_", "") == key {
			return level, nil
		}
	}
	if key == "default" {
		return Unspecified, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidIsolationLevel, raw)
}

// MarshalText lets the level round-trip through config and JSON.
func (l IsolationLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIsolationLevel, int(l))
	}
	return []byte(l.String()), nil
}

func (l *IsolationLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseIsolationLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
