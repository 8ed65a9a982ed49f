package model

// All lists the tables owned by the application, in migration order.
func All() []any {
	return []any{
		&Entry{},
		&EntryEvent{},
	}
}
