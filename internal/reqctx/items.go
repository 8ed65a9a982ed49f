// Package reqctx holds per-request state shared by the stages of one HTTP
// request pipeline. Slots are keyed by the static type of the stored value,
// so each type has at most one entry per request.
package reqctx

import (
	"context"
	"reflect"
)

// Items is the per-request store. It is owned by a single request and is not
// safe for concurrent use.
type Items struct {
	slots map[reflect.Type]any
}

func New() *Items {
	return &Items{slots: make(map[reflect.Type]any)}
}

// Set stores v in the slot for T, replacing any previous value.
func Set[T any](items *Items, v T) {
	items.slots[reflect.TypeFor[T]()] = v
}

// Get returns the value stored for T.
func Get[T any](items *Items) (T, bool) {
	var zero T
	if items == nil {
		return zero, false
	}

	v, ok := items.slots[reflect.TypeFor[T]()]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Delete clears the slot for T.
func Delete[T any](items *Items) {
	if items == nil {
		return
	}
	delete(items.slots, reflect.TypeFor[T]())
}

func (i *Items) Len() int {
	if i == nil {
		return 0
	}
	return len(i.slots)
}

type itemsKey struct{}

func WithItems(ctx context.Context, items *Items) context.Context {
	return context.WithValue(ctx, itemsKey{}, items)
}

func FromContext(ctx context.Context) (*Items, bool) {
	if ctx == nil {
		return nil, false
	}
	items, ok := ctx.Value(itemsKey{}).(*Items)
	return items, ok && items != nil
}

// Ensure returns the Items already attached to ctx, or attaches a new one.
func Ensure(ctx context.Context) (*Items, context.Context) {
	if items, ok := FromContext(ctx); ok {
		return items, ctx
	}
	items := New()
	return items, WithItems(ctx, items)
}

// RequestInfo describes the request that owns the Items.
type RequestInfo struct {
	Method string
	URL    string
}
