package txfilter

import "reqtx/internal/ports"

// Factory hands out per-endpoint filters that share a session and the
// application-wide defaults.
//
//	tx := txfilter.NewFactory(session, txfilter.WithMetrics(m))
//	r.With(tx.Filter(txfilter.WithIsolationLevel(transaction.RepeatableRead)).Middleware).Post("/batch", h)
type Factory struct {
	session  ports.Session
	defaults []Option
}

func NewFactory(session ports.Session, defaults ...Option) *Factory {
	return &Factory{
		session:  session,
		defaults: defaults,
	}
}

// Filter builds a filter; opts are applied after the factory defaults.
func (f *Factory) Filter(opts ...Option) *Filter {
	all := make([]Option, 0, len(f.defaults)+len(opts))
	all = append(all, f.defaults...)
	all = append(all, opts...)
	return New(f.session, all...)
}
