package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"reqtx/internal/domain/transaction"
	"reqtx/internal/txfilter"
	"reqtx/internal/usecase/kv"
)

type RouterConfig struct {
	MetricsPath    string
	MetricsHandler http.Handler
}

// NewRouter mounts the key-value API. Writes run inside a request transaction;
// batches use RepeatableRead so every operation sees one snapshot.
func NewRouter(svc *kv.Service, tx *txfilter.Factory, cfg RouterConfig) http.Handler {
	h := &kvHandler{svc: svc}

	r := chi.NewRouter()
	r.Use(withRequestLogging)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil && cfg.MetricsPath != "" {
		r.Method(http.MethodGet, cfg.MetricsPath, cfg.MetricsHandler)
	}

	r.Route("/kv", func(r chi.Router) {
		r.Get("/", withoutTx(h.list))
		r.Get("/{key}", withoutTx(h.get))
		r.Get("/{key}/history", withoutTx(h.history))

		r.Method(http.MethodPut, "/{key}", tx.Filter().Handle(h.put))
		r.Method(http.MethodDelete, "/{key}", tx.Filter().Handle(h.delete))
		r.Method(http.MethodPost, "/batch", tx.Filter(
			txfilter.WithIsolationLevel(transaction.RepeatableRead),
		).Handle(h.batch))
	})

	return r
}

func withoutTx(h txfilter.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(w, r, err)
		}
	}
}
