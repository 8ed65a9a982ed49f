package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reqtx/internal/bootstrap/logging"
	"reqtx/internal/infrastructure/persistence/gormdb/model"
	gormrepo "reqtx/internal/infrastructure/persistence/gormdb/repository"
	"reqtx/internal/infrastructure/persistence/gormdb/txsession"
	gormuow "reqtx/internal/infrastructure/persistence/gormdb/uow"
	"reqtx/internal/txfilter"
	"reqtx/internal/usecase/kv"
)

type testServer struct {
	handler http.Handler
	reg     *prometheus.Registry
	logs    *bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "api.sqlite")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	reg := prometheus.NewRegistry()
	metrics, err := txfilter.NewMetrics(reg)
	require.NoError(t, err)

	factory := txfilter.NewFactory(txsession.NewSession(db),
		txfilter.WithErrorWriter(WriteError),
		txfilter.WithRollbackOnServerError(true),
		txfilter.WithMetrics(metrics),
	)
	svc := kv.NewService(gormrepo.NewKVRepository(db), gormuow.NewUnitOfWork(db))

	var logs bytes.Buffer
	router := NewRouter(svc, factory, RouterConfig{
		MetricsPath:    "/metrics",
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	logger := logging.New(&logs, "json", "debug")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		router.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), logger)))
	})

	return &testServer{handler: handler, reg: reg, logs: &logs}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req = req.WithContext(context.Background())

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) transactions(t *testing.T, outcome, isolation string) float64 {
	t.Helper()

	families, err := s.reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "reqtx_transactions_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["outcome"] == outcome && labels["isolation_level"] == isolation {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestPutThenGet(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPut, "/kv/greeting", `{"value":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = srv.do(t, http.MethodGet, "/kv/greeting", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode[kv.Entry](t, rec)
	require.Equal(t, "greeting", entry.Key)
	require.Equal(t, "hello", entry.Value)

	require.Equal(t, 1.0, srv.transactions(t, "committed", "read_committed"))
	require.Contains(t, srv.logs.String(), `"msg":"transaction committed"`)
}

func TestGetMissingKey(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/kv/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "not found")
}

func TestDeleteMissingKeyRollsBack(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodDelete, "/kv/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 1.0, srv.transactions(t, "rolled_back", "read_committed"))
	require.Contains(t, srv.logs.String(), `"msg":"error occurred, rolling back transaction"`)
}

func TestDeleteExistingKey(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, "/kv/a", `{"value":"1"}`).Code)
	require.Equal(t, http.StatusNoContent, srv.do(t, http.MethodDelete, "/kv/a", "").Code)
	require.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/kv/a", "").Code)

	rec := srv.do(t, http.MethodGet, "/kv/a/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Events []kv.Event `json:"events"`
	}](t, rec)
	require.Len(t, history.Events, 2)
}

func TestBatchWithInvalidKeyPersistsNothing(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/kv/batch", `{"set":{"a":"1","b":"2"},"delete":["bad key"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/kv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	require.Zero(t, list.Count)

	require.Equal(t, 1.0, srv.transactions(t, "rolled_back", "repeatable_read"))
}

func TestBatchCommits(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/kv/batch", `{"set":{"app/a":"1","app/b":"2","other":"3"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[kv.BatchResult](t, rec)
	require.Equal(t, 3, result.Set)

	rec = srv.do(t, http.MethodGet, "/kv?prefix=app/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Entries []kv.Entry `json:"entries"`
	}](t, rec)
	require.Len(t, list.Entries, 2)

	require.Equal(t, 1.0, srv.transactions(t, "committed", "repeatable_read"))
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "missing body", method: http.MethodPut, target: "/kv/a"},
		{name: "missing value", method: http.MethodPut, target: "/kv/a", body: `{}`},
		{name: "unknown field", method: http.MethodPut, target: "/kv/a", body: `{"value":"x","ttl":3}`},
		{name: "empty batch", method: http.MethodPost, target: "/kv/batch", body: `{}`},
		{name: "bad limit", method: http.MethodGet, target: "/kv?limit=-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, tc.method, tc.target, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestReadsDoNotOpenTransactions(t *testing.T) {
	srv := newTestServer(t)

	srv.do(t, http.MethodGet, "/kv", "")
	srv.do(t, http.MethodGet, "/kv/a", "")
	require.Equal(t, 0.0, srv.transactions(t, "begun", "read_committed"))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	srv.do(t, http.MethodPut, "/kv/a", `{"value":"1"}`)
	rec = srv.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "reqtx_transactions_total")
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	require.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
	require.Contains(t, srv.logs.String(), `"request_id":"req-42"`)
}
