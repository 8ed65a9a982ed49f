package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"reqtx/internal/usecase/kv"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

type kvHandler struct {
	svc *kv.Service
}

type putRequest struct {
	Value *string `json:"value"`
}

type batchRequest struct {
	Set    map[string]string `json:"set"`
	Delete []string          `json:"delete"`
}

func (h *kvHandler) get(w http.ResponseWriter, r *http.Request) error {
	entry, err := h.svc.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, entry)
	return nil
}

func (h *kvHandler) list(w http.ResponseWriter, r *http.Request) error {
	limit, err := intQueryParam(r, "limit", 100)
	if err != nil {
		return err
	}

	entries, err := h.svc.List(r.Context(), r.URL.Query().Get("prefix"), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
	return nil
}

func (h *kvHandler) history(w http.ResponseWriter, r *http.Request) error {
	limit, err := intQueryParam(r, "limit", 0)
	if err != nil {
		return err
	}

	events, err := h.svc.History(r.Context(), chi.URLParam(r, "key"), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
	return nil
}

func (h *kvHandler) put(w http.ResponseWriter, r *http.Request) error {
	var req putRequest
	if err := decodeBody(w, r, &req); err != nil {
		return err
	}
	if req.Value == nil {
		return badRequest("value is required")
	}

	entry, err := h.svc.Put(r.Context(), chi.URLParam(r, "key"), *req.Value)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, entry)
	return nil
}

func (h *kvHandler) delete(w http.ResponseWriter, r *http.Request) error {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *kvHandler) batch(w http.ResponseWriter, r *http.Request) error {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		return err
	}

	result, err := h.svc.Batch(r.Context(), kv.BatchInput{Set: req.Set, Delete: req.Delete})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, result)
	return nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest("invalid json body: " + err.Error())
	}
	return nil
}

func intQueryParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest(name + " must be a non-negative integer")
	}
	return n, nil
}

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }
