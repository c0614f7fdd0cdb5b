package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"folio.org/internal/audit"
	"folio.org/internal/obs"
	"folio.org/internal/workflow"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits {"error","kind","request_id"}.
func writeError(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	payload := map[string]any{
		"error": msg,
		"kind":  kind,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// statusForKind maps the workflow error taxonomy onto HTTP.
func statusForKind(kind string) int {
	switch kind {
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case workflow.KindUnauthorized:
		return http.StatusForbidden
	case workflow.KindConflict:
		return http.StatusConflict
	case workflow.KindValidation:
		return http.StatusBadRequest
	case workflow.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func handleWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	kind := workflow.KindOf(err)
	code := statusForKind(kind)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		l := obs.Component("http")
		l.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("unclassified error")
		msg = "internal error"
	}
	if kind == workflow.KindPersistence {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, r, code, kind, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parseBoundedInt(raw, name string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New(name + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

func (a *API) audit(r *http.Request, event, resource, id string, meta map[string]any) {
	fields := map[string]any{"resource": resource, "resource_id": id}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(r.Context(), event, fields)
}
