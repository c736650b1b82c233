package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cozyfin/internal/auth"
	"cozyfin/internal/core"
	"cozyfin/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondDomainError maps domain and infrastructure errors onto HTTP
// statuses. A degraded store answers 503 so the client can offer its
// continue-offline path.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrInvalidPIN), errors.Is(err, auth.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrUnknownUser),
		errors.Is(err, core.ErrUnknownTxType),
		errors.Is(err, core.ErrEmptyCategory):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// pathUser parses the {user} path segment.
func pathUser(r *http.Request) (core.UserID, error) {
	return core.ParseUserID(r.PathValue("user"))
}

// parseFilter reads the optional user, type, year, and month query
// parameters. Invalid values are rejected rather than defaulted; an absent
// parameter leaves that dimension unfiltered.
func parseFilter(r *http.Request) (core.Filter, error) {
	var f core.Filter
	q := r.URL.Query()

	if v := strings.TrimSpace(q.Get("user")); v != "" {
		user, err := core.ParseUserID(v)
		if err != nil {
			return core.Filter{}, err
		}
		f.User = user
	}
	if v := strings.TrimSpace(q.Get("type")); v != "" {
		typ, err := core.ParseTxType(v)
		if err != nil {
			return core.Filter{}, err
		}
		f.Type = typ
	}
	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 2000 || y > 2200 {
			return core.Filter{}, core.ErrInvalidDate
		}
		f.Year = y
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return core.Filter{}, core.ErrInvalidDate
		}
		f.Month = time.Month(m)
	}
	if f.Month != 0 && f.Year == 0 {
		f.Year = time.Now().Year()
	}
	return f, nil
}
