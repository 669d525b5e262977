package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ntpoppe/textops/internal/orchestrator"
	"github.com/ntpoppe/textops/internal/repo"
)

// Problem is an RFC 7807-shaped error body, served as
// application/problem+json.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func badRequest(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

func notFound(w http.ResponseWriter, detail string) {
	writeProblem(w, http.StatusNotFound, "Not Found", detail)
}

func internalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "an internal error occurred")
}

// handleCoreError translates a repository/orchestrator error into the
// matching HTTP response. Returns true if it wrote a response.
func handleCoreError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundDetail string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, repo.ErrNotFound) || errors.Is(err, orchestrator.ErrRunNotFound) {
		notFound(w, notFoundDetail)
		return true
	}
	internalError(w, logger, err)
	return true
}
