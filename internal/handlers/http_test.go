package handlers_test

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"

	apperrors "github.com/abrezinsky/racetrial/internal/errors"
	"github.com/abrezinsky/racetrial/internal/handlers"
	"github.com/abrezinsky/racetrial/internal/services"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", apperrors.NotFound("route 1 not found"), http.StatusNotFound, handlers.ErrCodeNotFound},
		{"validation", apperrors.Validation("laps must be positive"), http.StatusBadRequest, handlers.ErrCodeValidation},
		{"invalid input", apperrors.InvalidInput("bad"), http.StatusBadRequest, handlers.ErrCodeValidation},
		{"conflict", apperrors.Conflict("event is full"), http.StatusConflict, handlers.ErrCodeConflict},
		{"wrapped conflict", fmt.Errorf("join: %w", apperrors.Conflict("busy")), http.StatusConflict, handlers.ErrCodeConflict},
		{"internal kind", apperrors.Internal(errors.New("disk")), http.StatusInternalServerError, handlers.ErrCodeInternalServer},
		{"base url", services.ErrBaseURLNotSet, http.StatusConflict, handlers.ErrCodeBaseURLNotSet},
		{"service error", services.ErrNoTablesSpecified, http.StatusBadRequest, handlers.ErrCodeBadRequest},
		{"invalid table", &services.InvalidTableError{Table: "x"}, http.StatusBadRequest, handlers.ErrCodeValidation},
		{"api error", handlers.Unauthorized("nope"), http.StatusUnauthorized, handlers.ErrCodeUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, handlers.ErrCodeInternalServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handlers.ToAPIError(tt.err)
			if got.Status != tt.status || got.Code != tt.code {
				t.Errorf("ToAPIError = %d %s, want %d %s", got.Status, got.Code, tt.status, tt.code)
			}
		})
	}
}

func TestToAPIError_HidesInternalDetails(t *testing.T) {
	got := handlers.ToAPIError(errors.New("sql: connection refused at 10.0.0.1"))
	if got.Message != "Internal server error" {
		t.Errorf("message leaked: %q", got.Message)
	}
}

func TestAPIErrorConstructors(t *testing.T) {
	if e := handlers.NotFound("x"); e.Status != http.StatusNotFound || e.Error() != "x" {
		t.Errorf("NotFound = %+v", e)
	}
	if e := handlers.Conflict("x"); e.Status != http.StatusConflict {
		t.Errorf("Conflict = %+v", e)
	}
	if e := handlers.BadRequest("x"); e.Code != handlers.ErrCodeBadRequest {
		t.Errorf("BadRequest = %+v", e)
	}
	if e := handlers.NewAPIError(http.StatusTeapot, "TEA", "short and stout"); e.Status != http.StatusTeapot || e.Code != "TEA" {
		t.Errorf("NewAPIError = %+v", e)
	}
}
