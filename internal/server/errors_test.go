package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jonathan/interview-prep/internal/db"
	"github.com/jonathan/interview-prep/internal/pipeline"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &ErrValidation{Field: "role", Message: "required"}, http.StatusBadRequest},
		{"invalid input", fmt.Errorf("%w: company is required", pipeline.ErrInvalidInput), http.StatusBadRequest},
		{"not found", fmt.Errorf("failed to get job: %w", db.ErrJobNotFound), http.StatusNotFound},
		{"run active", pipeline.ErrRunActive, http.StatusConflict},
		{"not retryable", pipeline.ErrNotRetryable, http.StatusConflict},
		{"transition", db.ErrInvalidTransition, http.StatusConflict},
		{"shutting down", pipeline.ErrShuttingDown, http.StatusServiceUnavailable},
		{"unknown", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrValidation_Error(t *testing.T) {
	assert.Equal(t, "validation error: role - required", (&ErrValidation{Field: "role", Message: "required"}).Error())
	assert.Equal(t, "validation error: bad body", (&ErrValidation{Message: "bad body"}).Error())
}
