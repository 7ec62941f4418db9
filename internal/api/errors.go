package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/engine"
	"github.com/MJE43/stake-pf-predict-go/internal/store"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records the underlying error message.
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	ctx := eb.context
	if len(ctx) == 0 {
		ctx = nil
	}
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   ctx,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler maps domain errors onto HTTP responses and logs them.
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError classifies err and writes the matching response.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status, built := classify(err)
	built.WithRequestID(middleware.GetReqID(r.Context())).WithContext("path", r.URL.Path)
	engineErr := built.Build()
	eh.logError(r, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		Build()
	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

func classify(err error) (int, *ErrorBuilder) {
	var (
		inputErr *engine.InputError
		unavail  *backend.UnavailableError
		predErr  *backend.PredictionError
	)
	switch {
	case errors.As(err, &inputErr):
		errType := ErrTypeValidation
		switch inputErr.Field {
		case "nonce":
			errType = ErrTypeInvalidNonce
		case "client_seed", "server_seed_hash":
			errType = ErrTypeInvalidSeed
		case "game":
			errType = ErrTypeGameNotFound
		}
		return http.StatusBadRequest, NewError(errType, inputErr.Error()).WithContext("field", inputErr.Field)
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusBadRequest, NewError(ErrTypeValidation, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, NewError(ErrTypeNotFound, err.Error())
	case errors.Is(err, backend.ErrShapeMismatch):
		return http.StatusInternalServerError, NewError(ErrTypeShapeMismatch, "Model output did not match the expected shape").WithCause(err)
	case errors.As(err, &unavail), errors.Is(err, backend.ErrNotInitialized):
		return http.StatusServiceUnavailable, NewError(ErrTypeServiceUnavailable, "No inference backend is available").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, NewError(ErrTypeTimeout, "Operation timed out")
	case errors.As(err, &predErr):
		return http.StatusInternalServerError, NewError(ErrTypePrediction, "Prediction failed").
			WithContext("backend", predErr.Backend).
			WithCause(err)
	default:
		return http.StatusInternalServerError, NewError(ErrTypeInternal, "Internal server error").WithCause(err)
	}
}

func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)
	level := slog.LevelError
	if category == CategoryValidation {
		level = slog.LevelWarn
	}
	eh.logger.Log(r.Context(), level, "request failed",
		"type", engineErr.Type,
		"category", category,
		"status", status,
		"request_id", engineErr.RequestID,
		"method", r.Method,
		"path", r.URL.Path,
		"message", engineErr.Message)
}

func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		eh.logger.Error("failed to encode error response", "error", err)
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.logger.Error("panic recovered",
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"panic", fmt.Sprint(rvr))

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					Build()
				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
