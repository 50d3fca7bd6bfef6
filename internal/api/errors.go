package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/guessrun/internal/scripting"
)

// ErrorBuilder helps construct structured errors with context.
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

// NewError creates a new error builder.
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds the request ID to the error.
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records the underlying error.
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final EngineError.
func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler writes and logs structured errors.
type ErrorHandler struct {
	logger *log.Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *log.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError writes err with status. Plain errors become internal errors.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error, status int) {
	engineErr, ok := err.(EngineError)
	if !ok {
		engineErr = NewError(ErrTypeInternal, err.Error()).
			WithContext("path", r.URL.Path).
			WithContext("method", r.Method).
			Build()
	}
	if engineErr.RequestID == "" {
		engineErr.RequestID = middleware.GetReqID(r.Context())
	}
	eh.logError(r, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// HandleValidationError reports a bad request field.
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		Build()
	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// HandleNotFound reports a missing session or slot.
func (eh *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request, errType, id string) {
	engineErr := NewError(errType, "Not found").
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("id", id).
		Build()
	eh.logError(r, engineErr, http.StatusNotFound)
	eh.writeErrorResponse(w, http.StatusNotFound, engineErr)
}

func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)
	level := "ERROR"
	if status < 500 {
		level = "WARN"
	}
	eh.logger.Printf(
		"error_occurred level=%s type=%s category=%s status=%d request_id=%s path=%s message=%q context=%+v",
		level, engineErr.Type, category, status, engineErr.RequestID, r.URL.Path, engineErr.Message, engineErr.Context,
	)
}

func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// RecoveryHandler turns panics into structured 500 responses. A scripted
// effect that throws is reported as effect_failed with its pack, id and
// trigger.
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			requestID := middleware.GetReqID(r.Context())
			eh.logger.Printf("panic_recovered request_id=%s path=%s method=%s panic=%v",
				requestID, r.URL.Path, r.Method, rvr)
			eh.writeErrorResponse(w, http.StatusInternalServerError, panicError(rvr, requestID, r))
		}()
		next.ServeHTTP(w, r)
	})
}

func panicError(rvr any, requestID string, r *http.Request) EngineError {
	var effErr *scripting.EffectError
	if err, ok := rvr.(error); ok && errors.As(err, &effErr) {
		return NewError(ErrTypeEffectFailed, "Effect hook failed").
			WithRequestID(requestID).
			WithContext("pack", effErr.Pack).
			WithContext("effect", effErr.ID).
			WithContext("trigger", string(effErr.Trigger)).
			WithCause(effErr.Err).
			Build()
	}
	return NewError(ErrTypeInternal, "Internal server error").
		WithRequestID(requestID).
		WithContext("panic", fmt.Sprintf("%v", rvr)).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()
}
