package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"fotoljay/internal/domain"

	"go.uber.org/zap"
)

// ErrorResponse is the envelope of every failed request
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	// Code is a stable machine-readable name, e.g. NOT_FOUND or CONFLICT
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

var statusCodes = map[int]string{
	http.StatusUnauthorized:        "UNAUTHENTICATED",
	http.StatusTooManyRequests:     "RATE_LIMITED",
	http.StatusInternalServerError: "INTERNAL",
}

// codeForStatus derives an error code from the status text when no domain kind applies
func codeForStatus(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	text := http.StatusText(status)
	if text == "" {
		return "ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	RespondWithJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}})
}

func RespondWithError(w http.ResponseWriter, status int, message string) {
	writeError(w, status, codeForStatus(status), message, nil)
}

func RespondWithErrorDetails(w http.ResponseWriter, status int, message string, details map[string]interface{}) {
	writeError(w, status, codeForStatus(status), message, details)
}

// RespondWithValidationErrors answers 400 with one entry per rejected field
func RespondWithValidationErrors(w http.ResponseWriter, fields []ValidationError) {
	writeError(w, http.StatusBadRequest, "VALIDATION", "validation failed", map[string]interface{}{
		"validation_errors": fields,
	})
}

// StatusFor maps a domain error kind to its HTTP status. Conflicts are
// reported as 400 like validation failures.
func StatusFor(err error) int {
	status, _ := classify(err)
	return status
}

func classify(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.ErrNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case domain.ErrUnauthorized:
		return http.StatusForbidden, "FORBIDDEN"
	case domain.ErrConflict:
		return http.StatusBadRequest, "CONFLICT"
	case domain.ErrValidation:
		return http.StatusBadRequest, "VALIDATION"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// RespondWithDomainError writes err using its kind. Infrastructure errors are
// logged and hidden behind a generic message.
func RespondWithDomainError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
		message = "internal server error"
	}
	writeError(w, status, code, message, nil)
}

// ErrorHandlingMiddleware turns a panic into a 500 envelope
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Panic recovered",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
					)
					RespondWithError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func RespondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
