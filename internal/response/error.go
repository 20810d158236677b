package response

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/statementdesk/ledgerlink/internal/errs"
	"github.com/statementdesk/ledgerlink/pkg/logger"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *responseHandler) WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	}); err != nil {
		// Use context logger if encoding fails
		log := logger.FromContext(r.Context())
		log.Error("failed to encode error response", "error", err, "status", status, "code", code)
	}
}

// HandleError translates a typed error into a stable machine-readable code
// plus a human message. Token secrets never appear in error messages, so
// the raw message is safe to return.
func (h *responseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	code := errs.Code(err)

	switch e := err.(type) {
	case *errs.NotFoundError:
		log.Warn("resource not found", "error", e.Message)
		h.WriteError(w, r, http.StatusNotFound, code, e.Message)

	case *errs.AlreadyExistsError:
		log.Warn("resource already exists", "error", e.Message)
		h.WriteError(w, r, http.StatusConflict, code, e.Message)

	case *errs.ValidationError:
		log.Warn("validation failed", "error", e.Message)
		h.WriteError(w, r, http.StatusBadRequest, code, e.Message)

	case *errs.InvalidStateError:
		log.Warn("oauth state rejected", "error", e.Message)
		h.WriteError(w, r, http.StatusBadRequest, code, e.Message)

	case *errs.NoRefreshTokenError, *errs.AuthExpiredError, *errs.AuthRevokedError:
		log.Warn("provider authorization unusable", "code", code, "error", err.Error())
		h.WriteError(w, r, http.StatusUnauthorized, code, err.Error())

	case *errs.SubscriptionError:
		log.Warn("subscription gate", "error", e.Message)
		h.WriteError(w, r, http.StatusPaymentRequired, code, e.Message)

	case *errs.RateLimitedError:
		log.Warn("provider rate limit", "error", e.Message)
		h.WriteError(w, r, http.StatusTooManyRequests, code, e.Message)

	case *errs.MappingError, *errs.RemoteRejectedError:
		log.Warn("provider rejected request", "code", code, "error", err.Error())
		h.WriteError(w, r, http.StatusUnprocessableEntity, code, err.Error())

	case *errs.NetworkError:
		log.Warn("provider unreachable", "error", e.Message)
		h.WriteError(w, r, http.StatusBadGateway, code, "Provider temporarily unreachable")

	case *errs.DatabaseError:
		log.Error("database error",
			"operation", e.Operation,
			"error", e.Message)
		h.WriteError(w, r, http.StatusInternalServerError, code, "An error occurred")

	case *errs.ExternalServiceError:
		level := slog.LevelError
		if e.Transient {
			level = slog.LevelWarn
		}
		log.Log(r.Context(), level, "external service error",
			"service", e.Service,
			"transient", e.Transient,
			"error", e.Message)

		status := http.StatusBadGateway
		if e.Transient {
			status = http.StatusServiceUnavailable
		}
		h.WriteError(w, r, status, code, "Service temporarily unavailable")

	case *errs.EncryptionError:
		log.Error("encryption error", "error", e.Message)
		h.WriteError(w, r, http.StatusInternalServerError, code, "An error occurred")

	default:
		log.Error("unexpected error",
			"error", err,
			"type", fmt.Sprintf("%T", err))
		h.WriteError(w, r, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
