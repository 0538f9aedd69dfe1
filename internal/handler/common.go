package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dangerclosesec/coursehub/internal/domain"
	"github.com/dangerclosesec/coursehub/internal/middleware"
	"github.com/dangerclosesec/coursehub/internal/service"
	"github.com/go-chi/chi/v5"
	chmw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// maxBodyBytes caps every request body, webhooks included.
const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	BaseResponse
	Error string `json:"error"`
}

type BaseResponse struct {
	Ok bool `json:"ok"`
}

// DataResponse wraps a successful payload.
type DataResponse struct {
	BaseResponse
	Data interface{} `json:"data"`
}

// respondWithError sends an error response with a message
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

func respondWithData(w http.ResponseWriter, code int, data interface{}) {
	respondWithJSON(w, code, DataResponse{BaseResponse: BaseResponse{Ok: true}, Data: data})
}

// decodeJSON reads a size-capped JSON body into dst, rejecting unknown
// fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", domain.ErrInvalidInput, name)
	}
	return id, nil
}

// actorFromRequest builds the service caller from the validated token.
// Anonymous requests yield the zero Actor.
func actorFromRequest(r *http.Request) service.Actor {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return service.Actor{}
	}

	actor := service.Actor{Email: claims.Email, Service: claims.IsServiceRole()}
	if p, ok := middleware.PrincipalFromContext(r.Context()); ok {
		actor.UserID = p.UserID
	}
	if js, err := claims.JSON(); err == nil {
		actor.ClaimsJSON = js
	}
	return actor
}

// statusForError maps domain errors onto HTTP status codes. Unknown errors
// are internal and their message is withheld.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, domain.ErrNotAQuizLesson),
		errors.Is(err, domain.ErrAnswerCountMatch),
		errors.Is(err, domain.ErrCourseNotReady),
		errors.Is(err, domain.ErrPersonalAccountSeats),
		errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, domain.ErrNotAccountOwner),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrNotEnrolled),
		errors.Is(err, domain.ErrInvitationEmail):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrCourseNotFound),
		errors.Is(err, domain.ErrModuleNotFound),
		errors.Is(err, domain.ErrLessonNotFound),
		errors.Is(err, domain.ErrEnrollmentNotFound),
		errors.Is(err, domain.ErrInvitationNotFound),
		errors.Is(err, domain.ErrPurchaseNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrUnknownPrice),
		errors.Is(err, domain.ErrSeatPoolNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrDuplicateSlug),
		errors.Is(err, domain.ErrAlreadyEnrolled),
		errors.Is(err, domain.ErrInvitationExists),
		errors.Is(err, domain.ErrInvitationUsed),
		errors.Is(err, domain.ErrNoSeatsAvailable),
		errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrInvitationExpired):
		return http.StatusGone, err.Error()
	case errors.Is(err, domain.ErrPaymentsDisabled):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// handleServiceError logs the failure with the request id and writes the
// mapped status.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	code, message := statusForError(err)
	level := slog.LevelWarn
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, msg, "error", err, "requestID", chmw.GetReqID(r.Context()))
	respondWithError(w, code, message)
}
