package handler

import (
	"log/slog"
	"net/http"

	"github.com/dangerclosesec/coursehub/internal/service"
)

// TeamHandler lets account owners manage seats, invitations and seat
// assignments.
type TeamHandler struct {
	seats       *service.SeatService
	invitations *service.InvitationService
	enrollments *service.EnrollmentService
	logger      *slog.Logger
}

func NewTeamHandler(
	seats *service.SeatService,
	invitations *service.InvitationService,
	enrollments *service.EnrollmentService,
	logger *slog.Logger,
) *TeamHandler {
	return &TeamHandler{
		seats:       seats,
		invitations: invitations,
		enrollments: enrollments,
		logger:      logger,
	}
}

func (h *TeamHandler) SeatUsage(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	usage, err := h.seats.SeatUsage(r.Context(), actorFromRequest(r), accountID)
	if err != nil {
		handleServiceError(w, r, h.logger, "seat usage failed", err)
		return
	}
	if usage == nil {
		usage = []service.SeatSummary{}
	}
	respondWithData(w, http.StatusOK, usage)
}

func (h *TeamHandler) Invite(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	var input service.InviteInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	input.AccountID = accountID

	inv, err := h.invitations.Invite(r.Context(), actorFromRequest(r), input)
	if err != nil {
		handleServiceError(w, r, h.logger, "invite failed", err)
		return
	}
	respondWithData(w, http.StatusCreated, inv)
}

func (h *TeamHandler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	invitationID, err := uuidParam(r, "invitationID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid invitation ID")
		return
	}

	if err := h.invitations.RevokeInvitation(r.Context(), actorFromRequest(r), invitationID); err != nil {
		handleServiceError(w, r, h.logger, "revoke invitation failed", err)
		return
	}
	respondWithJSON(w, http.StatusOK, BaseResponse{Ok: true})
}

// Enroll assigns one of the account's seats directly to a user id.
func (h *TeamHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	var input service.EnrollInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	input.AccountID = accountID

	e, err := h.enrollments.Enroll(r.Context(), actorFromRequest(r), input)
	if err != nil {
		handleServiceError(w, r, h.logger, "enroll failed", err)
		return
	}
	respondWithData(w, http.StatusCreated, e)
}

func (h *TeamHandler) RevokeEnrollment(w http.ResponseWriter, r *http.Request) {
	enrollmentID, err := uuidParam(r, "enrollmentID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid enrollment ID")
		return
	}

	if err := h.enrollments.RevokeEnrollment(r.Context(), actorFromRequest(r), enrollmentID); err != nil {
		handleServiceError(w, r, h.logger, "revoke enrollment failed", err)
		return
	}
	respondWithJSON(w, http.StatusOK, BaseResponse{Ok: true})
}
