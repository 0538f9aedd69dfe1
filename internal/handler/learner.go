package handler

import (
	"log/slog"
	"net/http"

	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/service"
)

// LearnerHandler serves the signed-in learner: enrollments, invitations,
// lesson completion and quizzes.
type LearnerHandler struct {
	enrollments *service.EnrollmentService
	invitations *service.InvitationService
	progress    *service.ProgressService
	logger      *slog.Logger
}

func NewLearnerHandler(
	enrollments *service.EnrollmentService,
	invitations *service.InvitationService,
	progress *service.ProgressService,
	logger *slog.Logger,
) *LearnerHandler {
	return &LearnerHandler{
		enrollments: enrollments,
		invitations: invitations,
		progress:    progress,
		logger:      logger,
	}
}

func (h *LearnerHandler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	list, err := h.enrollments.ListEnrollments(r.Context(), actorFromRequest(r))
	if err != nil {
		handleServiceError(w, r, h.logger, "list enrollments failed", err)
		return
	}
	if list == nil {
		list = []model.EnrollmentSummary{}
	}
	respondWithData(w, http.StatusOK, list)
}

// ConsumeInvitations accepts every pending invitation addressed to the
// caller's email. Clients call it right after sign-in.
func (h *LearnerHandler) ConsumeInvitations(w http.ResponseWriter, r *http.Request) {
	enrolled, err := h.invitations.ConsumePendingInvitations(r.Context(), actorFromRequest(r))
	if err != nil {
		handleServiceError(w, r, h.logger, "consume invitations failed", err)
		return
	}
	if enrolled == nil {
		enrolled = []*model.CourseEnrollment{}
	}
	respondWithData(w, http.StatusOK, enrolled)
}

type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

func (h *LearnerHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req AcceptInvitationRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "Invitation token is required")
		return
	}

	enrollment, err := h.invitations.AcceptInvitation(r.Context(), actorFromRequest(r), req.Token)
	if err != nil {
		handleServiceError(w, r, h.logger, "accept invitation failed", err)
		return
	}
	respondWithData(w, http.StatusOK, enrollment)
}

func (h *LearnerHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	lessonID, err := uuidParam(r, "lessonID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid lesson ID")
		return
	}

	p, err := h.progress.CompleteLesson(r.Context(), actorFromRequest(r), lessonID)
	if err != nil {
		handleServiceError(w, r, h.logger, "complete lesson failed", err)
		return
	}
	respondWithData(w, http.StatusOK, p)
}

type SubmitQuizRequest struct {
	Answers []int `json:"answers"`
}

func (h *LearnerHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	lessonID, err := uuidParam(r, "lessonID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid lesson ID")
		return
	}
	var req SubmitQuizRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	result, err := h.progress.SubmitQuiz(r.Context(), actorFromRequest(r), lessonID, req.Answers)
	if err != nil {
		handleServiceError(w, r, h.logger, "submit quiz failed", err)
		return
	}
	respondWithData(w, http.StatusOK, result)
}

func (h *LearnerHandler) CourseProgress(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuidParam(r, "courseID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	p, err := h.progress.CourseProgress(r.Context(), actorFromRequest(r), courseID)
	if err != nil {
		handleServiceError(w, r, h.logger, "course progress failed", err)
		return
	}
	respondWithData(w, http.StatusOK, p)
}
