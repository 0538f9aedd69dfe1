package handler

import (
	"log/slog"
	"net/http"

	"github.com/dangerclosesec/coursehub/internal/service"
)

// CourseHandler serves course authoring and the public outline.
type CourseHandler struct {
	courses *service.CourseService
	logger  *slog.Logger
}

func NewCourseHandler(courses *service.CourseService, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{courses: courses, logger: logger}
}

func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var input service.CreateCourseInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	course, err := h.courses.CreateCourse(r.Context(), actorFromRequest(r), input)
	if err != nil {
		handleServiceError(w, r, h.logger, "create course failed", err)
		return
	}
	respondWithData(w, http.StatusCreated, course)
}

// GetCourse returns the outline; lesson bodies are only included for
// enrolled learners and course owners.
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuidParam(r, "courseID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	course, err := h.courses.GetOutline(r.Context(), actorFromRequest(r), courseID)
	if err != nil {
		handleServiceError(w, r, h.logger, "get course failed", err)
		return
	}
	respondWithData(w, http.StatusOK, course)
}

func (h *CourseHandler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuidParam(r, "courseID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}
	var input service.UpdateCourseInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	course, err := h.courses.UpdateCourse(r.Context(), actorFromRequest(r), courseID, input)
	if err != nil {
		handleServiceError(w, r, h.logger, "update course failed", err)
		return
	}
	respondWithData(w, http.StatusOK, course)
}

func (h *CourseHandler) PublishCourse(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuidParam(r, "courseID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	course, err := h.courses.PublishCourse(r.Context(), actorFromRequest(r), courseID)
	if err != nil {
		handleServiceError(w, r, h.logger, "publish course failed", err)
		return
	}
	respondWithData(w, http.StatusOK, course)
}

func (h *CourseHandler) AddModule(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuidParam(r, "courseID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}
	var input service.AddModuleInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	module, err := h.courses.AddModule(r.Context(), actorFromRequest(r), courseID, input)
	if err != nil {
		handleServiceError(w, r, h.logger, "add module failed", err)
		return
	}
	respondWithData(w, http.StatusCreated, module)
}

func (h *CourseHandler) AddLesson(w http.ResponseWriter, r *http.Request) {
	moduleID, err := uuidParam(r, "moduleID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid module ID")
		return
	}
	var input service.AddLessonInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	lesson, err := h.courses.AddLesson(r.Context(), actorFromRequest(r), moduleID, input)
	if err != nil {
		handleServiceError(w, r, h.logger, "add lesson failed", err)
		return
	}
	respondWithData(w, http.StatusCreated, lesson)
}

func (h *CourseHandler) AddQuestion(w http.ResponseWriter, r *http.Request) {
	lessonID, err := uuidParam(r, "lessonID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid lesson ID")
		return
	}
	var input service.AddQuestionInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	question, err := h.courses.AddQuizQuestion(r.Context(), actorFromRequest(r), lessonID, input)
	if err != nil {
		handleServiceError(w, r, h.logger, "add quiz question failed", err)
		return
	}
	respondWithData(w, http.StatusCreated, question)
}

func (h *CourseHandler) SetVideo(w http.ResponseWriter, r *http.Request) {
	lessonID, err := uuidParam(r, "lessonID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid lesson ID")
		return
	}
	var input service.VideoInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	video, err := h.courses.SetVideoMetadata(r.Context(), actorFromRequest(r), lessonID, input)
	if err != nil {
		handleServiceError(w, r, h.logger, "set video failed", err)
		return
	}
	respondWithData(w, http.StatusOK, video)
}
