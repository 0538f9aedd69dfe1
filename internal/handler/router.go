package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dangerclosesec/coursehub/internal/auth"
	"github.com/dangerclosesec/coursehub/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handlers groups every HTTP handler the API mounts.
type Handlers struct {
	Webhook  *WebhookHandler
	Checkout *CheckoutHandler
	Courses  *CourseHandler
	Learner  *LearnerHandler
	Team     *TeamHandler
	Admin    *AdminHandler
}

type RouterConfig struct {
	Tokens         *auth.TokenManager
	Logger         *slog.Logger
	AllowedOrigins []string
	Timeout        time.Duration
}

func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimw.Timeout(cfg.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Route("/api", func(r chi.Router) {
		// Stripe posts here unauthenticated; the signature is the credential.
		r.Post("/webhooks/stripe", h.Webhook.HandleStripe)

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.Tokens))
			r.Get("/courses/{courseID}", h.Courses.GetCourse)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(chimw.AllowContentType("application/json"))
			r.Use(middleware.AuthMiddleware(cfg.Tokens))

			r.Post("/checkout", h.Checkout.CreateSession)

			r.Post("/courses", h.Courses.CreateCourse)
			r.Put("/courses/{courseID}", h.Courses.UpdateCourse)
			r.Post("/courses/{courseID}/publish", h.Courses.PublishCourse)
			r.Post("/courses/{courseID}/modules", h.Courses.AddModule)
			r.Get("/courses/{courseID}/progress", h.Learner.CourseProgress)
			r.Post("/modules/{moduleID}/lessons", h.Courses.AddLesson)
			r.Post("/lessons/{lessonID}/questions", h.Courses.AddQuestion)
			r.Put("/lessons/{lessonID}/video", h.Courses.SetVideo)
			r.Post("/lessons/{lessonID}/complete", h.Learner.CompleteLesson)
			r.Post("/lessons/{lessonID}/quiz", h.Learner.SubmitQuiz)

			r.Get("/me/enrollments", h.Learner.ListEnrollments)
			r.Post("/me/invitations/consume", h.Learner.ConsumeInvitations)
			r.Post("/invitations/accept", h.Learner.AcceptInvitation)

			r.Route("/accounts/{accountID}", func(r chi.Router) {
				r.Get("/seats", h.Team.SeatUsage)
				r.Post("/invitations", h.Team.Invite)
				r.Post("/enrollments", h.Team.Enroll)
			})
			r.Delete("/invitations/{invitationID}", h.Team.RevokeInvitation)
			r.Delete("/enrollments/{enrollmentID}", h.Team.RevokeEnrollment)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireServiceRole)

				r.Get("/purchases/{sessionID}", h.Admin.InspectPurchase)
				r.Post("/purchases/{sessionID}/replay", h.Admin.ReplayPurchase)
				r.Get("/reconciliation-logs", h.Admin.ReconciliationLogs)
				r.Post("/reconcile", h.Admin.RunSweep)

				r.Get("/products", h.Admin.ListProducts)
				r.Put("/products", h.Admin.UpsertProduct)
				r.Delete("/products/{priceID}", h.Admin.DeactivateProduct)
				r.Post("/catalog/sync", h.Admin.SyncCatalog)
				r.Post("/accounts/{accountID}/seats", h.Admin.GrantSeats)
			})
		})
	})

	return r
}
