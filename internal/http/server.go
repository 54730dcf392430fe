package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"lms-dashboard-go/internal/auth"
	"lms-dashboard-go/internal/config"
	"lms-dashboard-go/internal/guard"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/realtime"
	"lms-dashboard-go/internal/services"
)

// Services groups the repositories the handlers call into.
type Services struct {
	Profiles      *services.ProfileService
	Courses       *services.CourseService
	Documents     *services.DocumentService
	Enrollments   *services.EnrollmentService
	Assignments   *services.AssignmentService
	Submissions   *services.SubmissionService
	Messages      *services.MessageService
	Notifications *services.NotificationService
	Stats         *services.StatsService
	Files         *services.FileService
	Metrics       *services.MetricsRecorder
}

type Server struct {
	Config config.Config
	Auth   *auth.Service
	Hub    *realtime.Hub
	Log    *logger.Logger
	// MediaRoot is served under /media when objects are stored on local disk.
	MediaRoot string
	Services
}

func NewServer(cfg config.Config, authService *auth.Service, svc Services, hub *realtime.Hub, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{
		Config:   cfg,
		Auth:     authService,
		Hub:      hub,
		Log:      log.With("component", "http"),
		Services: svc,
	}
	if cfg.StorageDriver == config.StorageLocal {
		s.MediaRoot = cfg.MediaStoragePath
	}
	return s
}

var (
	staffOnly = guard.Roles(models.RoleTutor, models.RoleAdmin)
	adminOnly = guard.Roles(models.RoleAdmin)
	students  = guard.Roles(models.RoleStudent)
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.Log))
	if len(s.Config.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.Config.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Group(func(rest chi.Router) {
		rest.Use(s.WithSession)
		rest.Use(Require(guard.Any()))

		rest.Route("/courses", func(courses chi.Router) {
			courses.Get("/", s.ListCourses)
			courses.With(Require(staffOnly)).Post("/", s.CreateCourse)
			courses.Get("/{id}", s.GetCourse)
			courses.With(Require(staffOnly)).Put("/{id}", s.UpdateCourse)
			courses.With(Require(staffOnly)).Delete("/{id}", s.DeleteCourse)
		})

		rest.Route("/course-documents", func(docs chi.Router) {
			docs.Get("/", s.ListDocuments)
			docs.With(Require(staffOnly)).Post("/", s.CreateDocument)
			docs.Get("/course/{course_id}", s.ListCourseDocuments)
			docs.Get("/{id}", s.GetDocument)
			docs.With(Require(staffOnly)).Put("/{id}", s.UpdateDocument)
			docs.With(Require(staffOnly)).Delete("/{id}", s.DeleteDocument)
		})

		rest.Post("/upload", s.Upload)
		rest.Get("/file", s.FileURL)
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", s.Register)
		api.Post("/auth/login", s.Login)
		api.Post("/auth/refresh", s.Refresh)
		api.Post("/auth/logout", s.Logout)
		api.Post("/auth/reset-password", s.ResetPassword)
		api.Post("/auth/reset-password/confirm", s.ConfirmResetPassword)

		api.Group(func(private chi.Router) {
			private.Use(s.WithSession)
			private.Use(Require(guard.Any()))

			private.Get("/me", s.Me)
			private.Put("/me", s.UpdateMe)
			private.Get("/profiles/{id}", s.GetProfile)
			private.Get("/stats", s.StatsSummary)

			private.Route("/enrollments", func(enrollments chi.Router) {
				enrollments.With(Require(students)).Get("/", s.MyEnrollments)
				enrollments.Post("/", s.Enroll)
				enrollments.Delete("/{id}", s.DropEnrollment)
				enrollments.Put("/{id}/progress", s.UpdateProgress)
			})
			private.With(Require(staffOnly)).Get("/students", s.Students)

			private.Route("/assignments", func(assignments chi.Router) {
				assignments.Get("/", s.ListAssignments)
				assignments.With(Require(staffOnly)).Post("/", s.CreateAssignment)
				assignments.Get("/{id}", s.GetAssignment)
				assignments.With(Require(staffOnly)).Put("/{id}", s.UpdateAssignment)
				assignments.With(Require(staffOnly)).Delete("/{id}", s.DeleteAssignment)
				assignments.Get("/{id}/files", s.AssignmentFiles)
				assignments.With(Require(staffOnly)).Post("/{id}/files", s.AttachAssignmentFile)
				assignments.With(Require(staffOnly)).Get("/{id}/submissions", s.AssignmentSubmissions)
			})

			private.Route("/submissions", func(submissions chi.Router) {
				submissions.With(Require(students)).Post("/", s.Submit)
				submissions.With(Require(students)).Get("/mine", s.MySubmissions)
				submissions.With(Require(staffOnly)).Get("/needs-grading", s.NeedsGrading)
				submissions.Get("/recent-grades", s.RecentGrades)
				submissions.With(Require(staffOnly)).Post("/{id}/grade", s.GradeSubmission)
				submissions.Get("/{id}/files", s.SubmissionFiles)
			})

			private.Route("/messages", func(messages chi.Router) {
				messages.Get("/conversations", s.Conversations)
				messages.Get("/unread", s.UnreadMessages)
				messages.Post("/", s.SendMessage)
				messages.Get("/with/{userId}", s.MessageHistory)
				messages.Post("/with/{userId}/read", s.MarkMessagesRead)
				messages.Get("/{id}", s.GetMessage)
			})

			private.Route("/notifications", func(notifications chi.Router) {
				notifications.Get("/", s.ListNotifications)
				notifications.Post("/read", s.MarkNotificationsRead)
				notifications.Post("/read-all", s.MarkAllNotificationsRead)
			})

			private.Route("/admin", func(admin chi.Router) {
				admin.Use(Require(adminOnly))
				admin.Get("/users", s.SearchUsers)
				admin.Put("/users/{id}/role", s.SetUserRole)
				admin.Get("/system", s.SystemMetrics)
			})
		})
	})

	r.Get("/ws/events", s.EventsSocket)
	if s.MediaRoot != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(s.MediaRoot))))
	}
	return r
}
