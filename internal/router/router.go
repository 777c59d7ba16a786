package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/civium/rewards-core/internal/api/middlewares"
	"github.com/civium/rewards-core/internal/config"
)

type CustomRouter struct {
	router *chi.Mux
	logger *slog.Logger
	cfg    *config.Config
}

func New(cfg *config.Config, log *slog.Logger) *CustomRouter {
	return &CustomRouter{
		router: chi.NewRouter(),
		logger: log,
		cfg:    cfg,
	}
}

type AuthHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
}

type ActionsHandler interface {
	SubmitQuiz(w http.ResponseWriter, r *http.Request)
	CompleteTask(w http.ResponseWriter, r *http.Request)
	CastVote(w http.ResponseWriter, r *http.Request)
	CheckIn(w http.ResponseWriter, r *http.Request)
}

type LedgerHandler interface {
	GetBalance(w http.ResponseWriter, r *http.Request)
	GetHistory(w http.ResponseWriter, r *http.Request)
}

type RedemptionHandler interface {
	Redeem(w http.ResponseWriter, r *http.Request)
	ListRedemptions(w http.ResponseWriter, r *http.Request)
}

type WebhookHandler interface {
	PurchaseWebhook(w http.ResponseWriter, r *http.Request)
}

type AdminHandler interface {
	Suspend(w http.ResponseWriter, r *http.Request)
	Restore(w http.ResponseWriter, r *http.Request)
	Adjust(w http.ResponseWriter, r *http.Request)
	RefundRedemption(w http.ResponseWriter, r *http.Request)
}

type HealthHandler interface {
	Ping(w http.ResponseWriter, r *http.Request)
}

type Handler interface {
	AuthHandler
	ActionsHandler
	LedgerHandler
	RedemptionHandler
	WebhookHandler
	AdminHandler
	HealthHandler
}

func (cr *CustomRouter) SetRouter(h Handler, audits middlewares.AuditRecorder) {
	secret := []byte(cr.cfg.SecretKey)

	cr.router.Route("/api/member", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middlewares.Authentication(secret, cr.logger))
			r.Use(middlewares.Audit(audits, cr.logger))

			r.Route("/actions", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				r.Post("/quiz", h.SubmitQuiz)
				r.Post("/task", h.CompleteTask)
				r.Post("/vote", h.CastVote)
				r.Post("/checkin", h.CheckIn)
			})

			r.Get("/balance", h.GetBalance)
			r.Get("/transactions", h.GetHistory)

			r.Route("/redemptions", func(r chi.Router) {
				r.With(middleware.AllowContentType("application/json")).
					Post("/", h.Redeem)
				r.Get("/", h.ListRedemptions)
			})
		})
	})

	cr.router.With(middleware.AllowContentType("application/json")).
		Post("/api/webhooks/purchase", h.PurchaseWebhook)

	cr.router.Route("/api/admin", func(r chi.Router) {
		r.Use(middlewares.Authentication(secret, cr.logger))
		r.Use(middleware.AllowContentType("application/json"))
		r.Post("/suspensions", h.Suspend)
		r.Delete("/suspensions/{memberID}", h.Restore)
		r.Post("/adjustments", h.Adjust)
		r.Post("/redemptions/{redemptionID}/refund", h.RefundRedemption)
	})

	cr.router.Get("/ping", h.Ping)

	cr.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w,
			http.StatusText(http.StatusMethodNotAllowed),
			http.StatusMethodNotAllowed)
	})
}

func (cr *CustomRouter) GetRouter() *chi.Mux {
	return cr.router
}
