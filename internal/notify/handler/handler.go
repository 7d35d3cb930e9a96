// Package handler exposes the notification pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bloomence/internal/identity"
	"bloomence/internal/notify/service"
	"bloomence/internal/platform/middleware"
	dErrors "bloomence/pkg/domain-errors"
	"bloomence/pkg/requestcontext"
)

// Service defines the orchestrator operations the handler exposes.
type Service interface {
	Register(ctx context.Context, uid, email, name string) (string, error)
	Login(ctx context.Context, uid string) (string, error)
	Seen(ctx context.Context, uid string) (string, error)
	SendTest(ctx context.Context, uid string, req service.TestRequest) (string, error)
}

// Handler handles the /api/notifications endpoints.
type Handler struct {
	logger   *slog.Logger
	notify   Service
	verifier identity.Verifier
	origins  []string
}

// New creates a notifications Handler.
func New(notify Service, verifier identity.Verifier, logger *slog.Logger, origins []string) *Handler {
	return &Handler{
		logger:   logger,
		notify:   notify,
		verifier: verifier,
		origins:  origins,
	}
}

// Register mounts the notification routes with their middleware chain.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.Timeout(30 * time.Second))
	api.Use(middleware.ContentTypeJSON)
	api.Use(middleware.CORS(h.origins))
	api.Use(middleware.RequireAuth(h.verifier, h.logger))
	api.Post("/register", h.handleRegister)
	api.Post("/login", h.handleLogin)
	api.Post("/seen", h.handleSeen)
	api.Post("/test", h.handleTest)

	r.Mount("/api/notifications", api)
}

type registerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type testRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

type messageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := requestcontext.UserID(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dErrors.WriteHTTP(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	msg, err := h.notify.Register(ctx, uid, req.Email, req.Name)
	if err != nil {
		h.logError(ctx, "register", err)
		dErrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, messageResponse{Message: msg})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msg, err := h.notify.Login(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logError(ctx, "login", err)
		dErrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, messageResponse{Message: msg})
}

func (h *Handler) handleSeen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	msg, err := h.notify.Seen(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logError(ctx, "seen", err)
		dErrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, messageResponse{Message: msg})
}

func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := requestcontext.UserID(ctx)

	var req testRequest
	if r.Body != nil {
		// An empty body is allowed; required fields are validated below.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	id, err := h.notify.SendTest(ctx, uid, service.TestRequest{
		To:      req.To,
		Subject: req.Subject,
		HTML:    req.HTML,
		Text:    req.Text,
	})
	if err != nil {
		h.logError(ctx, "test email", err)
		dErrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, messageResponse{Message: "Test email sent", ID: id})
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeBadRequest) || dErrors.HasCode(err, dErrors.CodeNotFound) {
		return
	}
	h.logger.ErrorContext(ctx, op+" failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
