package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"winbridge/internal/constants"
	apperrors "winbridge/internal/errors"
	"winbridge/internal/features"
	"winbridge/internal/intake"
	"winbridge/internal/middleware"
	"winbridge/internal/models"
	"winbridge/internal/queue"
	"winbridge/internal/service"
	"winbridge/internal/tracing"
)

// LifecycleHandler turns a lifecycle webhook into a queued direct message
type LifecycleHandler interface {
	Handle(ctx context.Context, evt models.LifecycleEvent) (intake.Result, error)
}

// QueueView is the read side of the delivery queue served over HTTP
type QueueView interface {
	Stats() queue.Stats
	Snapshot() (pending, sent []models.ScheduledMessage)
}

type Server struct {
	cfg       *models.Config
	flags     *features.FlagManager
	router    *mux.Router
	logger    *logrus.Logger
	intake    LifecycleHandler
	queue     QueueView
	approvals service.PendingCounter
	limiter   *RateLimiter
	proxies   *middleware.TrustedProxies
	server    *http.Server
}

func NewServer(cfg *models.Config, flags *features.FlagManager, lifecycle LifecycleHandler, q QueueView, approvals service.PendingCounter, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		flags:     flags,
		router:    mux.NewRouter(),
		logger:    logger,
		intake:    lifecycle,
		queue:     q,
		approvals: approvals,
		limiter:   NewRateLimiter(constants.WebhookRateLimitRequests, time.Duration(constants.WebhookRateLimitWindowSec)*time.Second),
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		logger.WithError(err).Warn("Ignoring trusted proxies, forwarding headers will not be read")
		proxies = nil
	}
	s.proxies = proxies

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.proxies))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/scheduled", s.handleScheduled()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	webhook := s.router.PathPrefix("/webhook").Subrouter()
	if s.flags.IsEnabled(features.FlagWebhookRateLimit) {
		webhook.Use(s.limiter.Middleware(s.proxies, s.logger))
	}
	webhook.Use(middleware.WebhookObservabilityMiddleware(s.logger, "lifecycle"))
	webhook.HandleFunc("/lifecycle", s.handleLifecycleWebhook()).Methods(http.MethodPost)
	// path used by the existing CRM automation
	webhook.HandleFunc("/gohighlevel", s.handleLifecycleWebhook()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.WithFields(logrus.Fields{
		"port":     s.cfg.Server.Port,
		"webhooks": []string{"/webhook/lifecycle", "/webhook/gohighlevel"},
	}).Info("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type lifecycleData struct {
	DiscordUserID string     `json:"discordUserId"`
	FirstName     string     `json:"firstName"`
	Count         int        `json:"count"`
	Sent          bool       `json:"sent"`
	SentAt        *time.Time `json:"sentAt"`
}

type lifecycleResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    lifecycleData `json:"data"`
}

type healthResponse struct {
	Status           string `json:"status"`
	TotalQueued      int    `json:"totalQueued"`
	PendingCount     int    `json:"pendingCount"`
	PendingApprovals int    `json:"pendingApprovals"`
}

type scheduledResponse struct {
	Total   int                       `json:"total"`
	Pending []models.ScheduledMessage `json:"pending"`
	Sent    []models.ScheduledMessage `json:"sent"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := s.queue.Stats()
		resp := healthResponse{
			Status:       "ok",
			TotalQueued:  stats.Total,
			PendingCount: stats.Pending,
		}
		if s.approvals != nil {
			resp.PendingApprovals = s.approvals.PendingCount()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleScheduled() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, sent := s.queue.Snapshot()
		if pending == nil {
			pending = []models.ScheduledMessage{}
		}
		if sent == nil {
			sent = []models.ScheduledMessage{}
		}
		writeJSON(w, http.StatusOK, scheduledResponse{
			Total:   len(pending) + len(sent),
			Pending: pending,
			Sent:    sent,
		})
	}
}

func (s *Server) handleLifecycleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := s.logger.WithField(service.LogFieldRequestID, tracing.GetRequestID(ctx))

		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxWebhookBodyBytes)
		body, err := verifySignature(r, s.cfg.Server.WebhookSecret, signatureHeader, s.cfg.IsProduction())
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
				return
			}
			authErr := apperrors.NewAuthError(err.Error())
			log.WithError(err).Warn("Lifecycle webhook failed signature verification")
			writeJSON(w, apperrors.HTTPStatusCode(authErr), errorResponse{Error: "unauthorized"})
			return
		}

		evt, err := decodeLifecycleEvent(r.Header.Get("Content-Type"), body)
		if err != nil {
			log.WithError(err).Warn("Malformed lifecycle webhook payload")
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid payload"})
			return
		}

		res, err := s.intake.Handle(ctx, evt)
		switch {
		case errors.Is(err, intake.ErrMissingTarget), errors.Is(err, intake.ErrUnknownTrigger):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		case err != nil:
			log.WithError(err).Error("Failed to process lifecycle webhook")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: apperrors.ResponseMessage(err)})
			return
		}

		writeJSON(w, http.StatusOK, lifecycleResponse{
			Success: true,
			Message: res.Message(),
			Data: lifecycleData{
				DiscordUserID: res.Record.TargetUserID,
				FirstName:     res.FirstName,
				Count:         res.Count,
				Sent:          res.Record.Sent,
				SentAt:        res.Record.SentAt,
			},
		})
	}
}

// decodeLifecycleEvent accepts JSON bodies and urlencoded forms
func decodeLifecycleEvent(contentType string, body []byte) (models.LifecycleEvent, error) {
	var evt models.LifecycleEvent
	if len(bytes.TrimSpace(body)) == 0 {
		return evt, nil
	}

	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return evt, fmt.Errorf("parse form body: %w", err)
		}
		fields := make(map[string]string, len(values))
		for k := range values {
			fields[k] = values.Get(k)
		}
		body, err = json.Marshal(fields)
		if err != nil {
			return evt, fmt.Errorf("re-encode form body: %w", err)
		}
	}

	if err := json.Unmarshal(body, &evt); err != nil {
		return evt, fmt.Errorf("decode lifecycle event: %w", err)
	}
	return evt, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
