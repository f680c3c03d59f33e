// Package api serves the local HTTP console over a workflow controller.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Veraticus/claimflow/internal/model"
	"github.com/Veraticus/claimflow/internal/workflow"
)

const requestIDHeader = "X-Request-ID"

// Handler wires console routes to the workflow controller.
type Handler struct {
	controller *workflow.Controller
	logger     *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(controller *workflow.Controller, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{controller: controller, logger: logger.With("component", "api")}
}

// NewRouter returns a gin engine with the console routes registered.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.health)

	api := router.Group("/api/workflow")
	api.GET("", h.snapshot)
	api.GET("/log", h.log)
	api.POST("/submit", h.submit)
	api.POST("/notify", h.notify)
	api.POST("/poll", h.poll)
	api.POST("/finalize", h.finalize)
	api.POST("/reset", h.reset)
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		h.logger.Debug("Console request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Snapshot())
}

// log returns entries after the optional ?since=n offset.
func (h *Handler) log(c *gin.Context) {
	since := 0
	if raw := c.Query("since"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative integer"})
			return
		}
		since = n
	}

	entries := h.controller.Log().Since(since)
	if entries == nil {
		entries = []model.LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"next":    since + len(entries),
	})
}

type submitRequest struct {
	UserID        string `json:"user_id"`
	HospitalEmail string `json:"hospital_email"`
	DischargeFile string `json:"discharge_file"`
	BillFile      string `json:"bill_file"`
	PolicyFile    string `json:"policy_file"`
}

func (r submitRequest) draft() model.ClaimDraft {
	draft := model.ClaimDraft{
		UserID:        r.UserID,
		HospitalEmail: r.HospitalEmail,
		DischargeFile: model.NewDocument(r.DischargeFile),
		BillFile:      model.NewDocument(r.BillFile),
	}
	if r.PolicyFile != "" {
		policy := model.NewDocument(r.PolicyFile)
		draft.PolicyFile = &policy
	}
	return draft
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.controller.Submit(c.Request.Context(), req.draft()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.controller.Snapshot())
}

type notifyRequest struct {
	HospitalEmail string `json:"hospital_email"`
}

func (h *Handler) notify(c *gin.Context) {
	var req notifyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	if err := h.controller.Notify(c.Request.Context(), req.HospitalEmail); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.controller.Snapshot())
}

func (h *Handler) poll(c *gin.Context) {
	status, err := h.controller.PollStatus(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"can_finalize": h.controller.CanFinalize(),
	})
}

func (h *Handler) finalize(c *gin.Context) {
	receipt, err := h.controller.Finalize(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) reset(c *gin.Context) {
	if err := h.controller.Reset(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Warn("Workflow step failed", "path", c.FullPath(), "error", err)
	}
	body := gin.H{"error": err.Error()}
	if f := h.controller.Snapshot().Failure; f != nil {
		body["failure"] = f
	}
	c.JSON(code, body)
}

// statusFor maps workflow errors to HTTP status codes.
func statusFor(err error) int {
	var (
		missing   *workflow.MissingInputError
		rejected  *workflow.ValidationRejectedError
		transport *workflow.TransportError
		finalize  *workflow.FinalizeError
	)

	switch {
	case errors.Is(err, workflow.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &missing), errors.Is(err, workflow.ErrMissingEmail):
		return http.StatusBadRequest
	case errors.As(err, &rejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrFinalizeNotAllowed), errors.Is(err, workflow.ErrNoClaimRecord):
		return http.StatusConflict
	case errors.As(err, &transport), errors.As(err, &finalize):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
