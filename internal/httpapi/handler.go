package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/amishk599/inboxsheet/internal/model"
	"github.com/amishk599/inboxsheet/internal/runlock"
)

// TokenHeader carries the shared secret when a webhook token is configured.
const TokenHeader = "X-Webhook-Token"

// Trigger starts one guarded pipeline run.
type Trigger interface {
	Trigger(ctx context.Context) (model.RunSummary, error)
}

// HttpHandler serves the status endpoints and the run webhook.
type HttpHandler struct {
	trigger Trigger
	token   string
	logger  *slog.Logger
}

// NewHttpHandler returns the handler. An empty token leaves the webhook open.
func NewHttpHandler(trigger Trigger, token string, logger *slog.Logger) *HttpHandler {
	return &HttpHandler{trigger: trigger, token: token, logger: logger}
}

func (h *HttpHandler) Register(e *echo.Echo) {
	e.GET("/", h.Index)
	e.GET("/health", h.Health)
	e.POST("/webhook", h.Webhook)
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *HttpHandler) Index(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{Status: "running", Message: "Job Scraper Service is active."})
}

func (h *HttpHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{Status: "healthy"})
}

// Webhook runs the pipeline once and replies with the run summary.
//
// 200: the run completed (possibly with per-message failures).
// 500: the run failed as a whole.
// 409: another run holds the sink lock.
// 401: the token header is missing or wrong.
func (h *HttpHandler) Webhook(c echo.Context) error {
	if h.token != "" {
		got := c.Request().Header.Get(TokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid webhook token"})
		}
	}

	h.logger.Info("webhook received, starting run", "request_id", c.Response().Header().Get(echo.HeaderXRequestID))

	// The run outlives a client that hangs up; GuardedRunner bounds it.
	ctx := context.WithoutCancel(c.Request().Context())
	summary, err := h.trigger.Trigger(ctx)
	switch {
	case errors.Is(err, runlock.ErrBusy):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		h.logger.Error("run could not start", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	case !summary.Success:
		return c.JSON(http.StatusInternalServerError, summary)
	}
	return c.JSON(http.StatusOK, summary)
}
