package donation

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/auth"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	svc       *Service
	processor *Processor
	logger    *zap.SugaredLogger
}

func NewHandler(svc *Service, processor *Processor, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, processor: processor, logger: logger}
}

// RegisterRoutes mounts /donate below api.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, guard *auth.Middleware) {
	api.POST("/donate", h.Donate)
	api.GET("/donate", guard.RequireAuth(), guard.Require(auth.CapViewDonations), h.List)
}

// RegisterWebhook mounts the Stripe endpoint at /webhook on r. It must sit
// outside any middleware that consumes the request body.
func (h *Handler) RegisterWebhook(r gin.IRoutes) {
	r.POST("/webhook", h.Webhook)
}

func (h *Handler) Donate(c *gin.Context) {
	var in DonateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing donation amount or userId"})
		return
	}
	secret, err := h.svc.Donate(c.Request.Context(), in)
	if err != nil {
		apperror.Respond(c, h.logger, err, "Error creating PaymentIntent.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientSecret": secret})
}

func (h *Handler) List(c *gin.Context) {
	out, err := h.svc.List(c.Request.Context())
	if err != nil {
		apperror.Respond(c, h.logger, err, "Server error fetching donations.")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.String(http.StatusBadRequest, "Webhook Error: unreadable body")
		return
	}
	if err := h.processor.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		if errors.Is(err, ErrSignature) {
			h.logger.Warnw("webhook signature verification failed", "err", err)
			c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
			return
		}
		h.logger.Errorw("webhook processing", "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
