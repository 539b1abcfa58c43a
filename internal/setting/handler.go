package setting

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/auth"
)

// Handler contains dependencies for handling setting endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

// NewHandler constructs a new Handler.
func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *gin.RouterGroup, guard *auth.Middleware) {
	api.GET("/settings", h.Get)
	api.PATCH("/settings", guard.RequireAuth(), guard.Require(auth.CapManageSettings), h.Update)
}

func (h *Handler) Get(c *gin.Context) {
	v, err := h.svc.Site(c.Request.Context())
	if err != nil {
		apperror.Respond(c, h.logger, err, "Server error fetching settings.")
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) Update(c *gin.Context) {
	var p SitePatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body."})
		return
	}
	v, err := h.svc.UpdateSite(c.Request.Context(), p)
	if err != nil {
		apperror.Respond(c, h.logger, err, "Server error updating settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settings updated successfully.", "page": v})
}
