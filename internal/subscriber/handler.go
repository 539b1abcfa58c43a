package subscriber

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/subscriber/entity"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts /news-letter. PATCH is accepted for subscribing as
// older clients use it.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup, guard *auth.Middleware) {
	g := api.Group("/news-letter")
	g.POST("", h.Subscribe)
	g.PATCH("", h.Subscribe)
	g.GET("", guard.RequireAuth(), guard.Require(auth.CapManageUsers), h.List)
}

func (h *Handler) Subscribe(c *gin.Context) {
	var in struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format."})
		return
	}
	email, err := h.svc.Subscribe(c.Request.Context(), in.Email, entity.RecordMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		apperror.Respond(c, h.logger, err, "Server error adding user to newsletter.")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Thank you for subscribing to our newsletter.", "email": email})
}

func (h *Handler) List(c *gin.Context) {
	emails, err := h.svc.Emails(c.Request.Context())
	if err != nil {
		apperror.Respond(c, h.logger, err, "Server error fetching news letter.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": emails})
}
