package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/donation"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/setting"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/subscriber"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user"
)

// Options are the HTTP-level settings taken from config.
type Options struct {
	AllowedOrigins []string
	RateLimitRPM   int
	// UploadDir is served at /uploads when set.
	UploadDir string
}

func OptionsFromConfig(cfg config.Config) Options {
	dir := cfg.UploadDir
	if cfg.UploadS3Bucket != "" {
		dir = ""
	}
	return Options{AllowedOrigins: cfg.CORSAllowedOrigins, RateLimitRPM: cfg.RateLimitRPM, UploadDir: dir}
}

// Handlers groups the feature handlers mounted by New.
type Handlers struct {
	Users       *user.Handler
	Donations   *donation.Handler
	Settings    *setting.Handler
	Subscribers *subscriber.Handler
}

// New builds the gin engine. CORS runs on the engine so preflight requests,
// which match no route, still get answered. The payment webhook sits at the
// root outside rate limiting; everything else lives under /api.
func New(opts Options, guard *auth.Middleware, h Handlers, logger *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger), SecurityHeaders(), CORS(opts.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if opts.UploadDir != "" {
		r.Static("/uploads", opts.UploadDir)
	}
	if h.Donations != nil {
		h.Donations.RegisterWebhook(r)
	}

	api := r.Group("/api", NewRateLimiter(opts.RateLimitRPM).Handler())
	if h.Users != nil {
		h.Users.RegisterRoutes(api, guard)
	}
	if h.Donations != nil {
		h.Donations.RegisterRoutes(api, guard)
	}
	if h.Settings != nil {
		h.Settings.RegisterRoutes(api, guard)
	}
	if h.Subscribers != nil {
		h.Subscribers.RegisterRoutes(api, guard)
	}
	return r
}
