package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-member-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/counter"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/donation"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/mailer"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/server"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/setting"
	settingrepo "github.com/ovaphlow/pitchfork/service-member-go/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/subscriber"
	subscriberrepo "github.com/ovaphlow/pitchfork/service-member-go/internal/subscriber/repo"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/upload"
	"github.com/ovaphlow/pitchfork/service-member-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-member-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-member-go/pkg/utilities"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := setup()
			if err != nil {
				return err
			}
			defer lg.Sync()

			app := fx.New(
				fx.Supply(cfg, lg),
				fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: l.Named("fx")}
				}),
				fx.Provide(
					newSugar,
					newDB,
					newIDs,
					newIssuer,
					newMailer,
					newUploadStore,
					newLedger,
					newGateway,
					newUserService,
					newGuard,
					newDonationService,
					newProcessor,
					newHandlers,
					newEngine,
					server.NewHTTPServer,
				),
				fx.Invoke(startHTTPServer),
			)
			app.Run()
			return app.Err()
		},
	}
}

func newSugar(lg *zap.Logger) *zap.SugaredLogger { return lg.Sugar() }

func newDB(lc fx.Lifecycle, cfg config.Config) (*sqlx.DB, error) {
	db, err := database.Connect(database.NewConfig(cfg.DatabaseURL, cfg.DatabaseTimeZone, cfg.DatabaseClientEncoding))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return db.Close() },
	})
	return db, nil
}

func newIDs(cfg config.Config) (utilities.IDGenerator, error) {
	return utilities.NewSnowflakeGenerator(cfg.SnowflakeNode)
}

func newIssuer(cfg config.Config) *auth.Issuer {
	return auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
}

// newMailer falls back to a logging no-op sender when SMTP is not configured.
func newMailer(cfg config.Config, logger *zap.SugaredLogger) (mailer.Sender, error) {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, outgoing email is disabled")
		return mailer.NopSender{Logger: logger}, nil
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
}

func newUploadStore(cfg config.Config) (upload.Store, error) {
	if cfg.UploadS3Bucket == "" {
		return upload.NewLocalStore(cfg.UploadDir), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return upload.NewS3StoreFromEnv(ctx, cfg.UploadS3Bucket, cfg.UploadS3Region)
}

// newLedger uses Redis for webhook de-duplication when REDIS_ADDR is set.
func newLedger(lc fx.Lifecycle, cfg config.Config, logger *zap.SugaredLogger) (donation.EventLedger, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, webhook events are not de-duplicated")
		return donation.NopLedger{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return client.Close() },
	})
	return donation.NewRedisLedger(client), nil
}

func newGateway(cfg config.Config) donation.Gateway {
	return donation.NewStripeGateway(cfg.StripeSecretKey)
}

func newUserService(
	cfg config.Config,
	db *sqlx.DB,
	issuer *auth.Issuer,
	mail mailer.Sender,
	files upload.Store,
	ids utilities.IDGenerator,
	logger *zap.SugaredLogger,
) *user.Service {
	return user.NewService(user.Deps{
		Store:         userrepo.NewUserRepo(db),
		Resets:        userrepo.NewResetRepo(db),
		Counter:       counter.NewReceiptAllocator(db),
		Hasher:        user.MigratingHasher{},
		Tokens:        issuer,
		Mail:          mail,
		Files:         files,
		IDs:           ids,
		Logger:        logger.Named("user"),
		ResetLinkBase: cfg.ResetLinkBase,
	})
}

func newGuard(issuer *auth.Issuer, users *user.Service, logger *zap.SugaredLogger) *auth.Middleware {
	return auth.NewMiddleware(issuer, users, logger.Named("auth"))
}

func newDonationService(db *sqlx.DB, gateway donation.Gateway, logger *zap.SugaredLogger) *donation.Service {
	return donation.NewService(gateway, donation.NewRepo(db), logger.Named("donation"))
}

func newProcessor(
	cfg config.Config,
	db *sqlx.DB,
	gateway donation.Gateway,
	users *user.Service,
	mail mailer.Sender,
	ledger donation.EventLedger,
	ids utilities.IDGenerator,
	logger *zap.SugaredLogger,
) *donation.Processor {
	return donation.NewProcessor(donation.ProcessorDeps{
		WebhookSecret: cfg.StripeWebhookSecret,
		Gateway:       gateway,
		Repo:          donation.NewRepo(db),
		Donors:        users,
		Mail:          mail,
		Ledger:        ledger,
		IDs:           ids,
		Logger:        logger.Named("webhook"),
	})
}

func newHandlers(
	db *sqlx.DB,
	users *user.Service,
	donations *donation.Service,
	processor *donation.Processor,
	logger *zap.SugaredLogger,
) router.Handlers {
	return router.Handlers{
		Users:       user.NewHandler(users, logger),
		Donations:   donation.NewHandler(donations, processor, logger),
		Settings:    setting.NewHandler(setting.NewService(settingrepo.NewRepo(db)), logger),
		Subscribers: subscriber.NewHandler(subscriber.NewService(subscriberrepo.NewSubscriberRepo(db), logger), logger),
	}
}

func newEngine(cfg config.Config, guard *auth.Middleware, h router.Handlers, logger *zap.SugaredLogger) *gin.Engine {
	if !utilities.ConfigFromEnv().Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	return router.New(router.OptionsFromConfig(cfg), guard, h, logger.Named("http"))
}

// startHTTPServer runs the server for the app's lifetime. A server that
// stops on its own, for example when the address is taken, shuts the app
// down with exit code 1.
func startHTTPServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *server.HTTPServer, cfg config.Config, logger *zap.SugaredLogger) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})
			go func() {
				defer close(done)
				if err := srv.Run(runCtx, cfg.HTTPAddr); err != nil {
					logger.Errorw("http server stopped", "err", err)
					if err := shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
						logger.Errorw("shutdown app", "err", err)
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
