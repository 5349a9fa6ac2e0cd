package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kudi-pay/kudi_pay/internal/authz"
	"github.com/kudi-pay/kudi_pay/internal/config"
	"github.com/kudi-pay/kudi_pay/internal/events"
	"github.com/kudi-pay/kudi_pay/internal/funding"
	"github.com/kudi-pay/kudi_pay/internal/ledger"
	"github.com/kudi-pay/kudi_pay/internal/middleware"
	"github.com/kudi-pay/kudi_pay/internal/payments"
	"github.com/kudi-pay/kudi_pay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.OwnerIdentity())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Storage backends. Without a database the in-memory engine backs both
	// the ledger and the wallet store so they share one state.
	var (
		engine      ledger.Engine
		walletStore wallet.Store
	)
	if d.DB != nil {
		engine = ledger.NewPostgres(d.DB, d.Cfg.TransferMaxRetries)
		walletStore = wallet.NewPostgresStore(d.DB)
	} else {
		mem := ledger.NewInMemory()
		engine = mem
		walletStore = mem.WalletStore()
	}

	var limiter authz.AttemptLimiter
	if d.Cache != nil {
		limiter = authz.NewRedisLimiter(d.Cache, d.Cfg.PinAttemptWindow)
	} else {
		limiter = authz.NewMemoryLimiter()
	}

	var emitter events.Emitter
	if d.Cache != nil {
		emitter = events.NewRedisEmitter(d.Cache)
	} else {
		emitter = events.NewLogEmitter(d.Logger)
	}

	walletSvc := wallet.NewService(walletStore, d.Cfg.DefaultCurrency)
	gate := authz.NewGate(walletStore, limiter, d.Cfg.PinMaxAttempts, d.Logger)
	paymentSvc := payments.NewService(engine, walletSvc, gate, emitter, d.Logger)
	fundingSvc := funding.NewService(engine, walletSvc, gate, nil, emitter, d.Logger)

	walletHandler := wallet.NewHandler(walletSvc)
	paymentHandler := payments.NewHandler(paymentSvc)
	fundingHandler := funding.NewHandler(fundingSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler)
	RegisterPaymentRoutes(api, paymentHandler)
	RegisterFundingRoutes(api, fundingHandler)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
