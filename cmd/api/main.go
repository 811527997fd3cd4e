package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/Caja-clinica-api/internal/application/cashier"
	"github.com/jhoicas/Caja-clinica-api/internal/infrastructure/clinicapi"
	infrapdf "github.com/jhoicas/Caja-clinica-api/internal/infrastructure/pdf"
	"github.com/jhoicas/Caja-clinica-api/internal/infrastructure/postgres"
	"github.com/jhoicas/Caja-clinica-api/internal/infrastructure/redisstore"
	httpRouter "github.com/jhoicas/Caja-clinica-api/internal/interfaces/http"
	"github.com/jhoicas/Caja-clinica-api/pkg/config"
	"github.com/jhoicas/Caja-clinica-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()

	// PostgreSQL: bitácora de intentos de liquidación.
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	// Redis: marcadores de recuperación de pagos en vuelo.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("conexión a Redis")
	}
	defer redisClient.Close()

	// Backend clínico (HIS): dueño de facturas, pagos y visitas.
	gateway := clinicapi.NewClient(cfg.Clinic.BaseURL, cfg.Clinic.APIKey, cfg.Clinic.Timeout(), log)

	recoveryStore := redisstore.NewRecoveryStore(redisClient)
	journal := postgres.NewJournalRepository(pool)

	editor := cashier.NewLineItemEditor(gateway, log)
	resolver := cashier.NewOutstandingResolver(gateway)
	recovery := cashier.NewRecoveryMonitor(recoveryStore, gateway, log)
	executor := cashier.NewSettlementExecutor(gateway, resolver, recovery, journal, log)
	receiptGen := infrapdf.NewMarotoReceiptGenerator()
	receipts := cashier.NewReceiptService(gateway, receiptGen, cfg.App.Name, log)
	reconciliation := cashier.NewReconciliationService(journal, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30, // la liquidación encadena varias llamadas al HIS
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Cashier: httpRouter.NewCashierHandler(
			gateway, editor, resolver, executor, recovery, receipts, reconciliation,
		),
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
