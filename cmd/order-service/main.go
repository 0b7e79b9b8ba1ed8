package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/config"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/order"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/payment"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/product"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/ratelimit"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/reservation"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/schedule"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/user"
	"github.com/GustavoBurock01/pizza-club-digital-menu-sub000/internal/webhook"
)

// @title           Digital Menu Order Service
// @version         1.0
// @description     Order admission and PIX payment reconciliation for the digital menu.
// @BasePath        /
func main() {
	cfg := config.Load()
	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create postgres pool")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("could not reach postgres")
	}

	limiter := ratelimit.New(cfg.RateWindow, cfg.RateMax, cfg.PendingWindow, cfg.PendingMax)
	ledger := reservation.NewLedger(cfg.ReservationTTL)
	go limiter.Run(ctx, time.Minute)
	go ledger.Run(ctx, cfg.SweepInterval)

	storeGate := schedule.NewGate(schedule.NewPGRepo(pool), cfg.ScheduleGateEnabled, cfg.ScheduleFailOpen)
	products := product.NewPGRepo(pool)
	validator := product.NewValidator(products, ledger, cfg.ReservationCeiling)
	gateway := payment.NewPixClient(cfg.GatewayBaseURL, cfg.GatewayToken, cfg.PixKey)
	orders := order.NewPGRepo(pool)
	intents := payment.NewPGRepo(pool)

	svc := order.NewService(limiter, storeGate, validator, ledger, gateway, orders, intents,
		cfg.PublicBaseURL+"/webhooks/payment")
	wh := webhook.NewHandler(cfg.WebhookSecret, cfg.GatewayCIDRs, cfg.Env != "production",
		gateway, orders, intents)

	router := newRouter(svc, user.NewPGRepo(pool), wh)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("order-service listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("order-service stopped")
}
