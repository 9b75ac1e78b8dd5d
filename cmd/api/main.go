package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/adapters/gateway"
	server "github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/adapters/http_server"
	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/adapters/observability"
	redisad "github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/adapters/redis"
	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/app"
	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/shared"
	mysqlrepo "github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	gw, err := gateway.New(cfg.GatewayBase, cfg.GatewayKey, cfg.GatewayRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway client init failed")
	}

	avail := app.NewAvailabilityService(repo, cache, cfg.CacheTTL)
	settler := app.NewSettlementService(repo, gw, cfg.Currency)
	wizard := app.NewWizard(avail, settler, cache, cfg.SessionTTL)
	approval := app.NewApprovalService(repo)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Availability: avail,
		Wizard:       wizard,
		Settlement:   settler,
		Approval:     approval,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
