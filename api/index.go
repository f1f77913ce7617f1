package handler

import (
	"fmt"
	"net/http"

	"github.com/arnavshah/turni-api-go/pkg/auth"
	"github.com/arnavshah/turni-api-go/pkg/config"
	"github.com/arnavshah/turni-api-go/pkg/database"
	"github.com/arnavshah/turni-api-go/pkg/handlers"
	"github.com/arnavshah/turni-api-go/pkg/logging"
	"github.com/arnavshah/turni-api-go/pkg/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var r http.Handler

func init() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)

	authn, err := auth.New(cfg)
	if err != nil {
		logger.Error("auth config invalid", zap.Error(err))
		r = unavailable{msg: "server misconfigured"}
		return
	}

	db, err := database.InitDB(cfg, logger)
	if err != nil {
		logger.Error("database init failed", zap.Error(err))
		r = unavailable{msg: "database unavailable"}
		return
	}
	if err := auth.EnsureAdminExists(db, cfg, logger); err != nil {
		logger.Error("could not ensure admin user", zap.Error(err))
	}

	engine := scheduler.NewEngine(database.NewRepository(db), logger.Named("scheduler"),
		scheduler.WithHorizon(cfg.AllocationHorizonMonths))
	r = handlers.NewRouter(handlers.NewHandler(db, engine, authn, logger.Named("http")))
}

type unavailable struct{ msg string }

func (u unavailable) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = fmt.Fprintf(w, `{"error":%q}`, u.msg)
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
