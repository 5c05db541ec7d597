// ballast-riskd is the risk-control daemon: it polls the broker gateway,
// maintains the fund and stop-loss monitors, and serves Prometheus metrics.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ballast/internal/config"
	"ballast/internal/domain"
	"ballast/internal/emergency"
	"ballast/internal/fund"
	"ballast/internal/gateway"
	"ballast/internal/risk"
	"ballast/internal/util"
)

func main() {
	cfgPath := "config/ballast.yaml"
	if p := os.Getenv("BALLAST_CONFIG"); p != "" {
		cfgPath = p
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) && os.Getenv("BALLAST_CONFIG") == "" {
		cfgPath = "" // fall back to defaults when the stock path is absent
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	gw := buildGateway(cfg)
	logger.Info("ballast-riskd starting",
		"gateway", gw.Name(), "paper_mode", cfg.Alpaca.PaperMode,
		"poll_interval", cfg.Monitor.PollInterval.Std())

	controller, err := risk.NewController(gw, cfg.Risk, risk.Options{
		PollInterval: cfg.Monitor.PollInterval.Std(),
		Fund: fund.Options{
			HistorySize:   cfg.Monitor.HistorySize,
			StaleAfter:    cfg.Monitor.StaleAfter.Std(),
			RetryAttempts: cfg.Monitor.RetryCount,
		},
	}, logger)
	if err != nil {
		log.Fatalf("failed to build risk controller: %v", err)
	}

	controller.OnRiskLevelChanged = func(old, new domain.OverallRiskLevel) {
		logger.Warn("risk level transition", "from", string(old), "to", string(new))
	}
	controller.OnEmergencyTriggered = func(e emergency.Event) {
		logger.Error("emergency triggered", "level", string(e.Level), "reason", e.Reason)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := controller.Start(ctx); err != nil {
		log.Fatalf("failed to start risk control: %v", err)
	}

	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler()}
	go func() {
		logger.Info("metrics listener up", "addr", cfg.Metrics.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	controller.Stop()
	metricsSrv.Close()
}

// buildGateway selects the broker gateway: Alpaca when credentials are
// configured, the in-memory simulator otherwise.
func buildGateway(cfg *config.Config) gateway.Gateway {
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		return gateway.NewAlpacaGateway(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL,
			cfg.Alpaca.RateLimitPerMin)
	}
	return gateway.NewSimulatorGateway()
}
