// One-shot tool: refresh once against the configured gateway, print the risk
// dashboard, and exit non-zero when the overall level is critical or worse.
//
// Usage:
//
//	BALLAST_CONFIG=config/ballast.yaml go run cmd/ballast-check/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"ballast/internal/config"
	"ballast/internal/dashboard"
	"ballast/internal/domain"
	"ballast/internal/fund"
	"ballast/internal/gateway"
	"ballast/internal/risk"
	"ballast/internal/util"
)

func main() {
	cfgPath := os.Getenv("BALLAST_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger("warn", cfg.Logging.Format)
	util.SetDefault(logger)

	var gw gateway.Gateway
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		gw = gateway.NewAlpacaGateway(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL,
			cfg.Alpaca.RateLimitPerMin)
	} else {
		fmt.Fprintln(os.Stderr, "no broker credentials configured; checking against the simulator")
		gw = gateway.NewSimulatorGateway()
	}

	controller, err := risk.NewController(gw, cfg.Risk, risk.Options{
		Fund: fund.Options{
			StaleAfter:    cfg.Monitor.StaleAfter.Std(),
			RetryAttempts: cfg.Monitor.RetryCount,
		},
	}, logger)
	if err != nil {
		log.Fatalf("failed to build risk controller: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	controller.Tick(ctx)

	data := controller.DashboardData()
	fmt.Print(dashboard.Render(data))

	switch data.Overall.Level {
	case domain.OverallCritical, domain.OverallEmergency:
		os.Exit(1)
	}
}
