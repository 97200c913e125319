package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"marketfeed/internal/app"
	"marketfeed/internal/config"
	"marketfeed/internal/logging"
)

func main() {
	_ = godotenv.Load()

	var (
		op         string
		currency   string
		limit      int
		assetA     string
		assetB     string
		timeout    int
		configPath string
	)
	flag.StringVar(&op, "op", getenv("OP", "snapshot"), "snapshot | listing | price | news | status")
	flag.StringVar(&currency, "currency", getenv("CURRENCY", "usd"), "quote currency for snapshot and listing")
	flag.IntVar(&limit, "limit", getenvInt("LIMIT", 10), "listing size")
	flag.StringVar(&assetA, "a", "bitcoin", "first asset for -op price (id or symbol)")
	flag.StringVar(&assetB, "b", "ethereum", "second asset for -op price (id or symbol)")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 30), "overall timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json or config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logging.New(cfg.Log)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Fatalf("wiring: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	out, err := run(ctx, a, op, currency, limit, assetA, assetB)
	if err != nil {
		log.WithField("op", op).Fatalf("%v", err)
	}
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func run(ctx context.Context, a *app.App, op, currency string, limit int, assetA, assetB string) (any, error) {
	switch op {
	case "snapshot":
		return a.Gateway.FetchMarketSnapshot(ctx, currency)
	case "listing":
		return a.Gateway.FetchAssetListing(ctx, currency, limit)
	case "price":
		return a.Gateway.FetchPricePair(ctx, assetA, assetB)
	case "news":
		return a.Aggregator.Fetch(ctx), nil
	case "status":
		return a.Gateway.Status(), nil
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x != 0 {
			return x
		}
	}
	return def
}
