package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"fxHistory/config"
	"fxHistory/internal/adapters/binanceclient"
	"fxHistory/internal/adapters/logger"
	"fxHistory/internal/adapters/sqlite"
	"fxHistory/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "ETHUSDT", "Binance futures symbol")
	days := flag.Int("days", 90, "Number of days to fetch, ending now")
	csvDir := flag.String("csv", "", "Also write the bars as CSV into this directory")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		TimeBase:             cfg.TimeBase,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	sym := strings.ToUpper(*symbol)
	end := time.Now()
	start := end.AddDate(0, 0, -*days)

	fmt.Printf("Fetching 1m klines for %s from %s to %s...\n", sym, start.Format(time.RFC3339), end.Format(time.RFC3339))
	bars, err := binanceClient.GetKlinesRange(context.Background(), sym, "1m", start, end)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(context.Background(), "Fetched klines", map[string]interface{}{"count": len(bars)})

	n, err := repo.SaveMinuteBars(context.Background(), sym, bars)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error storing bars")
		log.Fatalf("Error storing bars: %v", err)
	}
	appLogger.Info(context.Background(), "Stored minute bars", map[string]interface{}{"count": n, "db": cfg.DBPath})

	if *csvDir != "" {
		filename := filepath.Join(*csvDir, fmt.Sprintf("%s_1m_%s_to_%s.csv", sym, start.Format("20060102"), end.Format("20060102")))
		if err := utils.WriteBarsCSVFile(filename, bars, -1); err != nil {
			appLogger.Error(context.Background(), err, "Error writing CSV")
			log.Fatalf("Error writing CSV: %v", err)
		}
		appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
	}
}
