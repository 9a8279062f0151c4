/*
main.go - Allocation engine entry point

PURPOSE:
  Runs one day's allocation pass: run(forecast_date) per spec.md §6.
  Invoked once per day by an external scheduler (cron, a CI pipeline
  step); this is not a long-lived server.

STARTUP SEQUENCE:
  1. Load configuration (host-based environment, db path)
  2. Open the SQLite store (migrates on first run)
  3. Build the allocation window from -forecast-date
  4. Run the driver
  5. Optionally serve the read-only ops surface until interrupted

COMMAND-LINE FLAGS:
  -forecast-date  Date to allocate for, YYYY-MM-DD (default: today)
  -db             SQLite database path, overrides config/env
  -window-days    Allocation window length, overrides config/env
  -serve-ops      After the run completes, serve /ops and /metrics
                   until SIGINT/SIGTERM (for local inspection; the
                   production batch host exits immediately instead)

SEE ALSO:
  - driver/driver.go: the tier x time outer loop
  - opsapi/server.go: router configuration
  - config/config.go: environment/config resolution
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/greenrow/allocator/config"
	"github.com/greenrow/allocator/driver"
	"github.com/greenrow/allocator/opsapi"
	"github.com/greenrow/allocator/persist/sqlite"
	"github.com/greenrow/allocator/refmodel"
)

func main() {
	forecastDateFlag := flag.String("forecast-date", time.Now().UTC().Format("2006-01-02"), "forecast date, YYYY-MM-DD")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	windowDays := flag.Int("window-days", 0, "allocation window length in days (overrides config)")
	serveOps := flag.Bool("serve-ops", false, "serve the read-only ops surface after the run completes")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *windowDays > 0 {
		cfg.AllocationWindowDays = *windowDays
	}

	forecastTime, err := time.Parse("2006-01-02", *forecastDateFlag)
	if err != nil {
		log.Fatalf("invalid -forecast-date: %v", err)
	}
	forecastDate := refmodel.DateOf(forecastTime)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	allocationDates := make([]refmodel.Date, 0, cfg.AllocationWindowDays)
	for i := 0; i < cfg.AllocationWindowDays; i++ {
		allocationDates = append(allocationDates, forecastDate.AddDays(i))
	}

	logger := log.New(os.Stdout, fmt.Sprintf("[allocator:%s] ", cfg.Environment), log.LstdFlags)
	d := driver.New(store, logger)

	ctx := context.Background()
	if err := d.Run(ctx, forecastDate, allocationDates); err != nil {
		log.Fatalf("allocation run failed: %v", err)
	}
	logger.Printf("allocation run complete for %s (window=%d days)", forecastDate, cfg.AllocationWindowDays)

	if !*serveOps {
		return
	}

	handler := opsapi.NewHandler(store, store)
	router := opsapi.NewRouter(handler)
	server := &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("ops surface listening on %s", cfg.OpsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ops server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("shutting down ops surface...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("ops server forced to shutdown: %v", err)
	}
}
