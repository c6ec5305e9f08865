/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the timeclock server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire engine, resolver, ledger, event bus
  4. Start the overdue sweeper (unless disabled)
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: timeclock.db)
           Use ":memory:" for in-memory database
  -sweep   Overdue sweeper check interval (default: 1h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper
  4. Close database connection
  5. Exit

ENVIRONMENT:
  TIMECLOCK_NO_SWEEP=1 or CI=true disables the sweeper, so test runs
  never race against background closes.

SEE ALSO:
  - api/server.go: Router configuration
  - api/sweeper.go: Overdue session sweeper
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/warp/timeclock/api"
	"github.com/warp/timeclock/clock"
	"github.com/warp/timeclock/event"
	"github.com/warp/timeclock/payroll"
	"github.com/warp/timeclock/policy"
	"github.com/warp/timeclock/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "timeclock.db", "SQLite database path")
	sweepInterval := flag.Duration("sweep", time.Hour, "Overdue sweeper check interval")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire domain services
	bus := event.NewBus()
	resolver := policy.NewResolver(store)
	engine := clock.NewEngine(store, bus)
	ledger := payroll.NewLedger(store)

	// Log session lifecycle events
	events, unsubscribe := bus.Subscribe(64)
	defer unsubscribe()
	go func() {
		for ev := range events {
			log.Printf("[Event] %s worker=%s session=%s", ev.Kind, ev.Username, ev.SessionID)
		}
	}()

	// Start the overdue sweeper
	sweeper := api.NewOverdueSweeper(store, bus)
	sweeper.CheckInterval = *sweepInterval
	if os.Getenv("TIMECLOCK_NO_SWEEP") == "1" || os.Getenv("CI") == "true" {
		sweeper.Enabled = false
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Initialize handler and router
	handler := api.NewHandler(store, engine, resolver, ledger)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
