package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/volume.report/internal/api"
	"github.com/banshee-data/volume.report/internal/db"
	"github.com/banshee-data/volume.report/internal/volume"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", ":8080", "Listen address")
	dataDir := fs.String("data", "", "Directory path-based requests are resolved in (empty disables them)")
	dbPath := fs.String("db", "volume.db", "Run history database (empty disables run storage)")
	configPath := fs.String("config", "", "Volume configuration (JSON)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return fmt.Errorf("listen address is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	opts, err := volume.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
	}

	mux := api.NewServer(database, volume.NewCalculator(opts), *dataDir).ServeMux()
	if database != nil {
		if err := database.AttachAdminRoutes(mux); err != nil {
			return fmt.Errorf("attach admin routes: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              *listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete")
	return nil
}

func runListRuns(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dbPath := fs.String("db", "volume.db", "Run history database")
	limit := fs.Int("limit", db.DefaultListLimit, "Maximum number of runs to list")
	jsonOut := fs.Bool("json", false, "Print runs as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	runs, err := database.ListRuns(*limit)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %s  cut=%.6g fill=%.6g net=%.6g  %s\n",
			r.RunID, r.CreatedAt.Format(time.RFC3339), r.Result.Cut, r.Result.Fill, r.Result.Net, r.Label)
	}
	return nil
}
