package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/pipeline"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/server"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/trigger"
)

var (
	servePort        int
	serveCORSOrigins string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engagement HTTP API with retention jobs",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port")
	serveCmd.Flags().StringVar(&serveCORSOrigins, "cors-origins", "*", "comma-separated allowed CORS origins")
	rootCmd.AddCommand(serveCmd)
}

// parseOrigins splits a comma-separated origin list, dropping blanks.
func parseOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.WarnIfDefaultKeys()

	components, cl, err := buildComponents(ctx, cfg)
	defer cl.close()
	if err != nil {
		return err
	}
	rt, err := pipeline.Assemble(ctx, components)
	if err != nil {
		return fmt.Errorf("assembling pipeline: %w", err)
	}
	defer rt.Close()

	scheduler := trigger.NewScheduler()
	jobs := []trigger.Job{trigger.PruneJob(rt.Tracker, time.Now)}
	if cfg.RetentionDays > 0 {
		jobs = append(jobs, trigger.RetentionJob(rt.Events, cfg.RetentionDays, time.Now))
	}
	if err := scheduler.Register(jobs...); err != nil {
		return fmt.Errorf("registering jobs: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.AdminKey == "" {
		log.Warn().Msg("ENGAGE_ADMIN_KEY not set; kill switch routes are disabled")
	}
	srv := server.NewServer(rt,
		server.WithCORSOrigins(parseOrigins(serveCORSOrigins)),
		server.WithAdminKey(cfg.AdminKey),
		server.WithVersion(resolvedVersion()),
	)

	addr := fmt.Sprintf(":%d", servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Int("tenants", len(components.Tenants)).
		Int("cron_entries", scheduler.Entries()).
		Bool("llm", components.Provider != nil).
		Bool("redis_cache", components.Cache != nil).
		Bool("retrieval", components.Retriever != nil).
		Str("breaker", cfg.Breaker).
		Msg("engage_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
