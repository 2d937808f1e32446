package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the face-id HTTP API.

Endpoints live under /api/v1: enroll, identify, verify, gallery stats,
entries and identity removal, and (with DATABASE_URL) the attempt log.
The gallery is saved on shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeOptions resolves the listener from flags and environment variables.
func resolveServeOptions(cmd *cobra.Command) web.Options {
	opts := web.Options{
		Port:           mustGetInt(cmd, "port"),
		Host:           mustGetString(cmd, "host"),
		AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
	}
	if envPort := os.Getenv("WEB_PORT"); envPort != "" && !cmd.Flags().Changed("port") {
		fmt.Sscanf(envPort, "%d", &opts.Port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" && !cmd.Flags().Changed("host") {
		opts.Host = envHost
	}
	return opts
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.pool != nil {
		fmt.Printf("Using PostgreSQL attempt log and signature archive\n")
	} else {
		fmt.Printf("DATABASE_URL not set: attempts are not recorded\n")
	}
	stats := a.index.Statistics()
	fmt.Printf("Gallery ready with %d entries (%d identities, %s, %s)\n", stats.TotalEntries, stats.Identities, stats.Metric, stats.Backend)

	opts := resolveServeOptions(cmd)
	server := web.NewServer(a.pipeline, a.attemptLog(), opts, a.logger.Named("web"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting face-id API on http://%s:%d\n", opts.Host, opts.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	<-shutdownDone

	// In-flight requests are drained, so the gallery is quiescent.
	if err := a.pipeline.Save(); err != nil {
		a.logger.Error("failed to save gallery", zap.Error(err))
		return fmt.Errorf("saving gallery: %w", err)
	}
	fmt.Printf("Gallery saved to %s\n", a.cfg.Gallery.VectorPath)
	return nil
}
