package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/evostrat/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr          string
	serveDataDir       string
	checkpointInterval int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the optimization job server",
	Long: `Starts an HTTP server that runs optimization jobs in the background,
streams progress over SSE and periodically checkpoints running jobs.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Directory for checkpoints and traces (empty disables persistence)")
	serveCmd.Flags().IntVar(&checkpointInterval, "checkpoint-interval", 30, "Default checkpoint interval in seconds for jobs that do not set one (0 = disabled)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s := server.NewServer(serveAddr, serveDataDir)
	s.SetDefaultCheckpointInterval(checkpointInterval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigCh:
		fmt.Printf("Received %s, shutting down\n", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
