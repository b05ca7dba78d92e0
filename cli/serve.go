package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	facter "github.com/siherrmann/facter"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr        string
	serveResumeLimit int
)

// serveCmd runs the HTTP ingestion surface with the worker pool.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the facter service",
	Long: `Start the facter HTTP service and worker pool.

Jobs left in processing status by an earlier run are resumed from their
last checkpointed phase before new submissions are accepted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			config.Server.Addr = serveAddr
		}

		dbConfig, err := helper.NewDatabaseConfiguration()
		if err != nil {
			return fmt.Errorf("error reading database configuration: %w", err)
		}

		f, err := facter.NewFacter(config, dbConfig)
		if err != nil {
			return fmt.Errorf("error initializing facter: %w", err)
		}
		defer f.Close()

		f.StartWorkers()

		resumeLimit := serveResumeLimit
		if resumeLimit <= 0 {
			resumeLimit = config.Workers * 2
		}
		resumed, err := f.ResumeProcessing(resumeLimit)
		if err != nil {
			return fmt.Errorf("error resuming interrupted jobs: %w", err)
		}
		if resumed > 0 {
			fmt.Fprintf(os.Stderr, "Resumed %d interrupted job(s)\n", resumed)
		}

		httpServer, err := server.NewServer(&config.Server, f, nil)
		if err != nil {
			return fmt.Errorf("error creating HTTP server: %w", err)
		}

		errs := make(chan error, 1)
		go func() {
			errs <- httpServer.Start()
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errs:
			return err
		case <-stop:
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return httpServer.Stop(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().IntVar(&serveResumeLimit, "resume-limit", 0, "max interrupted jobs to resume (0 = workers*2)")

	rootCmd.AddCommand(serveCmd)
}
