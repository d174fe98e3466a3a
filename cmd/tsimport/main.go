package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/poldata/tsimport/internal/config"
	"github.com/poldata/tsimport/internal/db"
	"github.com/poldata/tsimport/internal/importer"
	"github.com/poldata/tsimport/internal/logging"
	"github.com/poldata/tsimport/internal/middleware"
	"github.com/poldata/tsimport/internal/repository"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tsimport",
	Short: "Timesheet spreadsheet importer",
	Long:  `tsimport validates employee timesheet spreadsheets, loads them into PostgreSQL, and archives the processed files.`,
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Import a single timesheet file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		summary, err := app.service.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d rows: %d valid, %d invalid, %d skipped\n",
			summary.TotalRows, summary.ValidRows, summary.InvalidRows, summary.SkippedRows)
		if summary.ArchivedTo != "" {
			fmt.Printf("Archived to %s\n", summary.ArchivedTo)
		}
		if !summary.AllValid {
			return fmt.Errorf("%d rows failed validation", summary.InvalidRows)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP import trigger",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		corsHandler := cors.New(cors.Options{
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		})
		logMW := middleware.Logging(app.logger)

		mux := http.NewServeMux()
		mux.Handle("/import", corsHandler.Handler(logMW(importer.NewHTTPHandler(app.service))))
		mux.Handle("/logs", corsHandler.Handler(logMW(importer.NewLogsHandler(app.logs))))

		server := &http.Server{
			Addr:         app.cfg.ListenAddr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute, // imports are synchronous
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			app.logger.Infof("Listening on %s", app.cfg.ListenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				app.logger.Fatalf("Failed to start server: %v", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		app.logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

type application struct {
	cfg     config.Config
	logger  *logrus.Logger
	service *importer.Service
	logs    repository.ImportLogRepository
}

func setup(ctx context.Context) (*application, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFolder)
	if err != nil {
		return nil, nil, err
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		_ = closeLog()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(cfg.Database); err != nil {
		conn.Close()
		_ = closeLog()
		return nil, nil, err
	}

	refs := repository.NewReferenceRepository(conn.Pool)
	timesheets := repository.NewTimesheetRepository(conn.Pool)
	logs := repository.NewImportLogRepository(conn.Pool)

	service, err := importer.NewService(cfg.Import, refs, timesheets, logs, logger)
	if err != nil {
		conn.Close()
		_ = closeLog()
		return nil, nil, err
	}

	cleanup := func() {
		conn.Close()
		_ = closeLog()
	}
	return &application{cfg: cfg, logger: logger, service: service, logs: logs}, cleanup, nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	rootCmd.AddCommand(runCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
