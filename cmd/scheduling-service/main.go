package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/phuczkz/healthcare-center/internal/scheduling"
	"github.com/phuczkz/healthcare-center/pkg/config"
	"github.com/phuczkz/healthcare-center/pkg/database"
	"github.com/phuczkz/healthcare-center/pkg/interfaces"
	"github.com/phuczkz/healthcare-center/pkg/logger"
	"github.com/phuczkz/healthcare-center/pkg/monitoring"
	"github.com/phuczkz/healthcare-center/pkg/types"
)

const serviceName = "scheduling-service"

func main() {
	rootCmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Clinic scheduling API: availability, booking and doctor schedules",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(validateScheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads an optional .env file before the regular configuration sources
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return config.Load()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduling HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func runServer(cfg *config.Config) error {
	log := logger.New(cfg.LogLevel)
	ctx := context.Background()

	metrics := monitoring.NewMetricsCollector(serviceName)
	tracing := monitoring.NewNoopTracingManager()
	if cfg.Monitoring.TracingEnabled {
		tm, err := monitoring.NewTracingManager(ctx, &monitoring.TracingConfig{
			ServiceName:    serviceName,
			ServiceVersion: scheduling.Version,
			OTLPEndpoint:   cfg.Monitoring.OTLPEndpoint,
			Environment:    cfg.Monitoring.Environment,
			SamplingRate:   cfg.Monitoring.SamplingRate,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		tracing = tm
	}

	observer := monitoring.NewMonitoringMiddleware(metrics, tracing, log)
	health := monitoring.NewHealth(serviceName, scheduling.Version)

	repo, closeStore, err := openStore(cfg, log, observer, health)
	if err != nil {
		return err
	}
	defer closeStore()

	service, err := scheduling.New(cfg, log, scheduling.Dependencies{
		Repository: repo,
		Metrics:    metrics,
		Tracing:    tracing,
		Health:     health,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scheduling service: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- service.Start(cfg.Server.Addr())
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("Scheduling Service failed")
			return err
		}
		return nil
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down Scheduling Service...")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := service.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Error during shutdown")
		return err
	}
	log.Info("Scheduling Service stopped")
	return nil
}

// openStore builds the repository selected by store.driver and registers its health checks
func openStore(cfg *config.Config, log *logger.Logger, observer *monitoring.MonitoringMiddleware, health *monitoring.Health) (interfaces.SchedulingRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverSupabase:
		repo, err := scheduling.NewSupabaseRepository(cfg.Supabase, log, scheduling.WithQueryObserver(observer.ObserveDB))
		if err != nil {
			return nil, nil, err
		}
		health.Register("supabase", monitoring.StoreCheck(repo.Ping))
		if sr, ok := repo.(*scheduling.SupabaseRepository); ok {
			health.Register("circuit_breaker", monitoring.BreakerCheck(sr.BreakerState))
		}
		return repo, func() {}, nil

	default:
		db, err := database.NewConnection(&cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		health.Register("database", monitoring.PoolCheck(db.DB))
		repo := scheduling.NewRepository(db, log, scheduling.WithQueryObserver(observer.ObserveDB))
		return repo, func() { db.Close() }, nil
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the scheduling schema in PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel)

			db, err := database.NewConnection(&cfg.Database, log)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			if err := db.CreateSchema(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}

func validateScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-schedule",
		Short: "Check a weekly schedule JSON file without storing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read schedule: %w", err)
			}

			var schedule types.WeeklySchedule
			if err := json.Unmarshal(data, &schedule); err != nil {
				return fmt.Errorf("failed to parse schedule: %w", err)
			}

			if err := scheduling.ValidateSchedule(schedule); err != nil {
				var se *types.SchedulingError
				if errors.As(err, &se) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", se.Code, se.Message)
				}
				return err
			}

			entries := scheduling.ToTemplateEntries("", schedule)
			fmt.Fprintf(cmd.OutOrStdout(), "Schedule is valid: %d range(s)\n", len(entries))
			return nil
		},
	}
	cmd.Flags().String("file", "schedule.json", "Path to a weekly schedule keyed by weekday label")
	return cmd
}
