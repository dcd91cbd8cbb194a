package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	config "taskboard.com/taskboard/internal/configs"
	"taskboard.com/taskboard/internal/events"
	httpapi "taskboard.com/taskboard/internal/http"
	repository "taskboard.com/taskboard/internal/repositories"
	"taskboard.com/taskboard/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task service",
	Long:  "Starts the task HTTP API, the Socket.IO push hub and the event worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateServer(); err != nil {
			return err
		}
		workers, _ := cmd.Flags().GetInt("workers")
		queueSize, _ := cmd.Flags().GetInt("queue-size")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		database, err := config.NewDatabase(cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		taskRepo := repository.NewTaskRepository(database)
		userRepo := repository.NewUserRepository(database)
		if seeded, err := userRepo.Seed(ctx, repository.DefaultUsers()); err != nil {
			return err
		} else if seeded > 0 {
			log.Printf("seeded %d users", seeded)
		}

		hub := httpapi.NewSocketHub()
		publishers := []events.Publisher{hub}
		if cfg.RedisAddr != "" {
			redisClient, err := config.NewRedisClient(cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer redisClient.Close()
			publishers = append(publishers, events.NewRedisPublisher(redisClient, ""))
			log.Printf("publishing task events to redis at %s", cfg.RedisAddr)
		}

		pool := services.NewPoolService(workers, queueSize, publishers...)
		backend := services.NewBackend(taskRepo, userRepo, pool)

		e := echo.New()
		e.HideBanner = true
		httpapi.Register(e, httpapi.NewHandler(backend), hub, cfg.RateLimit)

		go func() {
			log.Printf("HTTP server listening on %s", cfg.AppURL())
			if err := e.Start(cfg.AppURL()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("server stopped: %v", err)
				stop()
			}
		}()

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		hub.Close()
		_ = e.Shutdown(shutdownCtx)
		pool.Shutdown(shutdownCtx)

		log.Println("HTTP server and worker pool shut down gracefully")
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("workers", 4, "event publishing workers")
	serveCmd.Flags().Int("queue-size", 256, "buffered events before new ones are dropped")
	rootCmd.AddCommand(serveCmd)
}
