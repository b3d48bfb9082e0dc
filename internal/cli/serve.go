package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gamification-service/internal/api"
	"gamification-service/internal/broker"
	"gamification-service/internal/config"
	"gamification-service/internal/consumer"
	"gamification-service/internal/events"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the event consumer, the leaderboard synchronizer and the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The broker connection is only dialed once the HTTP surface is up, but
	// the publisher built on it is wired into the services now.
	var conn *broker.Connection
	a, err := newAppWith(ctx, func(cfg *config.Config, log *logrus.Logger) events.Publisher {
		if !cfg.Rabbit.Enabled {
			return events.NopPublisher{}
		}
		conn = broker.New(cfg.Rabbit, log)
		return events.NewAMQPPublisher(conn)
	})
	if err != nil {
		return err
	}
	defer a.close()
	log := a.log

	var wg sync.WaitGroup

	// Start leaderboard synchronizer
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.synchronizer.Run(ctx, a.cfg.Sync.Interval)
	}()

	// Start HTTP server
	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           api.NewServer(a.leaderboard, a.rankings, a.profiles, a.badges, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server stopped unexpectedly")
			stop()
		}
	}()

	// Start consuming messages
	if conn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = runConsumer(ctx, a.cfg.Rabbit, conn, a.processor(), log)
		}()
	} else {
		log.Warn("RabbitMQ disabled, consumer not started")
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown failed")
	}

	wg.Wait()
	if conn != nil {
		conn.Close()
	}

	log.Info("graceful shutdown complete")
	return nil
}

// runConsumer connects to the broker and consumes until ctx is done. When
// the broker stays unreachable the consumer is disabled for the life of the
// process, the HTTP API keeps serving and the cause is returned.
func runConsumer(ctx context.Context, cfg config.RabbitConfig, conn consumer.Broker, handler consumer.Handler, log *logrus.Logger) error {
	if err := conn.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		log.WithError(err).WithField("fatal", true).Error("RabbitMQ unreachable, consumer disabled")
		return err
	}

	c := consumer.New(cfg, conn, handler, log)
	if err := c.Start(ctx); err != nil {
		log.WithError(err).WithField("fatal", true).Error("consumer stopped, restart required")
		return err
	}
	return nil
}
