package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stagehq/stagehand"
	"github.com/stagehq/stagehand/internal/metrics"
	"github.com/stagehq/stagehand/pkg/adapters/memory"
	redislock "github.com/stagehq/stagehand/pkg/adapters/redis"
	"github.com/stagehq/stagehand/pkg/gateway"
	"github.com/stagehq/stagehand/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the instruments of a rig over the network gateway",
	Long: `Starts the gateway: loads the rig document, connects every declared
instrument, and exposes them over HTTP with single-writer lease discipline so
multiple client processes can share the same hardware.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rigPath, _ := cmd.Flags().GetString("rig")
		addr, _ := cmd.Flags().GetString("addr")
		redisAddr, _ := cmd.Flags().GetString("redis")
		healthEvery, _ := cmd.Flags().GetDuration("health-interval")

		logger := newLogger(cmd)
		promReg := prometheus.NewRegistry()
		m := metrics.New(promReg)

		stage := stagehand.New(
			stagehand.WithLogger(logger),
			stagehand.WithMetrics(m),
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := stage.LoadRig(ctx, rigPath); err != nil {
			return fmt.Errorf("load rig: %w", err)
		}
		defer func() {
			if err := stage.Close(context.Background()); err != nil {
				logger.Warn("rig teardown incomplete", "err", err)
			}
		}()

		var locker ports.Locker
		if redisAddr != "" {
			client := backend.NewClient(&backend.Options{Addr: redisAddr})
			defer client.Close()
			locker = redislock.NewLocker(client, "stagehand:")
			logger.Info("using redis lease locker", "addr", redisAddr)
		} else {
			locker = memory.NewLocker(memory.WithOnExpire(func(name string) {
				m.LeaseExpiries.Inc()
				logger.Warn("lease expired", "instrument", name)
			}))
		}

		server := gateway.NewServer(stage.Registry(), locker,
			gateway.WithLogger(logger),
			gateway.WithMetrics(m, promReg),
		)

		srv := &http.Server{
			Addr:    addr,
			Handler: server.Handler(),
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			logger.Info("gateway listening", "addr", addr, "rig", rigPath)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})

		g.Go(func() error {
			stage.Registry().Watch(gctx, healthEvery)
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("graceful shutdown incomplete", "err", err)
				return srv.Close()
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("gateway stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("rig", "rig.yaml", "Path to the rig document")
	serveCmd.Flags().StringP("addr", "a", ":9090", "Address to listen on")
	serveCmd.Flags().String("redis", "", "Redis address for distributed leases (empty = in-process)")
	serveCmd.Flags().Duration("health-interval", 30*time.Second, "Background health check interval")
	_ = serveCmd.MarkFlagRequired("rig")
}
