// Command chargepoint runs an OCPP 1.6 charge point: it connects to a central system, sends
// BootNotification and Authorize, keeps the heartbeat going and accepts ReserveNow requests.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ocpp-rpc/client"
	"ocpp-rpc/config"
	"ocpp-rpc/loadbalance"
	"ocpp-rpc/message"
	"ocpp-rpc/observability"
	v16 "ocpp-rpc/ocpp/v16"
	"ocpp-rpc/router"
	"ocpp-rpc/session"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configPath    string
	chargePointID string
	idTag         string
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "chargepoint",
		Short:        "Run an OCPP 1.6 charge point against a central system",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.chargePointID != "" {
				cfg.ChargePointID = opts.chargePointID
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, opts.idTag)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "chargepoint.toml", "path to the TOML configuration")
	flags.StringVar(&opts.chargePointID, "id", "", "charge point id, overrides charge_point_id")
	flags.StringVar(&opts.idTag, "id-tag", "123456", "id tag to authorize after boot")
	return cmd
}

func run(ctx context.Context, cfg config.Config, idTag string) error {
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.With(zap.String("chargePointId", cfg.ChargePointID))

	promReg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(promReg)
	if err != nil {
		return err
	}
	observer := observability.Multi(observability.NewLogObserver(logger), metrics)

	reg, err := cfg.Registry(logger)
	if err != nil {
		return err
	}
	defer reg.Close()
	balancer, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		return err
	}

	routes, err := router.Methods(&chargePoint{logger: logger})
	if err != nil {
		return err
	}
	routerOpts := append(cfg.RouterOptions(logger),
		router.WithObserver(observer),
		router.WithAfter(v16.ActionReserveNow, func(_ context.Context, call *message.Call, result json.RawMessage) error {
			logger.Info("reservation answered", zap.String("id", call.ID), zap.ByteString("result", result))
			return nil
		}),
	)
	r := router.New(routes, routerOpts...)

	c := client.NewClient(reg, balancer, client.Options{
		ChargePointID: cfg.ChargePointID,
		Service:       cfg.Service,
		Dial:          cfg.DialOptions(logger),
		Session:       []session.Option{session.WithConfig(cfg.SessionConfig()), session.WithObserver(observer)},
		Logger:        logger,
	})
	sess, ep, err := c.Connect(ctx, r)
	if err != nil {
		return err
	}
	logger.Info("session opening", zap.String("endpoint", ep.URL))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.Run(gctx)
	})
	g.Go(func() error {
		// BootNotification and Authorize go out together; with single_outstanding_call the session
		// sends them one after the other.
		var interval time.Duration
		calls, cctx := errgroup.WithContext(gctx)
		calls.Go(func() error {
			d, err := bootNotification(cctx, sess, defaultModel, logger)
			interval = d
			return err
		})
		calls.Go(func() error {
			return authorize(cctx, sess, idTag, logger)
		})
		if err := calls.Wait(); err != nil {
			sess.Close()
			return fmt.Errorf("startup calls: %w", err)
		}
		return heartbeat(gctx, sess, interval, logger)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, promReg)
		})
	}
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
