package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zhima-Mochi/storefront/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func relayCommand() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "publish pending outbox messages to the configured broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Store != config.StoreMySQL {
				return fmt.Errorf("relay: STORE=%s keeps the outbox in process memory; use %s", cfg.Store, config.StoreMySQL)
			}
			if cfg.OutboxBroker == config.BrokerNone {
				return errors.New("relay: OUTBOX_BROKER=none leaves nothing to publish to")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRelay(ctx, cfg, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "relay a single batch and exit")
	return cmd
}

func runRelay(ctx context.Context, cfg config.Config, once bool) error {
	rt, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.system.Error("shutdown_error", zap.Error(err))
		}
	}()

	sinks, err := rt.sinks(ctx)
	if err != nil {
		return err
	}
	relay := rt.relay(sinks)
	if once {
		n, err := relay.Once(ctx)
		rt.system.Info("outbox_relay_once", zap.Int("relayed", n))
		return err
	}
	return relay.Run(ctx)
}
