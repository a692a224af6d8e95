package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appOrder "github.com/Zhima-Mochi/storefront/internal/application/order"
	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
	"github.com/Zhima-Mochi/storefront/internal/config"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/id"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/paynow"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/paypal"
	httppresentation "github.com/Zhima-Mochi/storefront/internal/presentation/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const readHeaderTimeout = 5 * time.Second

func serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	rt, err := bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.system.Error("shutdown_error", zap.Error(err))
		}
	}()

	paynowClient := paynow.New(paynow.Config{
		IntegrationID:  cfg.PaynowIntegrationID,
		IntegrationKey: cfg.PaynowIntegrationKey,
		InitiateURL:    cfg.PaynowInitiateURL,
		ReturnURL:      cfg.PaynowReturnURL,
		ResultURL:      cfg.PaynowResultURL,
	}, &http.Client{Timeout: cfg.PaynowTimeout})
	paypalClient := paypal.New(paypal.Config{
		BaseURL:  cfg.PayPalAPIBase,
		ClientID: cfg.PayPalClientID,
		Secret:   cfg.PayPalClientSecret,
		Currency: cfg.PayPalCurrency,
	}, &http.Client{Timeout: cfg.PayPalTimeout}, rt.redis)

	orders := appOrder.NewService(rt.store, id.NewOrderNumbers(), nil, rt.tel)
	payments := appPayment.NewService(appPayment.Dependencies{
		UnitOfWork: rt.store,
		Paynow:     paynowClient,
		PayPal:     paypalClient,
		IDs:        id.NewUUIDGenerator(),
		References: id.NewPaymentReferences(),
		Telemetry:  rt.tel,
	}, appPayment.Config{
		PaynowTimeout: cfg.PaynowTimeout,
		PayPalTimeout: cfg.PayPalTimeout,
	})

	relayDone := make(chan struct{})
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	if cfg.RelayInServe && cfg.OutboxBroker != config.BrokerNone {
		sinks, err := rt.sinks(ctx)
		if err != nil {
			return err
		}
		relay := rt.relay(sinks)
		go func() {
			defer close(relayDone)
			if err := relay.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
				rt.system.Error("outbox_relay_stopped", zap.Error(err))
			}
		}()
	} else {
		close(relayDone)
	}

	handler := httppresentation.NewHandler(httppresentation.Dependencies{
		Orders:    orders,
		Payments:  payments,
		ParseForm: paynow.ParseFields,
		Health:    rt.health,
		Telemetry: rt.tel,
	})
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metricsHandler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		rt.system.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Store),
			zap.String("outbox_broker", cfg.OutboxBroker),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			rt.system.Error("http_server_error", zap.Error(err))
			stopRelay()
			<-relayDone
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		rt.system.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		rt.system.Info("http_server_stopped")
	}
	stopRelay()
	<-relayDone
	return nil
}
