package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keenon/AddBiomechanics-sub000/internal/auth"
	"github.com/keenon/AddBiomechanics-sub000/internal/events"
	"github.com/keenon/AddBiomechanics-sub000/internal/livedir"
	"github.com/keenon/AddBiomechanics-sub000/internal/logging"
	"github.com/keenon/AddBiomechanics-sub000/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func (a *app) watchCommand() *cobra.Command {
	var (
		recursive   bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Print the listing of a path every time it changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.openDirectory(ctx, true)
			if err != nil {
				return err
			}
			defer d.Close()

			if metricsAddr == "" {
				metricsAddr = a.cfg.MetricsAddr
			}
			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
				go serve(srv, "metrics")
				defer shutdown(srv)
			}

			path := pathArg(args)
			out := cmd.OutOrStdout()
			remove := d.AddPathChangeListener(path, func(e livedir.PathEntry) {
				if e.Loading {
					return
				}
				fmt.Fprintf(out, "--- %s (version %d) ---\n", e.Path, e.Version)
				printEntry(out, e)
			})
			defer remove()

			if _, err := d.Load(ctx, path, recursive); err != nil {
				return err
			}
			logging.Info("Watching for changes", zap.String("path", path), zap.Bool("recursive", recursive))

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "watch the whole subtree")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve /metrics on this address (default from config)")
	return cmd
}

func (a *app) relayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Serve the change event relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var authenticator *auth.Auth
			if a.cfg.Relay.JWTSecret != "" {
				var err error
				if authenticator, err = auth.New(a.cfg.Relay.JWTSecret); err != nil {
					return err
				}
			} else {
				logging.Warn("relay.jwt_secret is empty, serving without authentication")
			}

			relay := events.NewRelay(events.NewBroadcaster(), authenticator)
			srv := &http.Server{
				Addr:              a.cfg.Relay.ListenAddr,
				Handler:           relay.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go serve(srv, "relay")

			<-cmd.Context().Done()
			logging.Info("shutting down...")
			shutdown(srv)
			return nil
		},
	}
}

func (a *app) tokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a relay token for the configured deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			authenticator, err := auth.New(a.cfg.Relay.JWTSecret)
			if err != nil {
				return err
			}
			token, err := authenticator.Issue(subject, a.cfg.Deployment, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "livedir", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func serve(srv *http.Server, name string) {
	logging.Info(name+" server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error(name+" server error", zap.Error(err))
	}
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		srv.Close()
	}
}
