// livedir browses and edits an S3 bucket as a live directory tree.
//
// Commands:
//   - ls, tree, cat, url: read the tree
//   - put, rm: mutate it and publish change events
//   - watch: follow a path as peers change it
//   - relay: serve the change event relay
//   - token: issue relay access tokens
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keenon/AddBiomechanics-sub000/internal/config"
	"github.com/keenon/AddBiomechanics-sub000/internal/events"
	"github.com/keenon/AddBiomechanics-sub000/internal/livedir"
	"github.com/keenon/AddBiomechanics-sub000/internal/logging"
	s3storage "github.com/keenon/AddBiomechanics-sub000/internal/storage/s3"
	"github.com/keenon/AddBiomechanics-sub000/pkg/retry"
)

// app carries state shared by every command.
type app struct {
	configPath string
	root       string
	deployment string
	logLevel   string

	cfg *config.Config
}

func main() {
	a := &app{}
	root := a.rootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "livedir",
		Short:         "Browse an object store as a live directory tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logging.Sync()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default: livedir.yaml in . or the user config dir)")
	flags.StringVar(&a.root, "root", "", "root prefix, overrides config")
	flags.StringVar(&a.deployment, "deployment", "", "deployment for event topics, overrides config")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		a.lsCommand(),
		a.treeCommand(),
		a.catCommand(),
		a.putCommand(),
		a.rmCommand(),
		a.urlCommand(),
		a.watchCommand(),
		a.relayCommand(),
		a.tokenCommand(),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("root") {
		cfg.Root = a.root
	}
	if cmd.Flags().Changed("deployment") {
		cfg.Deployment = a.deployment
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	return logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: "stderr",
	})
}

// openBus returns the relay client, or nil when no relay is configured.
func (a *app) openBus() events.Bus {
	if a.cfg.Relay.URL == "" {
		return nil
	}
	return events.NewClient(events.ClientConfig{
		BaseURL:   a.cfg.Relay.URL,
		AuthToken: a.cfg.Relay.Token,
	})
}

func (a *app) openDirectory(ctx context.Context, requireBus bool) (*livedir.Directory, error) {
	store, err := s3storage.New(ctx, s3storage.Config{
		Endpoint:  a.cfg.S3.Endpoint,
		Bucket:    a.cfg.S3.Bucket,
		AccessKey: a.cfg.S3.AccessKey,
		SecretKey: a.cfg.S3.SecretKey,
		Region:    a.cfg.S3.Region,
		UseSSL:    a.cfg.S3.UseSSL,
		Retry:     retry.DefaultConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}

	bus := a.openBus()
	if requireBus && bus == nil {
		return nil, errors.New("relay.url is not configured")
	}

	return livedir.New(livedir.Config{
		Root:         a.cfg.Root,
		Deployment:   a.cfg.Deployment,
		SignedURLTTL: a.cfg.SignedURLTTL,
	}, store, bus)
}
