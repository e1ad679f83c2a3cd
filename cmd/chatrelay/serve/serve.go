// Package servecmder provides the serve command for running the relay server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lanternworks/chatrelay/pkg/config"
	"github.com/lanternworks/chatrelay/pkg/logger"
	"github.com/lanternworks/chatrelay/pkg/storage"
	"github.com/lanternworks/chatrelay/pkg/storage/inmemory"
	"github.com/lanternworks/chatrelay/pkg/storage/postgres"
	"github.com/lanternworks/chatrelay/pkg/storage/sqlite"
	"github.com/lanternworks/chatrelay/relay"
)

type serveCommander struct {
	listen      string
	upstream    string
	model       string
	staticDir   string
	sqlitePath  string
	postgresURL string
	debug       bool

	logger *zap.Logger
}

const serveLongDesc string = `Run the relay server.

The relay accepts chat messages over HTTP, forwards the full conversation to
the configured upstream completion API, streams the reply back to the caller
byte-for-byte as it arrives, and persists both the user message and the
reassembled assistant reply.

The upstream API key is read from the CHATRELAY_API_KEY or OPENAI_API_KEY
environment variable (a .env file in the working directory is honored).
Callers may also supply their own Authorization header per request.

Storage backends, by precedence: PostgreSQL (--postgres), SQLite (--sqlite),
in-memory (default, lost on restart).`

const serveShortDesc string = "Run the chatrelay server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			// Precedence: flags > CHATRELAY_* env vars > config.toml > defaults.
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("listen") {
				cmder.listen = v.GetString("relay.listen")
			}
			if !cmd.Flags().Changed("upstream") {
				cmder.upstream = v.GetString("relay.upstream")
			}
			if !cmd.Flags().Changed("model") {
				cmder.model = v.GetString("relay.model")
			}
			if !cmd.Flags().Changed("static") {
				cmder.staticDir = v.GetString("relay.static_dir")
			}
			if !cmd.Flags().Changed("sqlite") {
				cmder.sqlitePath = v.GetString("storage.sqlite_path")
			}
			if !cmd.Flags().Changed("postgres") {
				cmder.postgresURL = v.GetString("storage.postgres_url")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", defaults.Relay.Listen, "Address for the relay to listen on")
	cmd.Flags().StringVarP(&cmder.upstream, "upstream", "u", defaults.Relay.Upstream, "Upstream completion API base URL")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", defaults.Relay.Model, "Model name sent to the upstream API")
	cmd.Flags().StringVar(&cmder.staticDir, "static", "", "Directory of static frontend assets to serve at / (optional)")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite database (default: in-memory)")
	cmd.Flags().StringVar(&cmder.postgresURL, "postgres", "", "PostgreSQL connection URL (takes precedence over --sqlite)")

	return cmd
}

func (c *serveCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	// Pull CHATRELAY_API_KEY / OPENAI_API_KEY from a local .env when present.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		c.logger.Debug("no .env file loaded", zap.Error(err))
	}

	apiKey := os.Getenv("CHATRELAY_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		c.logger.Warn("no upstream API key configured; requests must carry their own Authorization header")
	}

	store, err := c.newStore()
	if err != nil {
		return err
	}
	defer store.Close()

	relayConfig := relay.Config{
		ListenAddr:  c.listen,
		UpstreamURL: c.upstream,
		Model:       c.model,
		APIKey:      apiKey,
		StaticDir:   c.staticDir,
	}

	r := relay.New(relayConfig, store, c.logger)
	defer r.Close()

	c.logger.Info("starting relay server",
		zap.String("listen", c.listen),
		zap.String("upstream", c.upstream),
		zap.String("model", c.model),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := r.Run(); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}

func (c *serveCommander) newStore() (storage.Store, error) {
	if c.postgresURL != "" {
		store, err := postgres.NewStore(context.Background(), c.postgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL store: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return store, nil
	}

	if c.sqlitePath != "" {
		store, err := sqlite.NewStore(c.sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		c.logger.Info("using SQLite storage", zap.String("path", c.sqlitePath))
		return store, nil
	}

	c.logger.Info("using in-memory storage")
	return inmemory.NewStore(), nil
}
