// Package relay implements the chatrelay server: a thin HTTP backend that
// accepts chat messages, forwards them to an upstream completion API with the
// full conversation history, tees the streamed response back to the caller
// byte-for-byte while reassembling the assistant reply, and persists the
// conversation.
package relay

import (
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"go.uber.org/zap"

	"github.com/lanternworks/chatrelay/pkg/storage"
	"github.com/lanternworks/chatrelay/relay/header"
)

// completionsPath is the upstream chat-completions endpoint, relative to the
// configured upstream base URL.
const completionsPath = "/v1/chat/completions"

// Relay is the chat relay server. It owns no per-request state: each in-flight
// request gets its own accumulator, and the store is the only resource shared
// across requests.
type Relay struct {
	config        Config
	store         storage.Store
	logger        *zap.Logger
	httpClient    *http.Client
	server        *fiber.App
	headerHandler *header.Handler
}

// New creates a new Relay backed by the given store.
func New(config Config, store storage.Store, logger *zap.Logger) *Relay {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	app.Use(compress.New())

	r := &Relay{
		config:        config,
		store:         store,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
		httpClient: &http.Client{
			// Completion requests can be slow, especially long generations
			Timeout: 5 * time.Minute,
		},
	}

	app.Get("/ping", r.handlePing)

	app.Post("/api/chats", r.handleCreateChat)
	app.Get("/api/chats", r.handleListChats)
	app.Get("/api/chats/:id/messages", r.handleListMessages)
	app.Delete("/api/chats/:id", r.handleDeleteChat)

	app.Post("/api/chat/completions", r.handleChatCompletions)

	if config.StaticDir != "" {
		app.Static("/", config.StaticDir)
	}

	return r
}

// Run starts the relay server on the configured listening address.
func (r *Relay) Run() error {
	r.logger.Info("starting relay server",
		zap.String("listen", r.config.ListenAddr),
		zap.String("upstream", r.config.UpstreamURL),
		zap.String("model", r.config.Model),
	)

	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (r *Relay) RunWithListener(listener net.Listener) error {
	r.logger.Info("starting relay server",
		zap.String("listen", listener.Addr().String()),
		zap.String("upstream", r.config.UpstreamURL),
	)

	return r.server.Listener(listener)
}

// Close gracefully shuts down the relay server.
func (r *Relay) Close() error {
	return r.server.Shutdown()
}
