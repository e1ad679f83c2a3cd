// Package chatrelaycmder
package chatrelaycmder

import (
	chatcmder "github.com/lanternworks/chatrelay/cmd/chatrelay/chat"
	configcmder "github.com/lanternworks/chatrelay/cmd/chatrelay/config"
	servecmder "github.com/lanternworks/chatrelay/cmd/chatrelay/serve"
	versioncmder "github.com/lanternworks/chatrelay/cmd/version"
	"github.com/spf13/cobra"
)

const chatrelayLongDesc string = `Chatrelay is a streaming chat backend for LLM completion APIs.

The relay accepts user messages over HTTP, forwards the full conversation to
an OpenAI-compatible completion API, streams the reply back byte-for-byte as
it arrives, and persists both sides of the exchange.

Run services using:
  chatrelay serve      Run the relay server
  chatrelay chat       Interactive chat against a running relay`

const chatrelayShortDesc string = "Chatrelay - Streaming LLM chat relay"

func NewChatrelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatrelay",
		Short: chatrelayShortDesc,
		Long:  chatrelayLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory containing config.toml (default: .chatrelay/ discovery)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
