// Package chatcmder provides the chat command for interactive LLM chat
// through a running chatrelay server.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lanternworks/chatrelay/pkg/cliui"
	"github.com/lanternworks/chatrelay/pkg/config"
	"github.com/lanternworks/chatrelay/pkg/consumer"
	"github.com/lanternworks/chatrelay/pkg/dotdir"
	"github.com/lanternworks/chatrelay/pkg/logger"
	"github.com/lanternworks/chatrelay/pkg/utils"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	target string
	debug  bool

	logger *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session against a running relay.

Messages are sent to the relay, which forwards the full conversation to the
upstream completion API and streams the reply back token by token. Replies
render progressively as they arrive; once the relay confirms the reply has
been durably stored, the final text is re-rendered from the relay's
authoritative history.

The active conversation is remembered in the .chatrelay/ directory, so
re-running "chatrelay chat" resumes where you left off. Use /new inside the
session to start a fresh conversation.

Examples:
  chatrelay chat
  chatrelay chat --target http://localhost:8080`

const chatShortDesc string = "Interactive chat through the relay"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("target") {
				cmder.target = cfg.Client.Target
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
	cmd.Flags().StringVarP(&cmder.target, "target", "t", defaults.Client.Target, "Chatrelay server URL")

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx := context.Background()
	dotdirManager := dotdir.NewManager()

	session, err := dotdirManager.LoadSession("")
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	sink := newTerminalSink(os.Stdout)
	cons := consumer.New(consumer.Config{
		Target: c.target,
		ChatID: sessionChatID(session),
	}, sink, c.logger)

	fmt.Println()
	resumed, err := c.attachChat(ctx, cons, dotdirManager)
	if err != nil {
		return err
	}

	if resumed {
		fmt.Printf("  %s Resuming conversation %s\n",
			cliui.SuccessMark,
			cliui.DimStyle.Render(utils.Truncate(cons.ChatID(), 16)),
		)
		// Replay what the relay has so the scrollback matches the store.
		if err := cons.Reconcile(ctx); err != nil {
			c.logger.Warn("failed to replay history", zap.Error(err))
		}
	} else {
		fmt.Printf("  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	fmt.Printf("\n  %s %s\n",
		cliui.KeyStyle.Render("Relay:"),
		cliui.NameStyle.Render(c.target),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /new for a fresh conversation, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}
		if input == "/new" {
			if err := dotdirManager.ClearSession(""); err != nil {
				return fmt.Errorf("clearing session state: %w", err)
			}
			chat, err := cons.NewChat(ctx, "")
			if err != nil {
				fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
				continue
			}
			if err := dotdirManager.SaveSession(&dotdir.SessionState{ChatID: chat.ID}, ""); err != nil {
				return fmt.Errorf("saving session state: %w", err)
			}
			fmt.Printf("  %s New conversation %s\n\n",
				cliui.SuccessMark,
				cliui.DimStyle.Render(utils.Truncate(chat.ID, 16)),
			)
			continue
		}

		if err := cons.Send(ctx, input); err != nil {
			fmt.Fprintf(os.Stderr, "\n  %s %v\n", cliui.FailMark, err)
		}

		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// attachChat binds the consumer to a conversation: the session's remembered
// chat when the relay still has it, a freshly created one otherwise. Returns
// whether an existing conversation was resumed.
func (c *chatCommander) attachChat(ctx context.Context, cons *consumer.Consumer, dotdirManager *dotdir.Manager) (bool, error) {
	if cons.ChatID() != "" {
		// The remembered chat may be gone (relay restarted on in-memory
		// storage, chat deleted). Probe before trusting it.
		if _, err := cons.History(ctx); err == nil {
			return true, nil
		}
		c.logger.Debug("remembered chat no longer available, starting fresh",
			zap.String("chat_id", cons.ChatID()),
		)
	}

	chat, err := cons.NewChat(ctx, "")
	if err != nil {
		return false, fmt.Errorf("creating chat: %w", err)
	}
	if err := dotdirManager.SaveSession(&dotdir.SessionState{ChatID: chat.ID}, ""); err != nil {
		return false, fmt.Errorf("saving session state: %w", err)
	}
	return false, nil
}

func sessionChatID(session *dotdir.SessionState) string {
	if session == nil {
		return ""
	}
	return session.ChatID
}
