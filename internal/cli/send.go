package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmvargas/charla/internal/format"
	"github.com/jmvargas/charla/internal/identity"
	"github.com/jmvargas/charla/internal/models"
)

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <email> <text>",
		Short: "Send a message to a registered user",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSend,
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	target := strings.TrimSpace(args[0])
	text := strings.Join(args[1:], " ")

	resolver := identity.NewResolver(rt.store)
	conv, _, err := resolver.CreateIfAbsent(cmd.Context(), rt.identity.Email, target)
	if err != nil {
		return err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		Sender:         rt.identity.Email,
		Text:           text,
	}
	stored, err := rt.store.AppendMessage(cmd.Context(), msg)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s at %s\n", target, format.MessageTime(stored.Timestamp, time.Now()))
	return nil
}
