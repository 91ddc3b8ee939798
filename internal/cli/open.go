package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmvargas/charla/internal/format"
	"github.com/jmvargas/charla/internal/identity"
	"github.com/jmvargas/charla/internal/models"
	"github.com/jmvargas/charla/internal/store"
)

func newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <email>",
		Short: "Print the conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpen,
	}
	cmd.Flags().Bool("follow", false, "Keep running and print new messages as they arrive")
	return cmd
}

func runOpen(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	follow, _ := cmd.Flags().GetBool("follow")
	id := identity.CanonicalID(rt.identity.Email, args[0])

	if _, err := rt.store.GetConversation(cmd.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no conversation with %q (use contacts add first)", args[0])
		}
		return err
	}

	if !follow {
		messages, err := rt.store.ListMessages(cmd.Context(), id)
		if err != nil {
			return err
		}
		printMessages(cmd.OutOrStdout(), rt.identity.Email, messages)
		return nil
	}

	history, cancel := rt.store.WatchMessages(cmd.Context(), id)
	defer cancel()

	printed := 0
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case messages, ok := <-history:
			if !ok {
				return nil
			}
			if len(messages) < printed {
				printed = 0
			}
			printMessages(cmd.OutOrStdout(), rt.identity.Email, messages[printed:])
			printed = len(messages)
		}
	}
}

func printMessages(w io.Writer, self string, messages []models.Message) {
	now := time.Now()
	for _, msg := range messages {
		sender := msg.Sender
		if sender == self {
			sender = "you"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", format.MessageTime(msg.Timestamp, now), sender, msg.Text)
	}
}
