package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmvargas/charla/internal/identity"
)

func newContactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage conversation contacts",
	}
	cmd.AddCommand(newContactsAddCmd())
	return cmd
}

func newContactsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <email>",
		Short: "Start (or find) the conversation with a registered user",
		Args:  cobra.ExactArgs(1),
		RunE:  runContactsAdd,
	}
}

func runContactsAdd(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	resolver := identity.NewResolver(rt.store)
	conv, created, err := resolver.CreateIfAbsent(cmd.Context(), rt.identity.Email, args[0])
	if err != nil {
		return err
	}

	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Started conversation %s\n", conv.ID)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s already exists\n", conv.ID)
	}
	return nil
}
