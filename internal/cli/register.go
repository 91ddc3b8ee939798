package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmvargas/charla/internal/session"
)

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <name>",
		Short: "Register or update the acting user's profile",
		Args:  cobra.ExactArgs(1),
		RunE:  runRegister,
	}
}

func runRegister(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	id := rt.identity
	id.DisplayName = args[0]
	user := session.UserFromIdentity(id)
	if err := rt.store.PutProfile(cmd.Context(), user); err != nil {
		return fmt.Errorf("register profile: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as %q\n", user.Email, user.DisplayName)
	return nil
}
