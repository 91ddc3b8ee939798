package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmvargas/charla/internal/engine"
	"github.com/jmvargas/charla/internal/format"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the conversation list, newest activity first",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().Bool("watch", false, "Keep running and reprint on every change")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	watch, _ := cmd.Flags().GetBool("watch")

	opts := engine.DefaultOptions()
	opts.PlaceholderName = rt.cfg.Engine.PlaceholderName
	opts.EventBuffer = rt.cfg.Engine.EventBuffer

	eng := engine.New(rt.store, rt.identity.Email, opts)
	if err := eng.Start(cmd.Context()); err != nil {
		return err
	}
	defer func() { _ = eng.Stop() }()

	if !watch {
		// One shot: wait until every conversation's preview has reported,
		// otherwise the output would order by creation time only.
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-eng.Settled():
		}
		printSnapshot(cmd.OutOrStdout(), rt.identity.Email, eng.Current())
		return nil
	}

	snapshots, cancel := eng.Subscribe()
	defer cancel()

	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			printSnapshot(cmd.OutOrStdout(), rt.identity.Email, snap)
		}
	}
}

func printSnapshot(w io.Writer, self string, snap engine.Snapshot) {
	if len(snap.Entries) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}

	now := time.Now()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, entry := range snap.Entries {
		preview := ""
		if entry.LastMessage != nil {
			label := entry.PreviewLabel(self)
			preview = fmt.Sprintf("%s: %s", label, format.Preview(entry.LastMessage.Text))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.DisplayName, format.BucketTime(entry.SortKey, now), preview)
	}
	_ = tw.Flush()
}
