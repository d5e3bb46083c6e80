package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kronigert/timsCompare/internal/session"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir.d>...",
	Short: "Reprint the comparison whenever a method directory changes",
	Long: `Loads the directories, prints the comparison table, and reloads a dataset
each time files below its directory change. A reload that fails keeps the
previous dataset. Stop with Ctrl-C.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	addKeyFlags(watchCmd)
	watchCmd.Flags().Bool("only-diffs", false, "show only rows that differ")
	watchCmd.Flags().Duration("debounce", 0, "quiet period before a change is reloaded")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	onlyDiffs := a.cfg.OnlyDifferences
	if cmd.Flags().Changed("only-diffs") {
		onlyDiffs, _ = cmd.Flags().GetBool("only-diffs")
	}
	debounce := a.cfg.Watch.Debounce
	if cmd.Flags().Changed("debounce") {
		debounce, _ = cmd.Flags().GetDuration("debounce")
	}

	entries, err := a.load(cmd, args)
	if err != nil {
		return err
	}
	keys, err := selectedKeys(cmd, a.session.Catalogue(), a.session.Datasets())
	if err != nil {
		return err
	}
	if keys != nil {
		a.session.SetSelection(keys)
	}

	w, err := session.NewWatcher(debounce, a.log)
	if err != nil {
		return err
	}
	defer w.Stop()
	for _, e := range entries {
		if err := w.Add(e.Path); err != nil {
			return err
		}
	}

	show := func() {
		m := a.session.Compare(onlyDiffs)
		a.out.Comparison(m)
		a.out.DiffCount(m)
	}
	show()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-w.Changes:
			if !ok {
				return nil
			}
			e, err := a.session.Lookup(c.Root)
			if err != nil {
				continue
			}
			e, err = a.session.Reload(ctx, e.ID)
			if err != nil {
				a.log.Warn("reload failed", zap.String("path", c.Root), zap.Error(err))
				a.errOut.Error(fmt.Sprintf("reloading %s: %v (keeping previous)", c.Root, err))
				continue
			}
			a.errOut.LoadResult(session.Result{Path: e.Path, Entry: e})
			show()
		}
	}
}
