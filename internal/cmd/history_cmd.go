package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivershell/corefish/internal/history"
)

const importTimeout = 30 * time.Second

var (
	historyAdd        string
	historyAddCWD     string
	historySearch     string
	historySearchType string
	historyLimit      int
	historyImportFrom string
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "Inspect or extend the current session's command history",
	GroupID: groupCore,
	Args:    cobra.NoArgs,
	Long: `Operate on the current session's history (spec §4.B).

Without flags, prints the most recent commands, newest first.

Examples:
  corefish history
  corefish history --limit 5
  corefish history --add "git status" --cwd /tmp
  corefish history --search git --search-type prefix
  corefish history --import bash`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyAdd, "add", "", "record a command in the current session's history")
	historyCmd.Flags().StringVar(&historyAddCWD, "cwd", "", "working directory for --add's file-token detection")
	historyCmd.Flags().StringVar(&historySearch, "search", "", "search history for a term")
	historyCmd.Flags().StringVar(&historySearchType, "search-type", "contains", "search match type: contains or prefix")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of entries to print")
	historyCmd.Flags().StringVar(&historyImportFrom, "import", "", "seed history from another shell's file: bash, zsh, fish, or auto")
}

func runHistory(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	if historyImportFrom != "" {
		if err := importInto(rt.session, historyImportFrom); err != nil {
			return err
		}
	}

	if historyAdd != "" {
		cwd := historyAddCWD
		if cwd == "" {
			cwd, _ = os.Getwd()
		}
		rt.session.AddWithFileDetection(historyAdd, cwd)
	}

	if historySearch != "" {
		typ := history.MatchContains
		if historySearchType == "prefix" {
			typ = history.MatchPrefix
		}
		it := rt.session.Search(historySearch, typ, nil)
		n := 0
		for {
			item, ok := it.Next()
			if !ok || n >= historyLimit {
				break
			}
			fmt.Println(item.Command)
			n++
		}
		return nil
	}

	for idx := 1; idx <= historyLimit; idx++ {
		item, ok := rt.session.ItemAtIndex(idx)
		if !ok {
			break
		}
		fmt.Println(item.Command)
	}
	return nil
}

// importInto seeds session with entries drawn from shell (spec §6
// supplemental "history import": "bash"/"zsh"/"fish" or "auto" for
// history.DetectShell's result).
func importInto(session *history.Session, shell string) error {
	if shell == "auto" {
		shell = history.DetectShell()
	}
	ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
	defer cancel()
	entries, err := history.ImportForShellWithContext(ctx, shell)
	if err != nil {
		return fmt.Errorf("history import %s: %w", shell, err)
	}
	session.SeedImport(entries)
	return nil
}
