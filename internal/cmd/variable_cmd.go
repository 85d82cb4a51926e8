package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rivershell/corefish/internal/variable"
)

var (
	setExport    bool
	setUnexport  bool
	setUniversal bool
	setGlobal    bool
)

var setCmd = &cobra.Command{
	Use:     "set NAME [VALUE...]",
	Short:   "Set a variable in the current scope",
	GroupID: groupCore,
	Args:    cobra.MinimumNArgs(1),
	Long: `Set a variable in the variable store (spec §4.A).

Examples:
  corefish set greeting hello world
  corefish set -x PATH /usr/bin /bin
  corefish set -U fish_color_command blue`,
	RunE: runSet,
}

var getCmd = &cobra.Command{
	Use:     "get NAME",
	Short:   "Print a variable's values",
	GroupID: groupCore,
	Args:    cobra.ExactArgs(1),
	RunE:    runGet,
}

var eraseCmd = &cobra.Command{
	Use:     "erase NAME",
	Short:   "Erase a variable",
	GroupID: groupCore,
	Args:    cobra.ExactArgs(1),
	RunE:    runErase,
}

var varsCmd = &cobra.Command{
	Use:     "vars",
	Short:   "List variable names",
	GroupID: groupCore,
	Args:    cobra.NoArgs,
	RunE:    runVars,
}

func init() {
	for _, c := range []*cobra.Command{setCmd, eraseCmd} {
		c.Flags().BoolVarP(&setExport, "export", "x", false, "export the variable to child processes")
		c.Flags().BoolVarP(&setUnexport, "unexport", "u", false, "unexport the variable")
		c.Flags().BoolVarP(&setUniversal, "universal", "U", false, "set in the universal (cross-session) scope")
		c.Flags().BoolVarP(&setGlobal, "global", "g", false, "set in the global scope instead of the local one")
	}
	varsCmd.Flags().BoolP("exported", "x", false, "list only exported names")
}

func resolveMode() variable.Mode {
	mode := variable.Local
	if setGlobal {
		mode = variable.Global
	}
	if setUniversal {
		mode = variable.Universal
	}
	if setExport {
		mode |= variable.Export
	}
	if setUnexport {
		mode |= variable.Unexport
	}
	return mode
}

func withStoreRuntime(fn func(rt *runtime) error) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	if setUniversal {
		rt.connectUniversal()
	}
	defer rt.close()
	return fn(rt)
}

func runSet(cmd *cobra.Command, args []string) error {
	return withStoreRuntime(func(rt *runtime) error {
		name, values := args[0], variable.Values(args[1:])
		result := rt.store.Set(name, values, resolveMode())
		if err := variable.ResultError(result); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
		if setUniversal && rt.uniClient != nil {
			if err := rt.uniClient.Set(name, args[1:], setExport); err != nil {
				rt.logger.Warn("corefish: universal set propagation failed", "name", name, "err", err)
			}
		}
		return nil
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	return withStoreRuntime(func(rt *runtime) error {
		values, ok := rt.store.Get(args[0])
		if !ok {
			return fmt.Errorf("get %s: %w", args[0], variable.ErrNotFound)
		}
		fmt.Println(strings.Join(values, " "))
		return nil
	})
}

func runErase(cmd *cobra.Command, args []string) error {
	return withStoreRuntime(func(rt *runtime) error {
		name := args[0]
		result := rt.store.Remove(name, resolveMode())
		if err := variable.ResultError(result); err != nil {
			return fmt.Errorf("erase %s: %w", name, err)
		}
		if setUniversal && rt.uniClient != nil {
			if err := rt.uniClient.Erase(name); err != nil {
				rt.logger.Warn("corefish: universal erase propagation failed", "name", name, "err", err)
			}
		}
		return nil
	})
}

func runVars(cmd *cobra.Command, args []string) error {
	exportedOnly, _ := cmd.Flags().GetBool("exported")
	return withStoreRuntime(func(rt *runtime) error {
		mode := variable.Local | variable.Global | variable.Universal
		if exportedOnly {
			mode |= variable.Export
		}
		for _, name := range rt.store.Names(mode) {
			fmt.Println(name)
		}
		return nil
	})
}
