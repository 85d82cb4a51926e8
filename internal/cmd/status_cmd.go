package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show corefish's configuration and runtime status",
	GroupID: groupSetup,
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	rt.connectUniversal()

	fmt.Println("corefish status")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("base dir:         %s\n", rt.paths.BaseDir)
	fmt.Printf("history dir:      %s\n", rt.cfg.Paths.HistoryDir)
	fmt.Printf("universal socket: %s\n", rt.socketPath())

	if _, err := os.Stat(rt.socketPath()); err == nil {
		fmt.Println("universal helper: reachable")
	} else {
		fmt.Println("universal helper: not running")
	}
	fmt.Printf("barrier passed:   %v\n", rt.store.BarrierPassed())

	names := rt.store.Names(0)
	fmt.Printf("variables in scope: %d\n", len(names))
	return nil
}
