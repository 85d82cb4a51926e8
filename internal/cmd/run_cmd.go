package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rivershell/corefish/internal/job"
)

var runCmd = &cobra.Command{
	Use:     "run -- COMMAND [ARG...]",
	Short:   "Run a command as a tracked foreground job",
	GroupID: groupCore,
	Args:    cobra.MinimumNArgs(1),
	Long: `Run a single external command through the job tracker (spec §4.D):
a job is created, the spawned process is registered as its sole process,
and the tracker's foreground wait loop is used to block until it exits.

Examples:
  corefish run -- echo hello
  corefish run -- sleep 1`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	commandText := strings.Join(args, " ")
	j := rt.tracker.CreateJob(commandText)

	c := exec.Command(args[0], args[1:]...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := c.Start(); err != nil {
		rt.tracker.FailSpawn(j)
		return fmt.Errorf("run %s: %w", args[0], err)
	}

	p := &job.Process{Argv: args, Type: job.ProcessExternal, Path: args[0], Pid: c.Process.Pid}
	rt.tracker.AddProcess(j, p)
	rt.tracker.MarkConstructed(j)
	j.Flags |= job.FlagForeground

	if err := rt.tracker.ContinueJob(j, false); err != nil {
		return fmt.Errorf("run %s: %w", args[0], err)
	}

	rt.tracker.Reap(false)

	rt.session.AddWithFileDetectionAsync(rt.pool, commandText, rt.store.Snapshot("PWD"))

	status := j.FinalStatus()
	if status != 0 {
		os.Exit(status)
	}
	return nil
}
