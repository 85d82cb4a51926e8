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

var jobsCmd = &cobra.Command{
	Use:     "jobs -- COMMAND [ARG...]",
	Short:   "Run a command as a job and print the job list before and after reaping",
	GroupID: groupCore,
	Args:    cobra.MinimumNArgs(1),
	Long: `Demonstrates the tracker's job list (spec §3 "job list"): the job is
created and its sole process spawned, the list is printed while the job is
still live, the foreground wait loop runs it to completion, and the list
is printed again once Reap has freed it.

Example:
  corefish jobs -- sleep 1`,
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("jobs %s: %w", args[0], err)
	}

	p := &job.Process{Argv: args, Type: job.ProcessExternal, Path: args[0], Pid: c.Process.Pid}
	rt.tracker.AddProcess(j, p)
	rt.tracker.MarkConstructed(j)
	j.Flags |= job.FlagForeground

	printJobList(rt.tracker, "before")

	if err := rt.tracker.ContinueJob(j, false); err != nil {
		return fmt.Errorf("jobs %s: %w", args[0], err)
	}
	rt.tracker.Reap(false)

	printJobList(rt.tracker, "after")

	status := j.FinalStatus()
	if status != 0 {
		os.Exit(status)
	}
	return nil
}

func printJobList(tr *job.Tracker, when string) {
	jobs := tr.Jobs()
	if len(jobs) == 0 {
		fmt.Printf("%s: no active jobs\n", when)
		return
	}
	fmt.Printf("%s:\n", when)
	for _, j := range jobs {
		fmt.Printf("  [%d] %s\n", j.ID, j.CommandText)
	}
}
