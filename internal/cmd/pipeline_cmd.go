package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/rivershell/corefish/internal/job"
)

var pipelineCmd = &cobra.Command{
	Use:     "pipeline COMMAND",
	Short:   "Run a '|'-separated pipeline as a single job sharing one pgid",
	GroupID: groupCore,
	Args:    cobra.ExactArgs(1),
	Long: `Runs a multi-stage pipeline through the job tracker (spec §3 "a
pipeline of one or more processes sharing a process group"): each stage's
stdout is connected to the next stage's stdin with a real os.Pipe, every
stage joins the first stage's pgid, and the tracker's single foreground
wait loop blocks on all of them together.

Unlike "corefish run", which tracks exactly one process, this exercises
the multi-process half of the Job record and the PipeRd-based leftover
output drain for every non-final stage.

Example:
  corefish pipeline "printf 'hello\nworld\n' | tr a-z A-Z | sort"`,
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	stages := strings.Split(args[0], "|")
	j := rt.tracker.CreateJob(args[0])

	if _, err := spawnPipelineStages(rt, j, stages); err != nil {
		rt.tracker.FailSpawn(j)
		return err
	}

	rt.tracker.MarkConstructed(j)
	j.Flags |= job.FlagForeground | job.FlagJobControlled

	if err := rt.tracker.ContinueJob(j, false); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	rt.tracker.Reap(false)

	status := j.FinalStatus()
	if status != 0 {
		os.Exit(status)
	}
	return nil
}

// spawnPipelineStages starts one exec.Cmd per '|'-separated stage,
// connecting consecutive stages with os.Pipe and registering each as a
// job.Process sharing the pipeline's pgid (spec §3 "Process record",
// "Job record"). The parent's copies of pipe ends it handed to a child
// are closed immediately after Start, matching the standard
// fork/dup2/close-unused-ends pipeline idiom.
func spawnPipelineStages(rt *runtime, j *job.Job, stages []string) ([]*exec.Cmd, error) {
	var cmds []*exec.Cmd
	var stdin *os.File

	for i, stageText := range stages {
		tokens, err := shlex.Split(strings.TrimSpace(stageText))
		if err != nil || len(tokens) == 0 {
			return cmds, fmt.Errorf("pipeline: invalid stage %q", stageText)
		}

		c := exec.Command(tokens[0], tokens[1:]...)
		c.Stderr = os.Stderr
		if stdin != nil {
			c.Stdin = stdin
		} else {
			c.Stdin = os.Stdin
		}

		last := i == len(stages)-1
		var pipeRd, pipeWr *os.File
		if last {
			c.Stdout = os.Stdout
		} else {
			pipeRd, pipeWr, err = os.Pipe()
			if err != nil {
				return cmds, fmt.Errorf("pipeline: pipe: %w", err)
			}
			c.Stdout = pipeWr
		}

		c.SysProcAttr = &syscall.SysProcAttr{}
		if j.Pgid == 0 {
			c.SysProcAttr.Setpgid = true
		} else {
			c.SysProcAttr.Setpgid = true
			c.SysProcAttr.Pgid = j.Pgid
		}

		if err := c.Start(); err != nil {
			return cmds, fmt.Errorf("pipeline: start %q: %w", tokens[0], err)
		}
		if j.Pgid == 0 {
			j.Pgid = c.Process.Pid
		}

		if stdin != nil {
			_ = stdin.Close()
		}
		if pipeWr != nil {
			_ = pipeWr.Close()
		}

		p := &job.Process{Argv: tokens, Type: job.ProcessExternal, Path: tokens[0], Pid: c.Process.Pid}
		if pipeRd != nil {
			p.PipeRd = int(pipeRd.Fd())
		}
		rt.tracker.AddProcess(j, p)
		cmds = append(cmds, c)
		stdin = pipeRd
	}

	return cmds, nil
}
