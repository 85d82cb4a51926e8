// Package job tracks asynchronous jobs and the processes that make up
// their pipelines: creation, status-change reaping via SIGCHLD, terminal
// ownership handoff for foreground jobs, and exit-event delivery.
//
// Grounded on the teacher's internal/workflow package's LimitedBuffer
// (buffer.go, adapted here to cap a reaped process's leftover pipe
// output) and internal/ipc's Setpgid/process-group idiom, reshaped from
// a CI-step runner that spawns its own commands into a pipeline/job
// tracker matching spec §4.D and §3's Process/Job record shapes, which
// only ever takes custody of pids a caller already spawned.
//
// Job control (process groups, tcsetpgrp, waitpid) is inherently POSIX;
// this file and tracker.go build on !windows.
//go:build !windows

package job

import (
	"sync"

	"golang.org/x/sys/unix"
)

// ProcessType tags what kind of command a Process runs.
type ProcessType int

const (
	ProcessExternal ProcessType = iota
	ProcessBuiltin
	ProcessFunction
	ProcessBlock
)

// Process is one element of a pipeline (spec §3 "Process record").
type Process struct {
	Argv    []string
	Type    ProcessType
	Path    string
	Pid     int
	PipeRd  int
	PipeWr  int

	Completed       bool
	Stopped         bool
	LastStatusValid bool
	RawStatus       unix.WaitStatus
	reported        bool // PROCESS_EXIT already fired by Reap

	// output holds the tail of this process's pipe-buffer bytes drained
	// after foreground completion (spec §4.D "read any remaining
	// buffered output from the pipe buffers"); see
	// Tracker.drainRemainingOutput. Allocated lazily since most
	// processes are reaped in the background and never drained.
	output *LimitedBuffer

	Next *Process
}

// Output returns the tail of this process's drained pipe output, or ""
// if nothing has been drained yet.
func (p *Process) Output() string {
	if p.output == nil {
		return ""
	}
	return p.output.String()
}

// Status returns the POSIX-style wait status decoded for reap reporting.
// Killed processes report -1 as their exit status (spec §4.D "reap").
func (p *Process) Status() int {
	switch {
	case p.RawStatus.Signaled():
		return -1
	case p.RawStatus.Exited():
		return p.RawStatus.ExitStatus()
	default:
		return -1
	}
}

// JobFlag is a bitflag set on a Job record (spec §3 "Job record").
type JobFlag uint16

const (
	FlagConstructed JobFlag = 1 << iota
	FlagForeground
	FlagNotified
	FlagSkipNotification
	FlagTerminalOwned
	FlagNegated
	FlagJobControlled
)

// Has reports whether all bits in mask are set.
func (f JobFlag) Has(mask JobFlag) bool { return f&mask == mask }

// TerminalModes is an opaque snapshot of a tty's termios state, saved and
// restored around foreground job transfers.
type TerminalModes struct {
	valid   bool
	termios unix.Termios
}

// Job is a pipeline of one or more processes sharing a process group
// (spec §3 "Job record").
type Job struct {
	mu sync.Mutex

	ID          int
	CommandText string
	First       *Process
	Pgid        int
	SavedModes  TerminalModes
	Flags       JobFlag
}

// Processes returns the job's process list as a slice, head first.
func (j *Job) Processes() []*Process {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*Process
	for p := j.First; p != nil; p = p.Next {
		out = append(out, p)
	}
	return out
}

// Last returns the last process in the pipeline, or nil if empty.
func (j *Job) Last() *Process {
	j.mu.Lock()
	defer j.mu.Unlock()
	var last *Process
	for p := j.First; p != nil; p = p.Next {
		last = p
	}
	return last
}

// IsCompleted reports whether every process in the job has completed.
func (j *Job) IsCompleted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for p := j.First; p != nil; p = p.Next {
		if !p.Completed {
			return false
		}
	}
	return true
}

// IsStopped reports whether every live process in the job is stopped or
// completed, with at least one stopped (spec §4.D "Stopped jobs").
func (j *Job) IsStopped() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	sawStopped := false
	for p := j.First; p != nil; p = p.Next {
		if p.Completed {
			continue
		}
		if !p.Stopped {
			return false
		}
		sawStopped = true
	}
	return sawStopped
}
