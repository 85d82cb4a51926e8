//go:build !windows

package job

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rivershell/corefish/internal/event"
)

// Tracker is the job/process tracker of spec §4.D: it owns the live job
// list, the job id pool, terminal ownership handoff for foreground jobs,
// and SIGCHLD-driven reaping. Unlike the teacher's internal/workflow
// package, Tracker never spawns a process itself (spec §1 places
// "external-process spawning/fork machinery" out of scope as an external
// collaborator): it only takes custody of a pid a caller already
// started, via AddProcess.
//
// Grounded on the teacher's internal/ipc spawn_unix.go Setpgid idiom for
// process-group handling, adapted from "one process, one process group"
// to "a pipeline of already-spawned pids sharing one pgid", plus
// internal/workflow's LimitedBuffer (buffer.go), adapted for capturing
// each process's leftover pipe output in drainRemainingOutput instead of
// a spawned command's live stdout/stderr.
type Tracker struct {
	mu  sync.Mutex
	job []*Job // head-first; index 0 is "most recently continued"

	pool       *IDPool
	dispatcher *event.Dispatcher
	logger     *slog.Logger

	shellPgid int
	ttyFd     int
	reaping   bool // recursion guard for Reap (spec §4.D "reap")

	notifyUser func(msg string)
}

// Option configures a new Tracker.
type Option func(*Tracker)

func WithDispatcher(d *event.Dispatcher) Option { return func(t *Tracker) { t.dispatcher = d } }
func WithLogger(l *slog.Logger) Option          { return func(t *Tracker) { t.logger = l } }
func WithTTY(fd int) Option                     { return func(t *Tracker) { t.ttyFd = fd } }
func WithShellPgid(pgid int) Option             { return func(t *Tracker) { t.shellPgid = pgid } }
func WithUserNotifier(f func(msg string)) Option { return func(t *Tracker) { t.notifyUser = f } }

// New creates a Tracker. shellPgid defaults to the calling process's own
// pgid if not overridden by WithShellPgid.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		pool:   NewIDPool(),
		logger: slog.Default(),
		ttyFd:  0,
	}
	if pgid, err := unix.Getpgid(unix.Getpid()); err == nil {
		t.shellPgid = pgid
	}
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.notifyUser == nil {
		t.notifyUser = func(string) {}
	}
	return t
}

// CreateJob allocates a job with a fresh id from the small-integer pool
// (spec §4.D "create_job").
func (t *Tracker) CreateJob(commandText string) *Job {
	id := t.pool.Acquire()
	j := &Job{ID: id, CommandText: commandText}

	t.mu.Lock()
	t.job = append([]*Job{j}, t.job...)
	t.mu.Unlock()
	return j
}

// Jobs returns a snapshot of the tracker's job list, head first (spec §3
// "job list"; most-recently-continued job first per continue_job's
// move-to-front rule).
func (t *Tracker) Jobs() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, len(t.job))
	copy(out, t.job)
	return out
}

// AddProcess appends a process to the job's pipeline (spec §4.D
// "add_process").
func (t *Tracker) AddProcess(j *Job, p *Process) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.First == nil {
		j.First = p
		return
	}
	last := j.First
	for last.Next != nil {
		last = last.Next
	}
	last.Next = p
}

// MarkConstructed signals that no further processes will be added to j;
// only constructed jobs are considered for reaping reports (spec §4.D
// "mark_constructed").
func (t *Tracker) MarkConstructed(j *Job) {
	j.mu.Lock()
	j.Flags |= FlagConstructed
	j.mu.Unlock()
}

// moveToFront implements "moves the job to the head of the job list"
// (spec §4.D "continue_job").
func (t *Tracker) moveToFront(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, cand := range t.job {
		if cand == j {
			t.job = append(t.job[:i], t.job[i+1:]...)
			break
		}
	}
	t.job = append([]*Job{j}, t.job...)
}

// ContinueJob implements spec §4.D "continue_job": terminal ownership
// transfer and SIGCONT delivery for a job being resumed or run in the
// foreground, followed by the foreground wait loop when applicable.
func (t *Tracker) ContinueJob(j *Job, sendSigcont bool) error {
	t.moveToFront(j)

	j.mu.Lock()
	completed := allCompletedLocked(j)
	jobControlled := j.Flags.Has(FlagJobControlled)
	foreground := j.Flags.Has(FlagForeground)
	pgid := j.Pgid
	j.mu.Unlock()

	if completed || !jobControlled {
		if foreground {
			return t.waitForeground(j)
		}
		return nil
	}

	if foreground {
		if err := t.transferTerminalTo(pgid); err != nil {
			t.logger.Error("job: terminal transfer failed", "job", j.ID, "err", err)
			return err
		}
		j.mu.Lock()
		j.Flags |= FlagTerminalOwned
		j.mu.Unlock()
	}

	if sendSigcont {
		if foreground {
			t.restoreTerminalModes(j)
		}
		if err := t.sendSignalToJob(j, unix.SIGCONT); err != nil {
			t.logger.Warn("job: SIGCONT delivery failed", "job", j.ID, "err", err)
		}
	}

	if foreground {
		return t.waitForeground(j)
	}
	return nil
}

// sendSignalToJob delivers sig to every process in j, via killpg when
// job-controlled (one pgid covers the whole pipeline), else per-process
// (spec §4.D "via killpg when job-controlled, else per-process").
func (t *Tracker) sendSignalToJob(j *Job, sig unix.Signal) error {
	j.mu.Lock()
	jobControlled := j.Flags.Has(FlagJobControlled)
	pgid := j.Pgid
	var pids []int
	for p := j.First; p != nil; p = p.Next {
		if p.Pid > 0 && !p.Completed {
			pids = append(pids, p.Pid)
		}
	}
	j.mu.Unlock()

	if jobControlled && pgid > 0 {
		return unix.Kill(-pgid, sig)
	}
	var firstErr error
	for _, pid := range pids {
		if err := unix.Kill(pid, sig); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// transferTerminalTo gives the controlling terminal to pgid via
// tcsetpgrp (spec §4.D "transfer terminal ownership to the job's pgid").
func (t *Tracker) transferTerminalTo(pgid int) error {
	if pgid <= 0 {
		return nil
	}
	return unix.IoctlSetPointerInt(t.ttyFd, unix.TIOCSPGRP, pgid)
}

func (t *Tracker) restoreTerminalModes(j *Job) {
	j.mu.Lock()
	modes := j.SavedModes
	j.mu.Unlock()
	if !modes.valid {
		return
	}
	_ = unix.IoctlSetTermios(t.ttyFd, ioctlSetTermios, &modes.termios)
}

func (t *Tracker) saveTerminalModes(j *Job) {
	termios, err := unix.IoctlGetTermios(t.ttyFd, ioctlGetTermios)
	j.mu.Lock()
	if err == nil {
		j.SavedModes = TerminalModes{valid: true, termios: *termios}
	}
	j.mu.Unlock()
}

// waitForeground implements the foreground half of continue_job: alternate
// a short select on pipe-buffer descriptors with a blocking waitpid, then
// drain leftover pipe output, save the job's terminal modes and hand the
// terminal back (spec §4.D "When foreground: loop waiting for status
// changes..."). The shell status is computed separately by
// Job.FinalStatus.
func (t *Tracker) waitForeground(j *Job) error {
	for {
		j.mu.Lock()
		done := allCompletedOrStoppedLocked(j)
		j.mu.Unlock()
		if done {
			break
		}
		t.pollPipeBuffers(j, selectPollInterval)
		if _, err := t.blockingWait(); err != nil {
			break
		}
	}

	t.drainRemainingOutput(j)

	stopped := j.IsStopped()

	if !stopped {
		j.mu.Lock()
		j.Flags &^= FlagTerminalOwned
		j.mu.Unlock()
		t.saveTerminalModes(j)
		_ = t.transferTerminalTo(t.shellPgid)
		return nil
	}

	j.mu.Lock()
	j.Flags &^= FlagTerminalOwned
	j.mu.Unlock()
	t.saveTerminalModes(j)
	return t.transferTerminalTo(t.shellPgid)
}

// pollPipeBuffers waits up to d for readability on the job's pipe-buffer
// fds; it is a best-effort nudge, not a correctness requirement, since the
// blocking waitpid that follows is the real completion signal.
func (t *Tracker) pollPipeBuffers(j *Job, d time.Duration) {
	j.mu.Lock()
	var fds []int
	for p := j.First; p != nil; p = p.Next {
		if p.PipeRd > 0 && !p.Completed {
			fds = append(fds, p.PipeRd)
		}
	}
	j.mu.Unlock()
	if len(fds) == 0 {
		time.Sleep(d)
		return
	}
	pollFds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pollFds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	_, _ = unix.Poll(pollFds, int(d/time.Millisecond))
}

// blockingWait performs one waitpid(-1, WUNTRACED) and applies the result
// to the owning process record. Returns an error when waitpid itself
// fails (e.g. ECHILD), which ends the wait loop.
func (t *Tracker) blockingWait() (int, error) {
	var status unix.WaitStatus
	pid, err := unix.Wait4(-1, &status, unix.WUNTRACED, nil)
	if err != nil {
		return 0, err
	}
	if pid > 0 {
		t.applyStatus(pid, status)
	}
	return pid, nil
}

// drainRemainingOutput reads any leftover buffered output from the job's
// pipe buffers after foreground completion (spec §4.D "read any remaining
// buffered output from the pipe buffers"), retaining the tail of each
// process's output in its LimitedBuffer for later inspection (e.g. a
// signalled-death report wanting to show what the process last printed).
func (t *Tracker) drainRemainingOutput(j *Job) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for p := j.First; p != nil; p = p.Next {
		if p.PipeRd <= 0 {
			continue
		}
		if p.output == nil {
			p.output = NewLimitedBuffer(DefaultBufferSize)
		}
		buf := make([]byte, 4096)
		for {
			n, err := unix.Read(p.PipeRd, buf)
			if n <= 0 || err != nil {
				break
			}
			_, _ = p.output.Write(buf[:n])
		}
	}
}

// FinalStatus computes the foreground job's shell status from its last
// process, negated per the job's *negate* flag (spec §4.D "compute the
// final shell status from the last process").
func (j *Job) FinalStatus() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	var last *Process
	for p := j.First; p != nil; p = p.Next {
		last = p
	}
	if last == nil {
		return 0
	}
	status := last.Status()
	if status == -1 && last.RawStatus.Signaled() {
		status = 128 + int(last.RawStatus.Signal())
	}
	if j.Flags.Has(FlagNegated) {
		if status == 0 {
			return 1
		}
		return 0
	}
	return status
}

func allCompletedLocked(j *Job) bool {
	for p := j.First; p != nil; p = p.Next {
		if !p.Completed {
			return false
		}
	}
	return true
}

func allCompletedOrStoppedLocked(j *Job) bool {
	for p := j.First; p != nil; p = p.Next {
		if !p.Completed && !p.Stopped {
			return false
		}
	}
	return true
}

// HandleSIGCHLD is the SIGCHLD handler of spec §4.D: in a tight loop it
// calls waitpid(-1, WUNTRACED|WNOHANG), updates the matching process
// record, and applies the SIGPIPE-to-predecessor rule. It is safe to call
// from a goroutine fed by os/signal (see internal/event's package doc for
// why Go's delivery model relaxes the original's async-signal-safety
// constraints without dropping their observable ordering contract).
func (t *Tracker) HandleSIGCHLD() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WUNTRACED|unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		t.applyStatus(pid, status)
	}
}

// applyStatus updates the Process record matching pid and, when it just
// completed with an earlier uncompleted predecessor in the same pipeline,
// delivers SIGPIPE to that predecessor to unblock its blocked writer
// (spec §4.D "SIGPIPE-to-predecessor rule", invariant 16).
func (t *Tracker) applyStatus(pid int, status unix.WaitStatus) {
	t.mu.Lock()
	jobs := append([]*Job(nil), t.job...)
	t.mu.Unlock()

	for _, j := range jobs {
		j.mu.Lock()
		var prev, found *Process
		for p := j.First; p != nil; p = p.Next {
			if p.Pid == pid {
				found = p
				break
			}
			prev = p
		}
		if found == nil {
			j.mu.Unlock()
			continue
		}

		found.RawStatus = status
		found.LastStatusValid = true
		switch {
		case status.Stopped():
			found.Stopped = true
		case status.Exited(), status.Signaled():
			found.Completed = true
			found.Stopped = false
		}

		if found.Completed && prev != nil && !prev.Completed && prev.Pid > 0 {
			_ = unix.Kill(prev.Pid, unix.SIGPIPE)
		}
		j.mu.Unlock()
		return
	}
}

// Reap implements spec §4.D "reap": fires PROCESS_EXIT for every
// completed process, then JOB_EXIT(pgid) and JOB_EXIT(job-id) for
// completed jobs before freeing them, reports newly-stopped jobs once,
// and guards against reentrant invocation.
func (t *Tracker) Reap(interactive bool) bool {
	t.mu.Lock()
	if t.reaping {
		t.mu.Unlock()
		return false
	}
	t.reaping = true
	jobs := append([]*Job(nil), t.job...)
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.reaping = false
		t.mu.Unlock()
	}()

	anyChange := false
	var toFree []*Job

	for _, j := range jobs {
		j.mu.Lock()
		if !j.Flags.Has(FlagConstructed) {
			j.mu.Unlock()
			continue
		}

		for p := j.First; p != nil; p = p.Next {
			if p.Completed && p.Pid > 0 && !p.reported {
				anyChange = true
				t.reportProcessExitLocked(j, p)
				p.reported = true
				if p.RawStatus.Signaled() && p.RawStatus.Signal() != unix.SIGPIPE {
					t.notifyUser(signalDeathMessage(j, p))
				}
			}
		}

		jobDone := allCompletedLocked(j)
		notified := j.Flags.Has(FlagNotified)
		j.mu.Unlock()
		stopped := j.IsStopped()

		if jobDone {
			anyChange = true
			t.fireJobExit(j)
			toFree = append(toFree, j)
		} else if stopped && !notified {
			anyChange = true
			j.mu.Lock()
			j.Flags |= FlagNotified
			j.mu.Unlock()
			t.notifyUser(fmt.Sprintf("job %d, '%s' has stopped", j.ID, j.CommandText))
		}
	}

	if len(toFree) > 0 {
		t.mu.Lock()
		remaining := t.job[:0]
		freed := make(map[*Job]bool, len(toFree))
		for _, j := range toFree {
			freed[j] = true
		}
		for _, j := range t.job {
			if !freed[j] {
				remaining = append(remaining, j)
			}
		}
		t.job = remaining
		t.mu.Unlock()
		for _, j := range toFree {
			t.pool.Release(j.ID)
		}
	}

	return anyChange
}

func (t *Tracker) reportProcessExitLocked(j *Job, p *Process) {
	status := p.Status()
	t.fireEvent(event.Descriptor{Kind: event.KindExit, Pid: p.Pid}, []string{"PROCESS_EXIT", fmt.Sprintf("%d", p.Pid), fmt.Sprintf("%d", status)})
}

// fireJobExit fires both JOB_EXIT/exit(-pgid) and JOB_EXIT/job-id(id) for
// a completed job, in that order (spec §4.D "reap"; invariant 14).
func (t *Tracker) fireJobExit(j *Job) {
	j.mu.Lock()
	pgid, id := j.Pgid, j.ID
	j.mu.Unlock()

	t.fireEvent(event.Descriptor{Kind: event.KindExit, Pid: -pgid}, []string{"JOB_EXIT", fmt.Sprintf("%d", pgid), "0"})
	t.fireEvent(event.Descriptor{Kind: event.KindJobID, JobID: id}, []string{"JOB_EXIT", fmt.Sprintf("%d", id), "0"})
}

func (t *Tracker) fireEvent(desc event.Descriptor, args []string) {
	if t.dispatcher == nil {
		return
	}
	t.dispatcher.Fire(event.Event{Descriptor: desc, Args: args})
}

func signalDeathMessage(j *Job, p *Process) string {
	if j.First == p && p.Next == nil {
		return fmt.Sprintf("job %d, '%s' terminated by signal %d", j.ID, j.CommandText, p.RawStatus.Signal())
	}
	return fmt.Sprintf("process '%s' in job %d terminated by signal %d", firstArg(p), j.ID, p.RawStatus.Signal())
}

func firstArg(p *Process) string {
	if len(p.Argv) == 0 {
		return p.Path
	}
	return p.Argv[0]
}

// FailSpawn marks every process in j as completed with no pid, cleanly
// visible to Reap, after a spawn failure (spec §4.D "Failure semantics").
func (t *Tracker) FailSpawn(j *Job) {
	j.mu.Lock()
	for p := j.First; p != nil; p = p.Next {
		p.Completed = true
		p.LastStatusValid = false
	}
	j.mu.Unlock()
}
