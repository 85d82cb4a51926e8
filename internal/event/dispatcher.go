package event

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ExecFunc evaluates a handler's command line through the (external)
// interpreter and returns the handler's own exit status, which is
// discarded by the dispatcher per spec §7 ("the handler's exit status is
// discarded and the outer command's last-status is restored").
type ExecFunc func(handlerName string, args []string) int

// blockFrame is a pushed event block (spec §3 "Event block"): a set of
// kinds whose events are queued rather than delivered while the frame is
// on the stack.
type blockFrame struct {
	kinds map[Kind]bool
	any   bool
}

func (f blockFrame) suppresses(k Kind) bool {
	return f.any || f.kinds[k]
}

// Dispatcher is the event subsystem of spec §4.C.
type Dispatcher struct {
	mu       sync.Mutex
	handlers []*handler
	killList []*handler
	blocked  []Event
	blocks   []blockFrame
	isEvent  int

	sig       *sigBuffer
	installed map[int]chan os.Signal
	stopSig   map[int]chan struct{}

	exec   ExecFunc
	logger *slog.Logger
}

// New creates a Dispatcher. exec evaluates a handler's command line
// through the interpreter; logger defaults to slog.Default() if nil.
func New(exec ExecFunc, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sig:       newSigBuffer(),
		installed: make(map[int]chan os.Signal),
		stopSig:   make(map[int]chan struct{}),
		exec:      exec,
		logger:    logger,
	}
}

// Register adds a handler for the given descriptor (spec §4.C
// "register"). If the descriptor is a signal event, an OS signal
// handler is installed for it (idempotent across registrations).
func (d *Dispatcher) Register(desc Descriptor, handlerName string) {
	desc.HandlerName = handlerName

	d.mu.Lock()
	d.handlers = append(d.handlers, &handler{desc: desc})
	needsInstall := desc.Kind == KindSignal && desc.Signal != AnySignal && d.installed[desc.Signal] == nil
	sig := desc.Signal
	d.mu.Unlock()

	if needsInstall {
		d.installSignal(sig)
	}
}

// Unregister removes all registered handlers matching criterion (spec
// §4.C "unregister"). Removal is deferred to a kill list so a handler
// unregistering itself mid-delivery is safe (spec invariant 12).
func (d *Dispatcher) Unregister(criterion Descriptor) {
	d.mu.Lock()
	var toUninstall []int
	seenSignals := map[int]bool{}
	for _, h := range d.handlers {
		if h.killed {
			continue
		}
		if criterion.matchesRegistration(*h) {
			h.killed = true
			d.killList = append(d.killList, h)
			if h.desc.Kind == KindSignal {
				seenSignals[h.desc.Signal] = true
			}
		}
	}
	for sg := range seenSignals {
		if !d.hasLiveSignalHandlerLocked(sg) {
			toUninstall = append(toUninstall, sg)
		}
	}
	d.mu.Unlock()

	for _, sg := range toUninstall {
		d.uninstallSignal(sg)
	}
}

func (d *Dispatcher) hasLiveSignalHandlerLocked(sig int) bool {
	for _, h := range d.handlers {
		if h.killed {
			continue
		}
		if h.desc.Kind == KindSignal && (h.desc.Signal == sig || h.desc.Signal == AnySignal) {
			return true
		}
	}
	return false
}

// PushBlock suppresses delivery of the given kinds (an empty kinds list
// suppresses everything) until the matching PopBlock.
func (d *Dispatcher) PushBlock(kinds ...Kind) {
	frame := blockFrame{kinds: make(map[Kind]bool, len(kinds))}
	if len(kinds) == 0 {
		frame.any = true
	}
	for _, k := range kinds {
		frame.kinds[k] = true
	}
	d.mu.Lock()
	d.blocks = append(d.blocks, frame)
	d.mu.Unlock()
}

// PopBlock pops the most recently pushed block and re-examines anything
// that queued behind it.
func (d *Dispatcher) PopBlock() {
	d.mu.Lock()
	if len(d.blocks) > 0 {
		d.blocks = d.blocks[:len(d.blocks)-1]
	}
	d.mu.Unlock()
	d.drainBlocked()
}

func (d *Dispatcher) blockedLocked(k Kind) bool {
	for _, f := range d.blocks {
		if f.suppresses(k) {
			return true
		}
	}
	return false
}

// Fire delivers ev, or queues it, per spec §4.C "fire". Signal events
// arriving from a real OS signal must use NotifyOSSignal instead; Fire is
// the normal-context entrypoint used by mainline code (synchronous
// variable-mutation events, re-raised signals inside a test, etc.).
func (d *Dispatcher) Fire(ev Event) {
	d.mu.Lock()
	reentrant := ev.Kind == KindSignal && d.isEvent > 0
	blocked := d.blockedLocked(ev.Kind)
	if reentrant || blocked {
		d.blocked = append(d.blocked, ev)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.drainSignalBuffer()
	d.deliver(ev)
}

// NotifyOSSignal is the signal-handler-context fast path (spec §4.C:
// "append the signal number to an active side-buffer and return"). It
// must not allocate beyond the fixed sigBuffer slots and must not block;
// it is called from the dedicated goroutine os/signal feeds, which is
// this module's analogue of a C signal-handler context (see the package
// doc comment on why Go doesn't need async-signal-safety here).
func (d *Dispatcher) NotifyOSSignal(sig int) {
	d.sig.push(sig)
}

func (d *Dispatcher) drainSignalBuffer() {
	sigs, overflowed := d.sig.drain()
	if overflowed {
		d.logger.Warn("event: signal queue overflow, some signals were dropped")
	}
	for _, s := range sigs {
		ev := Event{Descriptor: Descriptor{Kind: KindSignal, Signal: s}}
		d.mu.Lock()
		reentrant := d.isEvent > 0
		blocked := d.blockedLocked(KindSignal)
		if reentrant || blocked {
			d.blocked = append(d.blocked, ev)
			d.mu.Unlock()
			continue
		}
		d.mu.Unlock()
		d.deliver(ev)
	}
}

// deliver matches and synchronously runs handlers for ev (spec §4.C
// "Delivery").
func (d *Dispatcher) deliver(ev Event) {
	d.mu.Lock()
	if d.isEvent == 0 {
		d.sweepKillListLocked()
	}
	d.isEvent++

	var matched []Descriptor
	for _, h := range d.handlers {
		if h.killed {
			continue
		}
		if h.desc.Matches(ev) {
			matched = append(matched, h.desc)
		}
	}
	d.mu.Unlock()

	for _, desc := range matched {
		cmdline := buildCommandLine(desc.HandlerName, ev.Args)
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("event: handler panicked, status discarded", "handler", desc.HandlerName, "recover", r)
				}
			}()
			if d.exec != nil {
				_ = d.exec(desc.HandlerName, ev.Args)
			}
			d.logger.Debug("event: delivered", "handler", desc.HandlerName, "cmdline", cmdline, "kind", ev.Kind.String())
		}()
	}

	d.mu.Lock()
	d.isEvent--
	if d.isEvent == 0 {
		d.sweepKillListLocked()
	}
	d.mu.Unlock()

	if d.isEvent == 0 {
		d.drainBlocked()
	}
}

func (d *Dispatcher) sweepKillListLocked() {
	if len(d.killList) == 0 {
		return
	}
	killed := make(map[*handler]bool, len(d.killList))
	for _, h := range d.killList {
		killed[h] = true
	}
	live := d.handlers[:0]
	for _, h := range d.handlers {
		if !killed[h] {
			live = append(live, h)
		}
	}
	d.handlers = live
	d.killList = nil
}

func (d *Dispatcher) drainBlocked() {
	for {
		d.mu.Lock()
		if len(d.blocked) == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.blocked[0]
		d.blocked = d.blocked[1:]
		stillBlocked := d.blockedLocked(ev.Kind)
		d.mu.Unlock()

		if stillBlocked {
			d.mu.Lock()
			d.blocked = append(d.blocked, ev)
			d.mu.Unlock()
			return
		}
		d.deliver(ev)
	}
}

// installSignal starts a goroutine forwarding OS deliveries of sig into
// the dispatcher's fast-path side buffer.
func (d *Dispatcher) installSignal(sig int) {
	d.mu.Lock()
	if d.installed[sig] != nil {
		d.mu.Unlock()
		return
	}
	ch := make(chan os.Signal, sigBufferCapacity)
	stop := make(chan struct{})
	d.installed[sig] = ch
	d.stopSig[sig] = stop
	d.mu.Unlock()

	signal.Notify(ch, syscall.Signal(sig))
	go func() {
		for {
			select {
			case <-ch:
				d.NotifyOSSignal(sig)
			case <-stop:
				return
			}
		}
	}()
}

func (d *Dispatcher) uninstallSignal(sig int) {
	d.mu.Lock()
	ch, ok := d.installed[sig]
	stop := d.stopSig[sig]
	if ok {
		delete(d.installed, sig)
		delete(d.stopSig, sig)
	}
	d.mu.Unlock()

	if ok {
		signal.Stop(ch)
		close(stop)
	}
}
