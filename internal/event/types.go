// Package event implements the event dispatcher of spec §4.C: handler
// registration with deferred (kill-list) removal, signal-deferred
// delivery, and event-block suppression.
//
// Go's os/signal package already delivers OS signals onto an ordinary
// goroutine rather than true async-signal-handler context (no allocation
// or libc restrictions apply there), so the double-buffered ring the
// spec describes for C-level signal-handler safety is not load-bearing
// for memory safety here. It is still implemented (sigBuffer, below)
// because the dispatcher's ordering and overflow guarantees (spec
// invariant 13, scenario S4) are part of its observable contract, not
// just an implementation detail of the original C code.
package event

import "fmt"

// Kind tags the five event discriminator shapes of spec §3.
type Kind int

const (
	KindAny Kind = iota
	KindSignal
	KindVariable
	KindExit
	KindJobID
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindSignal:
		return "signal"
	case KindVariable:
		return "variable"
	case KindExit:
		return "exit"
	case KindJobID:
		return "job-id"
	case KindGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// Wildcard sentinels (spec §3/§4.C: "any-signal", "any-pid" wildcards).
const (
	AnySignal = -1
	AnyPid    = -1
)

// Descriptor is a tagged record identifying an event kind and its
// kind-specific discriminator (spec §3 "Event descriptor").
type Descriptor struct {
	Kind Kind

	Signal int    // valid when Kind == KindSignal; AnySignal matches all
	Name   string // valid when Kind == KindVariable or KindGeneric
	Pid    int    // valid when Kind == KindExit; AnyPid matches all
	JobID  int    // valid when Kind == KindJobID

	// HandlerName is the registered handler's command name. Empty, when
	// used as an unregister criterion, wildcards the handler name.
	HandlerName string
}

func (d Descriptor) String() string {
	switch d.Kind {
	case KindSignal:
		return fmt.Sprintf("signal(%d)", d.Signal)
	case KindVariable:
		return fmt.Sprintf("variable(%s)", d.Name)
	case KindExit:
		return fmt.Sprintf("exit(%d)", d.Pid)
	case KindJobID:
		return fmt.Sprintf("job-id(%d)", d.JobID)
	case KindGeneric:
		return fmt.Sprintf("generic(%s)", d.Name)
	default:
		return "any"
	}
}

// Event is a fired instance of a Descriptor carrying its argument list
// (spec §3: "an argument list (for fired events)").
type Event struct {
	Descriptor
	Args []string
}

// handler is a registered entry; killed handlers are tombstoned in place
// and swept at a delivery boundary (spec §4.C "kill list").
type handler struct {
	desc    Descriptor
	killed  bool
}

// Matches implements the delivery match rule of spec §4.C: a registered
// descriptor matches a fired event when (i) D.kind == any OR E.kind ==
// D.kind, and (ii) the kind-specific discriminator matches. A
// registration's HandlerName names which handler to invoke; it is not a
// filter on the fired event (events don't target a handler by name —
// see matchesRegistration for the separate handler-name-filtered rule
// Unregister uses).
func (d Descriptor) Matches(e Event) bool {
	if d.Kind != KindAny && d.Kind != e.Kind {
		return false
	}
	switch d.Kind {
	case KindSignal:
		return d.Signal == AnySignal || d.Signal == e.Signal
	case KindVariable, KindGeneric:
		return d.Name == e.Name
	case KindExit:
		return d.Pid == AnyPid || d.Pid == e.Pid
	case KindJobID:
		return d.JobID == e.JobID
	default:
		return true
	}
}

// matchesRegistration is used by Unregister: a registration matches an
// unregister criterion using the same rule, but against the registered
// descriptor+handler name rather than a fired Event.
func (d Descriptor) matchesRegistration(h handler) bool {
	if d.HandlerName != "" && d.HandlerName != h.desc.HandlerName {
		return false
	}
	if d.Kind != KindAny && d.Kind != h.desc.Kind {
		return false
	}
	switch d.Kind {
	case KindSignal:
		return d.Signal == AnySignal || d.Signal == h.desc.Signal
	case KindVariable, KindGeneric:
		return d.Name == h.desc.Name
	case KindExit:
		return d.Pid == AnyPid || d.Pid == h.desc.Pid
	case KindJobID:
		return d.JobID == h.desc.JobID
	default:
		return true
	}
}
