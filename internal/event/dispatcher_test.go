package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	handler string
	args    []string
}

func newRecordingDispatcher() (*Dispatcher, *[]call, *sync.Mutex) {
	var mu sync.Mutex
	var calls []call
	d := New(func(handlerName string, args []string) int {
		mu.Lock()
		calls = append(calls, call{handlerName, append([]string(nil), args...)})
		mu.Unlock()
		return 0
	}, nil)
	return d, &calls, &mu
}

func TestRegisterFireDelivers(t *testing.T) {
	d, calls, mu := newRecordingDispatcher()

	d.Register(Descriptor{Kind: KindVariable, Name: "PWD"}, "my_handler")
	d.Fire(Event{Descriptor: Descriptor{Kind: KindVariable, Name: "PWD"}, Args: []string{"VARIABLE", "SET", "PWD"}})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *calls, 1)
	assert.Equal(t, "my_handler", (*calls)[0].handler)
	assert.Equal(t, []string{"VARIABLE", "SET", "PWD"}, (*calls)[0].args)
}

func TestFireDoesNotMatchWrongName(t *testing.T) {
	d, calls, mu := newRecordingDispatcher()
	d.Register(Descriptor{Kind: KindVariable, Name: "PWD"}, "h")
	d.Fire(Event{Descriptor: Descriptor{Kind: KindVariable, Name: "HOME"}, Args: []string{"VARIABLE", "SET", "HOME"}})
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *calls)
}

func TestUnregisterDeferredDuringDelivery(t *testing.T) {
	d := New(nil, nil)
	var selfUnregistered bool

	d.exec = func(handlerName string, args []string) int {
		// Handler unregisters itself mid-delivery (invariant 12).
		d.Unregister(Descriptor{Kind: KindGeneric, Name: "evt", HandlerName: handlerName})
		selfUnregistered = true
		return 0
	}
	d.Register(Descriptor{Kind: KindGeneric, Name: "evt"}, "h")

	d.Fire(Event{Descriptor: Descriptor{Kind: KindGeneric, Name: "evt"}})
	assert.True(t, selfUnregistered)

	// Handler list should be empty after the delivery boundary swept the kill list.
	d.mu.Lock()
	n := len(d.handlers)
	d.mu.Unlock()
	assert.Equal(t, 0, n)

	// A second fire does not invoke it again.
	calls := 0
	d.exec = func(string, []string) int { calls++; return 0 }
	d.Fire(Event{Descriptor: Descriptor{Kind: KindGeneric, Name: "evt"}})
	assert.Equal(t, 0, calls)
}

func TestSignalFIFOAfterReentrantRaise(t *testing.T) {
	d, calls, mu := newRecordingDispatcher()

	const sigUSR1 = 30
	raises := 0
	d.exec = func(handlerName string, args []string) int {
		mu.Lock()
		*calls = append(*calls, call{handlerName, nil})
		mu.Unlock()
		if raises < 3 {
			raises++
			// Re-raise while still inside delivery: must defer, not recurse.
			d.Fire(Event{Descriptor: Descriptor{Kind: KindSignal, Signal: sigUSR1}})
		}
		return 0
	}
	d.Register(Descriptor{Kind: KindSignal, Signal: sigUSR1}, "h")

	d.Fire(Event{Descriptor: Descriptor{Kind: KindSignal, Signal: sigUSR1}})

	mu.Lock()
	defer mu.Unlock()
	// Original call + 3 deferred re-raises, delivered in order, no recursion crash.
	assert.Len(t, *calls, 4)
}

func TestEventBlockQueuesThenDrainsOnPop(t *testing.T) {
	d, calls, mu := newRecordingDispatcher()
	d.Register(Descriptor{Kind: KindGeneric, Name: "evt"}, "h")

	d.PushBlock(KindGeneric)
	d.Fire(Event{Descriptor: Descriptor{Kind: KindGeneric, Name: "evt"}})

	mu.Lock()
	assert.Empty(t, *calls)
	mu.Unlock()

	d.PopBlock()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, *calls, 1)
}

func TestNotifyOSSignalBuffersUntilDrainedByFire(t *testing.T) {
	d, calls, mu := newRecordingDispatcher()
	d.Register(Descriptor{Kind: KindSignal, Signal: 10}, "h")

	d.NotifyOSSignal(10)
	d.NotifyOSSignal(10)

	mu.Lock()
	assert.Empty(t, *calls)
	mu.Unlock()

	// Any ordinary Fire drains the pending signal buffer first.
	d.Fire(Event{Descriptor: Descriptor{Kind: KindGeneric, Name: "unrelated"}})

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, *calls, 2)
}

func TestSignalBufferOverflowDropsTailAndWarns(t *testing.T) {
	b := newSigBuffer()
	for i := 0; i < sigBufferCapacity+5; i++ {
		b.push(i)
	}
	sigs, overflowed := b.drain()
	assert.Len(t, sigs, sigBufferCapacity)
	assert.True(t, overflowed)
}

func TestBuildCommandLineEscapesArgs(t *testing.T) {
	cmd := buildCommandLine("h", []string{"a b", "it's", "plain"})
	assert.Equal(t, `h 'a b' 'it'\''s' plain`, cmd)
}

func TestDescriptorMatchesAnyKindWildcard(t *testing.T) {
	d := Descriptor{Kind: KindAny, HandlerName: "h"}
	ev := Event{Descriptor: Descriptor{Kind: KindExit, Pid: 5, HandlerName: "h"}}
	assert.True(t, d.Matches(ev))
}

func TestUnregisterWildcardsEmptyHandlerName(t *testing.T) {
	d, calls, mu := newRecordingDispatcher()
	d.Register(Descriptor{Kind: KindSignal, Signal: 2}, "h1")
	d.Register(Descriptor{Kind: KindSignal, Signal: 2}, "h2")

	d.Unregister(Descriptor{Kind: KindSignal, Signal: 2})

	d.Fire(Event{Descriptor: Descriptor{Kind: KindSignal, Signal: 2}})
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, *calls)
}

func TestDrainBlockedIsFIFO(t *testing.T) {
	d, calls, mu := newRecordingDispatcher()
	d.Register(Descriptor{Kind: KindGeneric, Name: "a"}, "ha")
	d.Register(Descriptor{Kind: KindGeneric, Name: "b"}, "hb")

	d.PushBlock() // block everything
	d.Fire(Event{Descriptor: Descriptor{Kind: KindGeneric, Name: "a"}})
	d.Fire(Event{Descriptor: Descriptor{Kind: KindGeneric, Name: "b"}})
	d.PopBlock()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, *calls, 2)
	assert.Equal(t, "ha", (*calls)[0].handler)
	assert.Equal(t, "hb", (*calls)[1].handler)
}

func TestRealOSSignalRoundTrip(t *testing.T) {
	// Smoke-tests installSignal/uninstallSignal wiring without asserting
	// timing-sensitive delivery of an actual OS signal.
	d := New(func(string, []string) int { return 0 }, nil)
	d.Register(Descriptor{Kind: KindSignal, Signal: 10}, "h")
	time.Sleep(time.Millisecond)
	d.Unregister(Descriptor{Kind: KindSignal, Signal: 10, HandlerName: "h"})
}
