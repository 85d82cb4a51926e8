package event

import "sync"

// sigBufferCapacity is the default per-buffer slot count (spec §4.C:
// "two parallel buffers of bounded size (default 64 slots each)").
const sigBufferCapacity = 64

// sigBuffer is the double-buffered signal-number queue: a writer side
// ("active") and a drain side ("draining"), flipped atomically so a
// drain never observes a half-written buffer.
type sigBuffer struct {
	mu       sync.Mutex
	bufs     [2][]int
	active   int // index into bufs currently accepting appends
	overflow bool
}

func newSigBuffer() *sigBuffer {
	return &sigBuffer{
		bufs: [2][]int{
			make([]int, 0, sigBufferCapacity),
			make([]int, 0, sigBufferCapacity),
		},
	}
}

// push appends a signal number to the active buffer. If the active
// buffer is full, the signal is dropped and the overflow flag is set
// (spec §4.C: "signals beyond the limit are counted as dropped").
func (b *sigBuffer) push(sig int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.bufs[b.active]
	if len(cur) >= sigBufferCapacity {
		b.overflow = true
		return
	}
	b.bufs[b.active] = append(cur, sig)
}

// drain flips the active buffer and returns the previously-active
// buffer's contents plus whether an overflow occurred since the last
// drain. The returned slice is owned by the caller.
func (b *sigBuffer) drain() (sigs []int, overflowed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.active
	b.active = 1 - b.active

	sigs = b.bufs[drained]
	b.bufs[drained] = make([]int, 0, sigBufferCapacity)

	overflowed = b.overflow
	b.overflow = false
	return sigs, overflowed
}
