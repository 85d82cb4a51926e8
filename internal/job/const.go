package job

import "time"

// DefaultBufferSize is the default LimitedBuffer capacity for a process's
// captured pipe output.
const DefaultBufferSize = 4096

// selectPollInterval is the foreground-wait loop's pipe-buffer poll
// timeout (spec §4.D: "alternating select on pipe-buffer file descriptors
// (with a 10 ms timeout) with blocking waitpid").
const selectPollInterval = 10 * time.Millisecond
