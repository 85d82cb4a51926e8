// Package universal implements the "cooperating background process"
// spec §3/§4.A/§6 call the universal-variable helper: a process-external
// keyed store that propagates SET/SET_EXPORT/ERASE notifications to every
// connected session, so a universal variable set in one session becomes
// visible in all others.
//
// The core's view of this helper (a shadow copy plus a "barrier passed"
// flag, spec §3 "Universal variable table") lives in
// internal/variable.Store.OnUniversalNotification/SetBarrierPassed; this
// package is the helper side spec.md treats as an external collaborator
// but that corefish needs a concrete implementation of to be runnable.
//
// Grounded on the teacher's internal/storage.SQLiteStore (WAL-pragma-in-
// DSN, single-writer connection pool, background-checkpoint-goroutine
// pattern) for durability, and internal/ipc's Unix-domain-socket dialing
// conventions for transport -- adapted from the teacher's gRPC framing
// (dropped; see DESIGN.md) to a YAML envelope, one document per message,
// each terminated by a "---" line, matching
// gopkg.in/yaml.v3's role elsewhere in this module as the wire/document
// format of choice.
package universal

import (
	"bufio"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind tags a universal-variable notification (spec §6 "Universal
// helper": "Message types observed by the core: SET, SET_EXPORT, ERASE").
type Kind string

const (
	KindSet       Kind = "SET"
	KindSetExport Kind = "SET_EXPORT"
	KindErase     Kind = "ERASE"
	// kindBarrier is not part of spec §6's observed message types; it is
	// this package's own sentinel marking the end of the initial
	// full-table sync a client receives on connect (spec §3 "barrier
	// passed" flag).
	kindBarrier Kind = "__BARRIER__"
)

// Message is one wire envelope exchanged between a client and the
// helper: a notification of a single variable's change, or (client to
// helper) a request to apply one.
type Message struct {
	Kind   Kind     `yaml:"kind"`
	Name   string   `yaml:"name,omitempty"`
	Values []string `yaml:"values,omitempty"`
}

// writeMessage encodes m as a single YAML document terminated by "---\n"
// and writes it to w.
func writeMessage(w *bufio.Writer, m Message) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("universal: encode message: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.WriteString("---\n"); err != nil {
		return err
	}
	return w.Flush()
}

// readMessage decodes the next "---\n"-terminated YAML document from r.
func readMessage(r *bufio.Reader) (Message, error) {
	var buf []byte
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			if string(line) == "---\n" {
				break
			}
			buf = append(buf, line...)
		}
		if err != nil {
			if len(buf) == 0 {
				return Message{}, err
			}
			break
		}
	}
	var m Message
	if err := yaml.Unmarshal(buf, &m); err != nil {
		return Message{}, fmt.Errorf("universal: decode message: %w", err)
	}
	return m, nil
}
