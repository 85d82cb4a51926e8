package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rivershell/corefish/internal/event"
)

func TestParseEventKind(t *testing.T) {
	cases := map[string]event.Kind{
		"any":      event.KindAny,
		"signal":   event.KindSignal,
		"variable": event.KindVariable,
		"exit":     event.KindExit,
		"job-id":   event.KindJobID,
		"jobid":    event.KindJobID,
		"generic":  event.KindGeneric,
		"GENERIC":  event.KindGeneric,
	}
	for in, want := range cases {
		got, err := parseEventKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := parseEventKind("bogus")
	assert.Error(t, err)
}

func TestEventCmd_RunsWithDefaults(t *testing.T) {
	eventKindFlag, eventNameFlag, eventArgsFlag, eventBlockFlag = "generic", "demo", "a,b", false
	t.Cleanup(func() { eventKindFlag, eventNameFlag, eventArgsFlag, eventBlockFlag = "generic", "demo", "", false })

	require.NoError(t, runEvent(eventCmd, nil))
}

func TestEventCmd_BlockedFireStillReportsQueued(t *testing.T) {
	eventKindFlag, eventNameFlag, eventArgsFlag, eventBlockFlag = "generic", "demo", "", true
	t.Cleanup(func() { eventKindFlag, eventNameFlag, eventArgsFlag, eventBlockFlag = "generic", "demo", "", false })

	require.NoError(t, runEvent(eventCmd, nil))
}
