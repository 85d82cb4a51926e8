package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rivershell/corefish/internal/event"
)

var (
	eventKindFlag  string
	eventNameFlag  string
	eventArgsFlag  string
	eventBlockFlag bool
)

var eventCmd = &cobra.Command{
	Use:     "event",
	Short:   "Register a demonstration handler and fire an event through it",
	GroupID: groupCore,
	Args:    cobra.NoArgs,
	Long: `Exercise the event dispatcher (spec §4.C) end to end within one
process: registers a "demo" handler for the requested descriptor, fires a
matching event, and reports how many handler invocations were delivered.

With --block, the fire happens inside a pushed event block for the same
kind, so the event is queued instead of delivered; the block is then
popped to show the queued event draining.

Examples:
  corefish event --name MY_VAR --kind variable
  corefish event --kind generic --name deploy --args staging,us-east
  corefish event --kind generic --name deploy --block`,
	RunE: runEvent,
}

func init() {
	eventCmd.Flags().StringVar(&eventKindFlag, "kind", "generic", "event kind: any, signal, variable, exit, job-id, generic")
	eventCmd.Flags().StringVar(&eventNameFlag, "name", "demo", "event/variable/generic name")
	eventCmd.Flags().StringVar(&eventArgsFlag, "args", "", "comma-separated argument list passed to the handler")
	eventCmd.Flags().BoolVar(&eventBlockFlag, "block", false, "fire inside a pushed event block, then pop it to drain")
}

func parseEventKind(s string) (event.Kind, error) {
	switch strings.ToLower(s) {
	case "any":
		return event.KindAny, nil
	case "signal":
		return event.KindSignal, nil
	case "variable":
		return event.KindVariable, nil
	case "exit":
		return event.KindExit, nil
	case "job-id", "jobid":
		return event.KindJobID, nil
	case "generic":
		return event.KindGeneric, nil
	default:
		return event.KindAny, fmt.Errorf("unknown event kind %q", s)
	}
}

func runEvent(cmd *cobra.Command, args []string) error {
	kind, err := parseEventKind(eventKindFlag)
	if err != nil {
		return err
	}

	var invocations int
	dispatcher := event.New(func(handlerName string, handlerArgs []string) int {
		invocations++
		fmt.Printf("handler %q invoked with args %v\n", handlerName, handlerArgs)
		return 0
	}, nil)

	desc := event.Descriptor{Kind: kind, Name: eventNameFlag}
	dispatcher.Register(desc, "demo")

	var evArgs []string
	if eventArgsFlag != "" {
		evArgs = strings.Split(eventArgsFlag, ",")
	}
	ev := event.Event{Descriptor: desc, Args: evArgs}

	if eventBlockFlag {
		dispatcher.PushBlock(kind)
		dispatcher.Fire(ev)
		fmt.Println("event queued: blocked delivery")
		dispatcher.PopBlock()
	} else {
		dispatcher.Fire(ev)
	}

	fmt.Printf("%d handler invocation(s) delivered\n", invocations)
	return nil
}
