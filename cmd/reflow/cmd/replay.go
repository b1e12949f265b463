package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-reflow/reflow/cmd/reflow/internal/scenario"
	"github.com/go-reflow/reflow/pkg/rttest"
	"github.com/go-reflow/reflow/pkg/runtime"
)

func init() {
	RegisterCommand(&Command{
		Name:  "replay",
		Short: "Replay a scenario, printing the command stream",
		Long: `Replay loads a scenario file, mounts its root unit against a
recording target, applies the scripted writes, and prints every command
the engine emitted.

A scenario file defines the initial state, the unit view templates, the
root unit, and an ordered list of writes:

  state:
    count: 0
  units:
    counter:
      type: div
      children:
        - text: {bind: count}
  root: counter
  writes:
    - path: count
      value: 1`,
		Usage: "reflow replay [--skip-equal] <scenario.yaml>",
		Run:   runReplay,
	})
}

func runReplay(args []string) error {
	file, opts, err := replayArgs(args)
	if err != nil {
		return err
	}

	s, err := scenario.Load(file)
	if err != nil {
		return err
	}

	target := rttest.NewRecordingTarget()
	if _, err := s.Run(target, opts...); err != nil {
		// Commands flushed before the failure are still worth showing.
		printCommands(target.Commands())
		return err
	}

	printCommands(target.Commands())
	for _, v := range target.Violations() {
		fmt.Fprintf(os.Stderr, "violation: %s\n", v)
	}
	return nil
}

func replayArgs(args []string) (string, []runtime.Option, error) {
	var file string
	var opts []runtime.Option
	for _, arg := range args {
		switch {
		case arg == "--skip-equal":
			opts = append(opts, runtime.WithSkipEqualWrites())
		case strings.HasPrefix(arg, "-"):
			return "", nil, fmt.Errorf("unknown flag %q", arg)
		case file != "":
			return "", nil, fmt.Errorf("expected exactly one scenario file")
		default:
			file = arg
		}
	}
	if file == "" {
		return "", nil, fmt.Errorf("scenario file required")
	}
	return file, opts, nil
}

func printCommands(cmds []rttest.Command) {
	for _, c := range cmds {
		var b strings.Builder
		fmt.Fprintf(&b, "%-8s", c.Op)
		if c.Node != "" {
			fmt.Fprintf(&b, " %s", c.Node)
		}
		if c.Type != "" {
			fmt.Fprintf(&b, " type=%s", c.Type)
		}
		if c.Parent != "" {
			fmt.Fprintf(&b, " parent=%s index=%d", c.Parent, c.Index)
		}
		if c.Attr != "" {
			fmt.Fprintf(&b, " %s=%v", c.Attr, c.Value)
		} else if c.Op == "create" && c.Value != nil {
			fmt.Fprintf(&b, " attrs=%v", c.Value)
		}
		if c.Op == "setText" {
			fmt.Fprintf(&b, " %q", c.Text)
		}
		fmt.Println(b.String())
	}
}
