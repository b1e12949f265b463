package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/go-reflow/reflow/cmd/reflow/internal/scenario"
	"github.com/go-reflow/reflow/pkg/rttest"
)

func init() {
	RegisterCommand(&Command{
		Name:  "inspect",
		Short: "Replay a scenario, printing the composition tree",
		Long: `Inspect loads a scenario file, runs it to completion, and prints
the resulting composition tree and batch counters as YAML.`,
		Usage: "reflow inspect <scenario.yaml>",
		Run:   runInspect,
	})
}

func runInspect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("scenario file required")
	}

	s, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	target := rttest.NewRecordingTarget()
	rt, runErr := s.Run(target)
	if rt == nil {
		return runErr
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "scenario failed: %v\n", runErr)
	}

	out, err := yaml.Marshal(rt.Snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	os.Stdout.Write(out)
	return runErr
}
