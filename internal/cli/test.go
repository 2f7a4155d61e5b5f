package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drewdru/ponyTown-sub010/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite golden transcripts instead of comparing
	Filter string // glob matched against scenario file names
}

// GoldenState says what happened to a scenario's golden transcript.
type GoldenState string

const (
	GoldenMatched GoldenState = "matched"
	GoldenUpdated GoldenState = "updated"
	GoldenMissing GoldenState = "missing"
)

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string      `json:"name"`
	Pass   bool        `json:"pass"`
	Golden GoldenState `json:"golden,omitempty"`
	Errors []string    `json:"errors,omitempty"`
}

func (r *ScenarioResult) fail(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// TestResult is the outcome of a test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r *TestResult) add(sr ScenarioResult) {
	r.Scenarios = append(r.Scenarios, sr)
	r.Total++
	if sr.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// WriteText implements TextWriter.
func (r TestResult) WriteText(w io.Writer) error {
	if r.Total == 0 {
		_, err := fmt.Fprintln(w, "No scenarios found.")
		return err
	}
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		suffix := ""
		if s.Golden == GoldenUpdated {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "%s %s%s\n", mark, s.Name, suffix)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	_, err := fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	return err
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run replica conformance scenarios",
		Long: `Run conformance scenarios against an in-memory replica.

Each scenario file drives a fresh replica and checks its assertions. When
<scenarios-dir>/golden/<name>.golden exists, the scenario transcript must
match it as well.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  ponyreplica test ./scenarios
  ponyreplica test ./scenarios --filter "orphan_*"
  ponyreplica test ./scenarios --update
  ponyreplica test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, "scenarios directory not found: "+dir)
	}
	if _, err := filepath.Match(opts.Filter, ""); err != nil {
		return WrapExitError(ExitCommandError, "invalid filter pattern", err)
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files))}
	for _, file := range files {
		result.add(runScenario(file, opts.Update))
	}

	f := opts.formatter(cmd)
	if result.Failed == 0 {
		return f.Success(result)
	}
	if !f.json() {
		if err := result.WriteText(f.Writer); err != nil {
			return err
		}
	}
	return f.Fail(ExitFailure, ErrCodeTestFailed, fmt.Sprintf("%d scenario(s) failed", result.Failed), nil, result)
}

// scenarioName is the file name without its extension.
func scenarioName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// findScenarioFiles returns the YAML files under dir whose name matches
// filter, in lexical order. Golden directories are not descended into.
func findScenarioFiles(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && path != dir && d.Name() == "golden":
			return filepath.SkipDir
		case d.IsDir():
			return nil
		}
		if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, scenarioName(path)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// runScenario runs one scenario file and checks its transcript against
// <dir>/golden/<name>.golden. A missing golden file is not a failure.
func runScenario(file string, update bool) ScenarioResult {
	sr := ScenarioResult{Name: scenarioName(file)}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		sr.fail("failed to load scenario: %v", err)
		return sr
	}
	sr.Name = scenario.Name

	result, err := harness.Run(scenario)
	if err != nil {
		sr.fail("execution failed: %v", err)
		return sr
	}
	sr.Pass = result.Pass
	sr.Errors = result.Errors

	golden := filepath.Join(filepath.Dir(file), "golden", scenarioName(file)+".golden")
	checkGolden(&sr, golden, result.Transcript(), update)
	return sr
}

func checkGolden(sr *ScenarioResult, path, transcript string, update bool) {
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			sr.fail("failed to create golden directory: %v", err)
			return
		}
		if err := os.WriteFile(path, []byte(transcript), 0644); err != nil {
			sr.fail("failed to update golden file: %v", err)
			return
		}
		sr.Golden = GoldenUpdated
		return
	}

	want, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		sr.Golden = GoldenMissing
	case err != nil:
		sr.fail("failed to read golden file: %v", err)
	case string(want) != transcript:
		sr.fail("transcript does not match golden file (run with --update to regenerate)")
	default:
		sr.Golden = GoldenMatched
	}
}
