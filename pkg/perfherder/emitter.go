// Package perfherder writes build timing data in the format Perfherder
// ingests from task logs.
//
// Data is only written when running in automation (MOZ_AUTOMATION=1). Each
// call produces a single line:
//
//	PERFHERDER_DATA: {"framework":{"name":"build_metrics"},"suites":[...]}
package perfherder

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

const (
	// Marker prefixes every line so log parsers can find it.
	Marker = "PERFHERDER_DATA: "

	// AutomationEnv enables emission when set to "1".
	AutomationEnv = "MOZ_AUTOMATION"

	// Framework is the Perfherder framework the suites are filed under.
	Framework = "build_metrics"
)

// Measurements maps suite names to values. All of them are reported as
// lower-is-better and never alert.
type Measurements map[string]float64

// Data is the document Perfherder parses.
type Data struct {
	Framework FrameworkInfo `json:"framework"`
	Suites    []Suite       `json:"suites"`
}

// FrameworkInfo names the framework.
type FrameworkInfo struct {
	Name string `json:"name"`
}

// Suite is one reported value.
type Suite struct {
	Name          string    `json:"name"`
	Value         float64   `json:"value"`
	LowerIsBetter bool      `json:"lowerIsBetter"`
	ShouldAlert   bool      `json:"shouldAlert"`
	Subtests      []Subtest `json:"subtests"`
}

// Subtest is never populated for build metrics but must serialize as [].
type Subtest struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Emitter writes Perfherder lines to Output.
type Emitter struct {
	// Output receives the data (default: os.Stderr).
	Output io.Writer

	// Getenv looks up AutomationEnv (default: os.Getenv).
	Getenv func(string) string
}

// New returns an emitter writing to stderr and reading the process
// environment.
func New() *Emitter {
	return &Emitter{Output: os.Stderr, Getenv: os.Getenv}
}

// Enabled reports whether data would be written.
func (e *Emitter) Enabled() bool {
	getenv := e.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return getenv(AutomationEnv) == "1"
}

// Emit writes one Perfherder line for m. It does nothing outside automation.
func (e *Emitter) Emit(m Measurements) error {
	if !e.Enabled() {
		return nil
	}

	data, err := Build(m)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal perfherder data: %w", err)
	}

	out := e.Output
	if out == nil {
		out = os.Stderr
	}
	if _, err := fmt.Fprintf(out, "%s%s\n", Marker, payload); err != nil {
		return fmt.Errorf("write perfherder data: %w", err)
	}
	return nil
}

// Build converts measurements into a Perfherder document. Suites are sorted
// by name so the output is stable.
func Build(m Measurements) (Data, error) {
	names := make([]string, 0, len(m))
	for name, value := range m {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return Data{}, fmt.Errorf("perfherder suite %q: value %v is not finite", name, value)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	suites := make([]Suite, 0, len(names))
	for _, name := range names {
		suites = append(suites, Suite{
			Name:          name,
			Value:         m[name],
			LowerIsBetter: true,
			ShouldAlert:   false,
			Subtests:      []Subtest{},
		})
	}

	return Data{
		Framework: FrameworkInfo{Name: Framework},
		Suites:    suites,
	}, nil
}
