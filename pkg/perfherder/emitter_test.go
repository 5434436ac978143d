package perfherder

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func envWith(value string) func(string) string {
	return func(key string) string {
		if key == AutomationEnv {
			return value
		}
		return ""
	}
}

func TestEmitter_Enabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"", false},
		{"0", false},
		{"true", false},
		{" 1", false},
	}

	for _, tt := range tests {
		t.Run("value="+tt.value, func(t *testing.T) {
			e := &Emitter{Getenv: envWith(tt.value)}
			if got := e.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmitter_DisabledWritesNothing(t *testing.T) {
	buf := &bytes.Buffer{}
	e := &Emitter{Output: buf, Getenv: envWith("")}

	if err := e.Emit(Measurements{"bugbug_push_schedules_time": 1.5}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestEmitter_EnabledWritesOneLine(t *testing.T) {
	buf := &bytes.Buffer{}
	e := &Emitter{Output: buf, Getenv: envWith("1")}

	err := e.Emit(Measurements{
		"bugbug_push_schedules_time":    12.5,
		"bugbug_push_schedules_retries": 3,
	})
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	output := buf.String()
	if strings.Count(output, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", output)
	}
	if !strings.HasPrefix(output, Marker) {
		t.Fatalf("line does not start with marker: %q", output)
	}

	var data Data
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(output), Marker)), &data); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}

	if data.Framework.Name != "build_metrics" {
		t.Errorf("framework = %q, want build_metrics", data.Framework.Name)
	}
	if len(data.Suites) != 2 {
		t.Fatalf("suites = %d, want 2", len(data.Suites))
	}

	// Sorted by name.
	if data.Suites[0].Name != "bugbug_push_schedules_retries" || data.Suites[0].Value != 3 {
		t.Errorf("suites[0] = %+v", data.Suites[0])
	}
	if data.Suites[1].Name != "bugbug_push_schedules_time" || data.Suites[1].Value != 12.5 {
		t.Errorf("suites[1] = %+v", data.Suites[1])
	}
	for _, s := range data.Suites {
		if !s.LowerIsBetter {
			t.Errorf("suite %s: lowerIsBetter = false", s.Name)
		}
		if s.ShouldAlert {
			t.Errorf("suite %s: shouldAlert = true", s.Name)
		}
	}
}

func TestEmitter_SubtestsSerializeAsEmptyList(t *testing.T) {
	buf := &bytes.Buffer{}
	e := &Emitter{Output: buf, Getenv: envWith("1")}

	if err := e.Emit(Measurements{"x": 1}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"subtests":[]`) {
		t.Errorf("expected empty subtests list, got %q", buf.String())
	}
}

func TestEmitter_NonFiniteValue(t *testing.T) {
	buf := &bytes.Buffer{}
	e := &Emitter{Output: buf, Getenv: envWith("1")}

	if err := e.Emit(Measurements{"x": math.NaN()}); err == nil {
		t.Error("expected error for NaN value")
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output on error, got %q", buf.String())
	}
}

func TestBuild_Empty(t *testing.T) {
	data, err := Build(nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if data.Suites == nil || len(data.Suites) != 0 {
		t.Errorf("Suites = %v, want empty non-nil slice", data.Suites)
	}
}
