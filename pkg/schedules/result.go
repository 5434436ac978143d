package schedules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Sternrassler/bugbug-client/pkg/cache"
)

// Preset confidence thresholds. Callers use them to decide which groups to
// act on; Fetch never filters.
const (
	ConfidenceLow    = 0.7
	ConfidenceMedium = 0.8
	ConfidenceHigh   = 0.9
)

// ParseConfidence maps a threshold name (low, medium, high) to its value.
func ParseConfidence(name string) (float64, error) {
	switch strings.ToLower(name) {
	case "low":
		return ConfidenceLow, nil
	case "medium":
		return ConfidenceMedium, nil
	case "high":
		return ConfidenceHigh, nil
	default:
		return 0, fmt.Errorf("unknown confidence threshold %q (want low, medium or high)", name)
	}
}

// Query identifies the schedules of one push.
type Query struct {
	Branch   string
	Revision string
}

// Path returns the bugbug resource path of the query.
func (q Query) Path() string {
	return fmt.Sprintf("/push/%s/%s/schedules", q.Branch, q.Revision)
}

// Key returns the memo key of the query.
func (q Query) Key() cache.Key {
	return cache.Key{Branch: q.Branch, Revision: q.Revision}
}

// Field is a top-level response member other than "groups".
type Field struct {
	Key   string
	Value json.RawMessage
}

// Result is a bugbug schedules document.
//
// Groups is nil when the response had no "groups" member. Every other
// member is kept verbatim in Extra, in response order.
type Result struct {
	Groups map[string]json.RawMessage
	Extra  []Field
}

// HasGroups reports whether the response carried a "groups" member.
func (r *Result) HasGroups() bool {
	return r.Groups != nil
}

// Confidence returns the numeric value bugbug associated with group.
// ok is false if the group is absent or its value is not a number.
func (r *Result) Confidence(group string) (value float64, ok bool) {
	raw, found := r.Groups[group]
	if !found {
		return 0, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}
	return value, true
}

// GroupsAbove returns the sorted names of groups whose confidence is at
// least threshold.
func (r *Result) GroupsAbove(threshold float64) []string {
	names := make([]string, 0, len(r.Groups))
	for name := range r.Groups {
		if v, ok := r.Confidence(name); ok && v >= threshold {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Get returns the raw value of a top-level member other than "groups".
func (r *Result) Get(key string) (json.RawMessage, bool) {
	for _, f := range r.Extra {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	out := &Result{}
	if r.Groups != nil {
		out.Groups = make(map[string]json.RawMessage, len(r.Groups))
		for k, v := range r.Groups {
			out.Groups[k] = append(json.RawMessage(nil), v...)
		}
	}
	if r.Extra != nil {
		out.Extra = make([]Field, len(r.Extra))
		for i, f := range r.Extra {
			out.Extra[i] = Field{Key: f.Key, Value: append(json.RawMessage(nil), f.Value...)}
		}
	}
	return out
}

// UnmarshalJSON decodes a bugbug response object.
func (r *Result) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidResponse)
	}

	var out Result
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: member %q: %v", ErrInvalidResponse, key, err)
		}

		if key == "groups" {
			if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
				return fmt.Errorf("%w: groups is not an object", ErrInvalidResponse)
			}
			groups := make(map[string]json.RawMessage)
			if err := json.Unmarshal(raw, &groups); err != nil {
				return fmt.Errorf("%w: groups: %v", ErrInvalidResponse, err)
			}
			for name, value := range groups {
				groups[name] = compact(value)
			}
			out.Groups = groups
			continue
		}
		out.Extra = append(out.Extra, Field{Key: key, Value: compact(raw)})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	*r = out
	return nil
}

// MarshalJSON encodes the result with "groups" first, followed by the
// other members in their original order.
func (r Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	writeMember := func(key string, value []byte) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if len(value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(value)
		}
		return nil
	}

	if r.Groups != nil {
		groups, err := json.Marshal(r.Groups)
		if err != nil {
			return nil, fmt.Errorf("marshal groups: %w", err)
		}
		if err := writeMember("groups", groups); err != nil {
			return nil, err
		}
	}
	for _, f := range r.Extra {
		if err := writeMember(f.Key, f.Value); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// compact strips insignificant whitespace so decoded and re-encoded
// results compare equal.
func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
