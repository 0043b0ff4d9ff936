package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Flag is a closed set of behavioral markers carried by a placeholder.
type Flag uint8

const (
	// FlagInner marks a placeholder promoted out of a nested trace.
	FlagInner Flag = 1 << iota

	// FlagState marks a placeholder that belongs to a plan's state.
	FlagState

	// FlagInput marks a placeholder bound to a plan argument.
	FlagInput

	// FlagOutput marks a placeholder bound to a plan result.
	FlagOutput
)

// flagLabels fixes the rendering order of flags.
var flagLabels = []struct {
	flag  Flag
	label string
}{
	{FlagInner, "#inner"},
	{FlagState, "#state"},
	{FlagInput, "#input"},
	{FlagOutput, "#output"},
}

// Tags is the full tag set of a placeholder: the flags plus an optional
// sequence index (the "#N" marker). Index 0 means no sequence marker.
type Tags struct {
	Flags Flag
	Index int
}

// NewTags builds a tag set from flags and a sequence index.
func NewTags(index int, flags ...Flag) Tags {
	t := Tags{Index: index}
	for _, f := range flags {
		t.Flags |= f
	}
	return t
}

// Has reports whether every bit of f is set.
func (t Tags) Has(f Flag) bool {
	return t.Flags&f == f
}

// With returns a copy of t with f added.
func (t Tags) With(f Flag) Tags {
	t.Flags |= f
	return t
}

// IsZero reports whether no flag and no index is set.
func (t Tags) IsZero() bool {
	return t.Flags == 0 && t.Index == 0
}

// Strings renders the tag set in a stable order: flags first, index last.
func (t Tags) Strings() []string {
	out := make([]string, 0, len(flagLabels)+1)
	for _, fl := range flagLabels {
		if t.Has(fl.flag) {
			out = append(out, fl.label)
		}
	}
	if t.Index > 0 {
		out = append(out, "#"+strconv.Itoa(t.Index))
	}
	return out
}

// Key joins the rendered tags with "-". Placeholders decoded within one
// session share an instance per key.
func (t Tags) Key() string {
	return strings.Join(t.Strings(), "-")
}

// String implements fmt.Stringer.
func (t Tags) String() string {
	if t.IsZero() {
		return "-"
	}
	return strings.Join(t.Strings(), ", ")
}

// ParseTags is the inverse of Tags.Strings. Unknown labels are rejected.
func ParseTags(labels []string) (Tags, error) {
	var t Tags
	for _, label := range labels {
		if f, ok := lookupFlag(label); ok {
			t.Flags |= f
			continue
		}
		if !strings.HasPrefix(label, "#") {
			return Tags{}, fmt.Errorf("unknown tag %q", label)
		}
		n, err := strconv.Atoi(label[1:])
		if err != nil || n <= 0 {
			return Tags{}, fmt.Errorf("unknown tag %q", label)
		}
		if t.Index != 0 && t.Index != n {
			return Tags{}, fmt.Errorf("conflicting sequence tags #%d and %q", t.Index, label)
		}
		t.Index = n
	}
	return t, nil
}

func lookupFlag(label string) (Flag, bool) {
	for _, fl := range flagLabels {
		if fl.label == label {
			return fl.flag, true
		}
	}
	return 0, false
}
