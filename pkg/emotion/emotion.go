// Package emotion defines the expression vocabulary shared by the classifier,
// the monitor and the actions.
package emotion

import (
	"fmt"
	"sort"
)

// Label is one of the facial expressions the classifier reports.
type Label string

// Expression vocabulary.
const (
	Happy     Label = "happy"
	Sad       Label = "sad"
	Angry     Label = "angry"
	Disgusted Label = "disgusted"
	Surprised Label = "surprised"
	Fearful   Label = "fearful"
	Neutral   Label = "neutral"
)

// Labels returns the vocabulary in a stable order.
func Labels() []Label {
	return []Label{Happy, Sad, Angry, Disgusted, Surprised, Fearful, Neutral}
}

// Valid reports whether l is part of the vocabulary.
func Valid(l Label) bool {
	for _, v := range Labels() {
		if v == l {
			return true
		}
	}
	return false
}

// Parse converts s to a Label.
func Parse(s string) (Label, error) {
	l := Label(s)
	if !Valid(l) {
		return "", fmt.Errorf("unknown emotion %q", s)
	}
	return l, nil
}

// Scores maps each label to a confidence in [0,1]. One Scores value is
// produced per successful detection and never reused.
type Scores map[Label]float64

// Score returns the confidence for l, or 0 if it is absent.
func (s Scores) Score(l Label) float64 {
	if s == nil {
		return 0
	}
	return s[l]
}

// Strongest returns the label with the highest confidence. Ties are broken
// by vocabulary order. An empty map returns ("", 0).
func (s Scores) Strongest() (Label, float64) {
	var (
		best  Label
		value = -1.0
	)
	for _, l := range Labels() {
		v, ok := s[l]
		if ok && v > value {
			best, value = l, v
		}
	}
	if best == "" {
		return "", 0
	}
	return best, value
}

// Clamp returns a copy with every confidence limited to [0,1] and unknown
// labels removed.
func (s Scores) Clamp() Scores {
	out := make(Scores, len(s))
	for l, v := range s {
		if !Valid(l) {
			continue
		}
		switch {
		case v < 0:
			v = 0
		case v > 1:
			v = 1
		}
		out[l] = v
	}
	return out
}

// String renders the scores sorted by label, for logs.
func (s Scores) String() string {
	keys := make([]string, 0, len(s))
	for l := range s {
		keys = append(keys, string(l))
	}
	sort.Strings(keys)
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s:%.2f", k, s[Label(k)])
	}
	return out + "}"
}
