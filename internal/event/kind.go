package event

import "strings"

// Kind is one pending-work category. Kinds are single bits so a Set of them
// fits in one machine word.
type Kind uint32

const (
	Conditions Kind = 1 << iota
	TideChart
	SwellChart
	Time
	Label
	UpdateCheck
)

// kindsInOrder is the canonical iteration order (matches bit order).
var kindsInOrder = [...]Kind{Conditions, TideChart, SwellChart, Time, Label, UpdateCheck}

func (k Kind) String() string {
	switch k {
	case Conditions:
		return "conditions"
	case TideChart:
		return "tide_chart"
	case SwellChart:
		return "swell_chart"
	case Time:
		return "time"
	case Label:
		return "label"
	case UpdateCheck:
		return "update_check"
	default:
		return "unknown"
	}
}

// Set is a set of kinds. Membership is boolean; there are no counts.
type Set uint32

// SetOf builds a Set from kinds.
func SetOf(kinds ...Kind) Set {
	var s Set
	for _, k := range kinds {
		s |= Set(k)
	}
	return s
}

// All is every display-affecting kind plus the update check.
const All = Set(Conditions | TideChart | SwellChart | Time | Label | UpdateCheck)

func (s Set) Has(k Kind) bool { return s&Set(k) != 0 }
func (s Set) HasAll(o Set) bool { return s&o == o }
func (s Set) With(k Kind) Set { return s | Set(k) }
func (s Set) Without(k Kind) Set { return s &^ Set(k) }
func (s Set) Empty() bool { return s == 0 }

// Kinds lists the members in bit order.
func (s Set) Kinds() []Kind {
	out := make([]Kind, 0, len(kindsInOrder))
	for _, k := range kindsInOrder {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s Set) String() string {
	if s == 0 {
		return "none"
	}
	names := make([]string, 0, len(kindsInOrder))
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, "|")
}
