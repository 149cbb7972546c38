package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxOccurrences caps how many intervals one recurring incident may expand to
const DefaultMaxOccurrences = 5000

// Expander turns incident definitions into concrete intervals
type Expander struct {
	loc            *time.Location
	maxOccurrences int
}

// NewExpander creates an expander that anchors rules without an explicit
// DTSTART in loc. maxOccurrences <= 0 selects DefaultMaxOccurrences.
func NewExpander(loc *time.Location, maxOccurrences int) Expander {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return Expander{loc: loc, maxOccurrences: maxOccurrences}
}

// Expand returns the concrete intervals of def. Open definitions yield a single
// open interval and are never expanded as recurrences.
func (x Expander) Expand(def IncidentDefinition) ([]ConcreteInterval, error) {
	if !def.Type.Valid() {
		return nil, incidentErr(def.ID, fmt.Errorf("%w: %q", ErrUnknownIncidentType, def.Type))
	}
	if def.End == nil {
		return []ConcreteInterval{{IncidentID: def.ID, Type: def.Type, Start: def.Start}}, nil
	}
	if def.End.Before(def.Start) {
		return nil, incidentErr(def.ID, fmt.Errorf("%w: ends %s before it starts %s",
			ErrInvalidInterval, def.End.Format(time.RFC3339), def.Start.Format(time.RFC3339)))
	}
	if strings.TrimSpace(def.Recurrence) == "" {
		end := *def.End
		return []ConcreteInterval{{IncidentID: def.ID, Type: def.Type, Start: def.Start, End: &end}}, nil
	}

	starts, err := x.occurrences(def)
	if err != nil {
		return nil, incidentErr(def.ID, err)
	}
	length := def.End.Sub(def.Start)
	out := make([]ConcreteInterval, 0, len(starts))
	for _, s := range starts {
		end := s.Add(length)
		out = append(out, ConcreteInterval{IncidentID: def.ID, Type: def.Type, Start: s, End: &end})
	}
	return out, nil
}

func (x Expander) occurrences(def IncidentDefinition) ([]time.Time, error) {
	opt, err := rrule.StrToROptionInLocation(normaliseRule(def.Recurrence), x.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrenceRule, err)
	}
	if opt.Count <= 0 && opt.Until.IsZero() {
		return nil, fmt.Errorf("%w: rule has neither COUNT nor UNTIL", ErrInvalidRecurrenceRule)
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = def.Start.In(x.loc)
	}
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrenceRule, err)
	}

	var starts []time.Time
	next := rule.Iterator()
	for {
		t, ok := next()
		if !ok {
			break
		}
		if len(starts) == x.maxOccurrences {
			return nil, fmt.Errorf("%w: more than %d occurrences", ErrInvalidRecurrenceRule, x.maxOccurrences)
		}
		starts = append(starts, t)
	}
	return starts, nil
}

// normaliseRule accepts both a bare "FREQ=..." rule and the two-line
// "DTSTART:...\nRRULE:..." form.
func normaliseRule(s string) string {
	lines := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool { return r == '\n' || r == '\r' })
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, "\n")
}
