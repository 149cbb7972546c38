package alerts

import (
	"regexp"
	"sort"
	"strings"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
)

// IncidentIDPrefix namespaces incident ids derived from feed entity ids
const IncidentIDPrefix = "gtfsrt-"

// CauseMap maps GTFS-RT Cause enum to string
var CauseMap = map[int32]string{
	1:  "UNKNOWN_CAUSE",
	2:  "OTHER_CAUSE",
	3:  "TECHNICAL_PROBLEM",
	4:  "STRIKE",
	5:  "DEMONSTRATION",
	6:  "ACCIDENT",
	7:  "HOLIDAY",
	8:  "WEATHER",
	9:  "MAINTENANCE",
	10: "CONSTRUCTION",
	11: "POLICE_ACTIVITY",
	12: "MEDICAL_EMERGENCY",
}

// EffectMap maps GTFS-RT Effect enum to string
var EffectMap = map[int32]string{
	1:  "NO_SERVICE",
	2:  "REDUCED_SERVICE",
	3:  "SIGNIFICANT_DELAYS",
	4:  "DETOUR",
	5:  "ADDITIONAL_SERVICE",
	6:  "MODIFIED_SERVICE",
	7:  "OTHER_EFFECT",
	8:  "UNKNOWN_EFFECT",
	9:  "STOP_MOVED",
	10: "NO_EFFECT",
	11: "ACCESSIBILITY_ISSUE",
}

// ClassifyAlert maps a cause and effect pair onto an incident type. ok is
// false for alerts that do not describe a service problem.
func ClassifyAlert(cause, effect string) (t availability.IncidentType, ok bool) {
	switch effect {
	case "NO_EFFECT", "ADDITIONAL_SERVICE":
		return "", false
	case "ACCESSIBILITY_ISSUE":
		return availability.IncidentInfrastructure, true
	}

	switch cause {
	case "MAINTENANCE", "CONSTRUCTION":
		return availability.IncidentMaintenance, true
	case "TECHNICAL_PROBLEM":
		if effect == "" || effect == "OTHER_EFFECT" || effect == "UNKNOWN_EFFECT" {
			return availability.IncidentInfrastructure, true
		}
	}

	switch effect {
	case "NO_SERVICE", "REDUCED_SERVICE", "SIGNIFICANT_DELAYS", "DETOUR", "MODIFIED_SERVICE", "STOP_MOVED":
		return availability.IncidentDisruption, true
	}
	return "", false
}

// Converter turns feed alerts into incident definitions for known lines
type Converter struct {
	lines   map[string]string // upper-cased id -> canonical id
	pattern *regexp.Regexp
}

// NewConverter creates a converter for lineIDs. pattern, when set, extracts a
// line code from route ids that do not equal a line id; its first capture
// group is used if it has one.
func NewConverter(lineIDs []string, pattern *regexp.Regexp) *Converter {
	lines := make(map[string]string, len(lineIDs))
	for _, id := range lineIDs {
		lines[strings.ToUpper(id)] = id
	}
	return &Converter{lines: lines, pattern: pattern}
}

// MatchLine resolves a route id to a known line id
func (c *Converter) MatchLine(routeID string) (string, bool) {
	if id, ok := c.lines[strings.ToUpper(strings.TrimSpace(routeID))]; ok {
		return id, true
	}
	if c.pattern == nil {
		return "", false
	}
	m := c.pattern.FindStringSubmatch(routeID)
	if m == nil {
		return "", false
	}
	code := m[0]
	if len(m) > 1 && m[1] != "" {
		code = m[1]
	}
	id, ok := c.lines[strings.ToUpper(code)]
	return id, ok
}

// Result is the outcome of converting one feed
type Result struct {
	Incidents []availability.IncidentDefinition
	Skipped   int
}

// Convert maps every alert entity of feed. Alerts without a start use
// knownStarts (keyed by incident id) or else seenAt. Alerts whose periods have
// all ended are kept closed, or skipped when their start was never known.
func (c *Converter) Convert(feed *gtfs.FeedMessage, seenAt time.Time, knownStarts map[string]time.Time) Result {
	var res Result
	for _, entity := range feed.GetEntity() {
		alert := entity.GetAlert()
		if alert == nil || entity.GetId() == "" {
			continue
		}

		inc, ok := c.convertAlert(entity.GetId(), alert, seenAt, knownStarts)
		if !ok {
			res.Skipped++
			continue
		}
		res.Incidents = append(res.Incidents, inc)
	}
	return res
}

func (c *Converter) convertAlert(entityID string, alert *gtfs.Alert, seenAt time.Time, knownStarts map[string]time.Time) (availability.IncidentDefinition, bool) {
	var cause, effect string
	if alert.Cause != nil {
		cause = CauseMap[int32(*alert.Cause)]
	}
	if alert.Effect != nil {
		effect = EffectMap[int32(*alert.Effect)]
	}
	typ, ok := ClassifyAlert(cause, effect)
	if !ok {
		return availability.IncidentDefinition{}, false
	}

	lineSet := make(map[string]bool)
	for _, ie := range alert.GetInformedEntity() {
		if id, ok := c.MatchLine(ie.GetRouteId()); ok {
			lineSet[id] = true
		}
	}
	if len(lineSet) == 0 {
		return availability.IncidentDefinition{}, false
	}
	lineIDs := make([]string, 0, len(lineSet))
	for id := range lineSet {
		lineIDs = append(lineIDs, id)
	}
	sort.Strings(lineIDs)

	inc := availability.IncidentDefinition{
		ID:      IncidentIDPrefix + entityID,
		Type:    typ,
		Title:   pickTranslation(alert.GetHeaderText()),
		LineIDs: lineIDs,
	}

	period, ok := selectPeriod(alert.GetActivePeriod(), seenAt)
	if !ok {
		return availability.IncidentDefinition{}, false
	}
	if period != nil {
		if period.Start != nil {
			inc.Start = time.Unix(int64(period.GetStart()), 0).UTC()
		}
		if period.End != nil {
			end := time.Unix(int64(period.GetEnd()), 0).UTC()
			inc.End = &end
		}
	}
	if inc.Start.IsZero() {
		start, known := knownStarts[inc.ID]
		switch {
		case known:
			inc.Start = start
		case inc.End != nil && !inc.End.After(seenAt):
			// ended before it was first seen: there is no start to record
			return availability.IncidentDefinition{}, false
		default:
			inc.Start = seenAt.UTC()
		}
	}
	// A period that has ended stays closed; a malformed one is dropped.
	if inc.End != nil && !inc.End.After(inc.Start) {
		return availability.IncidentDefinition{}, false
	}
	if inc.Title == "" {
		inc.Title = pickTranslation(alert.GetDescriptionText())
	}
	return inc, true
}

// selectPeriod picks the active period that covers at, else the next one to
// begin, else the one that ended last. A nil period means the alert is active
// for as long as the feed reports it.
func selectPeriod(periods []*gtfs.TimeRange, at time.Time) (*gtfs.TimeRange, bool) {
	if len(periods) == 0 {
		return nil, true
	}
	ts := uint64(at.Unix())

	var upcoming, ended *gtfs.TimeRange
	for _, p := range periods {
		if p == nil || (p.Start == nil && p.End == nil) {
			return nil, true
		}
		started := p.Start == nil || p.GetStart() <= ts
		over := p.End != nil && p.GetEnd() <= ts
		switch {
		case started && !over:
			return p, true
		case !started:
			if upcoming == nil || p.GetStart() < upcoming.GetStart() {
				upcoming = p
			}
		default:
			if ended == nil || p.GetEnd() > ended.GetEnd() {
				ended = p
			}
		}
	}
	if upcoming != nil {
		return upcoming, true
	}
	return ended, ended != nil
}

// pickTranslation prefers English, then an untagged translation, then the first one
func pickTranslation(ts *gtfs.TranslatedString) string {
	var untagged, first string
	for _, tr := range ts.GetTranslation() {
		text := strings.TrimSpace(tr.GetText())
		if text == "" {
			continue
		}
		switch lang := strings.ToLower(tr.GetLanguage()); {
		case lang == "en" || strings.HasPrefix(lang, "en-"):
			return text
		case lang == "" && untagged == "":
			untagged = text
		}
		if first == "" {
			first = text
		}
	}
	if untagged != "" {
		return untagged
	}
	return first
}
