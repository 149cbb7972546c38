package availability

import (
	"sort"
	"time"
)

// Clip intersects iv with bound. An open interval is treated as ending at now;
// the interval itself is not modified. ok is false when nothing of positive
// length remains.
func Clip(iv ConcreteInterval, bound Bound, now time.Time) (seg ClippedSegment, ok bool) {
	start := laterOf(iv.Start, bound.Start)
	end := earlierOf(iv.EndAt(now), bound.End)
	if !end.After(start) {
		return ClippedSegment{}, false
	}
	return ClippedSegment{
		IncidentID: iv.IncidentID,
		Type:       iv.Type,
		Start:      start,
		End:        end,
	}, true
}

// ClipSegment narrows an already clipped segment to bound
func ClipSegment(seg ClippedSegment, bound Bound) (ClippedSegment, bool) {
	end := seg.End
	return Clip(ConcreteInterval{
		IncidentID: seg.IncidentID,
		Type:       seg.Type,
		Start:      seg.Start,
		End:        &end,
	}, bound, seg.End)
}

// SplitByDay partitions iv into one piece per calendar day of loc it overlaps.
// Open intervals are cut off at now.
func SplitByDay(iv ConcreteInterval, loc *time.Location, now time.Time) []ClippedSegment {
	end := iv.EndAt(now)
	if !end.After(iv.Start) {
		return nil
	}
	var pieces []ClippedSegment
	day := DateOf(iv.Start, loc)
	for {
		dayBound := Bound{Start: day.Midnight(loc), End: day.AddDays(1).Midnight(loc)}
		if !dayBound.Start.Before(end) {
			break
		}
		if seg, ok := Clip(iv, dayBound, now); ok {
			pieces = append(pieces, seg)
		}
		day = day.AddDays(1)
	}
	return pieces
}

// ClipToService returns the parts of iv that fall inside spans. spans must be
// sorted and non-overlapping, as produced for one line by the calendar
// resolver. The interval is first cut into calendar-day pieces and each piece
// is clipped against every span it touches, which picks up the overnight tail
// of the previous day's window.
func ClipToService(iv ConcreteInterval, spans []Bound, loc *time.Location, now time.Time) []ClippedSegment {
	if len(spans) == 0 {
		return nil
	}
	var out []ClippedSegment
	for _, piece := range SplitByDay(iv, loc, now) {
		i := sort.Search(len(spans), func(i int) bool {
			return spans[i].End.After(piece.Start)
		})
		for ; i < len(spans) && spans[i].Start.Before(piece.End); i++ {
			if seg, ok := ClipSegment(piece, spans[i]); ok {
				out = append(out, seg)
			}
		}
	}
	return out
}
