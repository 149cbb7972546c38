package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankRows(t *testing.T) {
	rows := []MetricRow{
		{LineID: "D", UptimeRatio: 0.5},
		{LineID: "C", UptimeRatio: 0.9},
		{LineID: "A", UptimeRatio: 1},
		{LineID: "B", UptimeRatio: 0.9},
		{LineID: "E", UptimeRatio: 0.5},
	}

	ranked := RankRows(rows)
	require.Len(t, ranked, 5)

	gotIDs := make([]string, 0, len(ranked))
	gotRanks := make([]int, 0, len(ranked))
	for _, r := range ranked {
		gotIDs = append(gotIDs, r.LineID)
		gotRanks = append(gotRanks, r.Rank)
		assert.Equal(t, 5, r.TotalLines)
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, gotIDs)
	assert.Equal(t, []int{1, 2, 2, 4, 4}, gotRanks)
	assert.Equal(t, "D", rows[0].LineID, "input is not reordered")
	assert.Zero(t, rows[0].Rank)
}

func TestRankRowsEmpty(t *testing.T) {
	assert.Empty(t, RankRows(nil))
}

func TestRankLinesConsistency(t *testing.T) {
	e := New(sgt)
	now := at(2024, time.March, 6, 12, 0)
	snap := Snapshot{
		Lines: []Line{
			standardLine(t, "NSL"),
			standardLine(t, "EWL"),
			standardLine(t, "CCL"),
			standardLine(t, "NEL"),
		},
		Incidents: []IncidentDefinition{
			{ID: "i1", Type: IncidentDisruption, LineIDs: []string{"NSL", "EWL"}, Start: at(2024, time.March, 4, 10, 0), End: ptr(at(2024, time.March, 4, 11, 0))},
			{ID: "i2", Type: IncidentMaintenance, LineIDs: []string{"CCL"}, Start: at(2024, time.March, 5, 10, 0), End: ptr(at(2024, time.March, 5, 13, 0))},
			{ID: "i3", Type: IncidentInfrastructure, LineIDs: []string{"NEL"}, Start: at(2024, time.March, 5, 10, 0), End: ptr(at(2024, time.March, 5, 13, 0))},
		},
	}
	period := Bucket{Label: "period", Start: at(2024, time.March, 1, 0, 0), End: at(2024, time.March, 7, 0, 0), InProgress: true}

	rows, err := e.RankLines(snap, period, now)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "NEL", rows[0].LineID, "infrastructure incidents do not lower uptime")
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, "EWL", rows[1].LineID)
	assert.Equal(t, "NSL", rows[2].LineID)
	assert.Equal(t, rows[1].Rank, rows[2].Rank)
	assert.Equal(t, 2, rows[1].Rank)
	assert.Equal(t, "CCL", rows[3].LineID)
	assert.Equal(t, 4, rows[3].Rank)

	distinct := map[int]bool{}
	byRatio := map[float64]int{}
	for _, r := range rows {
		distinct[r.Rank] = true
		if rank, ok := byRatio[r.UptimeRatio]; ok {
			assert.Equal(t, rank, r.Rank)
		}
		byRatio[r.UptimeRatio] = r.Rank
	}
	assert.LessOrEqual(t, len(distinct), len(rows))
}

func TestCompare(t *testing.T) {
	e := New(sgt)
	now := at(2024, time.March, 6, 12, 0)
	snap := Snapshot{
		Lines: []Line{standardLine(t, "NSL"), standardLine(t, "EWL")},
		Incidents: []IncidentDefinition{
			// prior period only
			{ID: "old", Type: IncidentDisruption, LineIDs: []string{"NSL"}, Start: at(2024, time.March, 2, 10, 0), End: ptr(at(2024, time.March, 2, 12, 0))},
			// current period only
			{ID: "new", Type: IncidentDisruption, LineIDs: []string{"EWL"}, Start: at(2024, time.March, 5, 10, 0), End: ptr(at(2024, time.March, 5, 11, 0))},
		},
	}

	comparisons, err := e.Compare(snap, GranularityDay, 3, now)
	require.NoError(t, err)
	require.Len(t, comparisons, 2)

	nsl, ewl := comparisons[0], comparisons[1]
	assert.Equal(t, "NSL", nsl.LineID)
	assert.Equal(t, "current", nsl.Current.Label)
	assert.Equal(t, "prior", nsl.Prior.Label)
	assert.Equal(t, at(2024, time.March, 4, 0, 0), nsl.Current.Start)
	assert.Equal(t, at(2024, time.March, 1, 0, 0), nsl.Prior.Start)

	assert.Equal(t, 1.0, nsl.Current.UptimeRatio)
	assert.Equal(t, 7200.0, nsl.Prior.DowntimeSeconds)
	assert.Equal(t, 3600.0, ewl.Current.DowntimeSeconds)
	assert.Equal(t, 1.0, ewl.Prior.UptimeRatio)

	assert.Equal(t, 1, nsl.Current.Rank)
	assert.Equal(t, 2, ewl.Current.Rank)
	assert.Equal(t, 2, nsl.Prior.Rank)
	assert.Equal(t, 1, ewl.Prior.Rank)
	assert.Equal(t, 2, nsl.Current.TotalLines)

	_, err = e.Compare(snap, GranularityDay, 0, now)
	assert.ErrorIs(t, err, ErrInvalidBucketCount)
}
