package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
	"github.com/foldaway/mrtdown-data-sub000/internal/db"
)

type feedServer struct {
	mu   sync.Mutex
	feed *gtfs.FeedMessage
}

func (s *feedServer) set(feed *gtfs.FeedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = feed
}

func (s *feedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := proto.Marshal(s.feed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Write(data)
}

func openStore(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Connect(filepath.Join(t.TempDir(), "alerts.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	require.NoError(t, database.EnsureSchema(ctx))

	hours := availability.OperatingHours{Start: availability.NewTimeOfDay(5, 30, 0), End: availability.EndOfDay}
	var lines []availability.Line
	for _, id := range []string{"NSL", "EWL"} {
		lines = append(lines, availability.Line{
			ID: id, Name: id, Weekday: hours, Weekend: hours,
			ServiceStart: availability.NewDate(2020, time.January, 1),
		})
	}
	require.NoError(t, database.UpsertLines(ctx, lines))
	return database
}

func incidentsByID(t *testing.T, database *db.DB) map[string]availability.IncidentDefinition {
	t.Helper()
	snap, err := database.Snapshot(context.Background())
	require.NoError(t, err)
	out := make(map[string]availability.IncidentDefinition, len(snap.Incidents))
	for _, inc := range snap.Incidents {
		out[inc.ID] = inc
	}
	return out
}

func TestPollUpsertsAndCloses(t *testing.T) {
	ctx := context.Background()
	database := openStore(t)

	t1 := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)
	t2 := t1.Add(5 * time.Minute)
	now := t1
	start := t1.Add(-30 * time.Minute)

	srv := &feedServer{}
	srv.set(buildFeed(
		testAlert{id: "works", cause: causeMaintenance, effect: effectNoService, routes: []string{"NSL"}, start: &start},
		testAlert{id: "fault", cause: causeTechnical, effect: effectDelays, routes: []string{"ewl"}},
		testAlert{id: "extra", cause: causeConstr, effect: effectAdditional, routes: []string{"NSL"}},
	))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	p := NewPoller(database, ts.URL, nil, WithClock(func() time.Time { return now }))

	run, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, db.SourceGTFSRT, run.Source)
	assert.Equal(t, 3, run.AlertsSeen)
	assert.Equal(t, 2, run.IncidentsUpserted)
	assert.Zero(t, run.IncidentsClosed)

	got := incidentsByID(t, database)
	require.Len(t, got, 2)
	assert.True(t, got["gtfsrt-works"].Start.Equal(start))
	assert.Equal(t, availability.IncidentMaintenance, got["gtfsrt-works"].Type)
	assert.Equal(t, []string{"EWL"}, got["gtfsrt-fault"].LineIDs)
	assert.True(t, got["gtfsrt-fault"].Start.Equal(t1))

	// works is resolved; fault is still reported without a start
	now = t2
	srv.set(buildFeed(
		testAlert{id: "fault", cause: causeTechnical, effect: effectDelays, routes: []string{"EWL"}},
	))

	run, err = p.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.IncidentsClosed)

	got = incidentsByID(t, database)
	require.NotNil(t, got["gtfsrt-works"].End)
	assert.True(t, got["gtfsrt-works"].End.Equal(t2))
	assert.Nil(t, got["gtfsrt-fault"].End)
	assert.True(t, got["gtfsrt-fault"].Start.Equal(t1), "start survives later polls")
}

func TestPollClosesAlertAtPublishedEnd(t *testing.T) {
	ctx := context.Background()
	database := openStore(t)

	t1 := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)
	end := t1.Add(30 * time.Minute)
	now := t1

	srv := &feedServer{}
	srv.set(buildFeed(testAlert{id: "fault", cause: causeAccident, effect: effectNoService, routes: []string{"NSL"}}))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	p := NewPoller(database, ts.URL, nil, WithClock(func() time.Time { return now }))
	_, err := p.Poll(ctx)
	require.NoError(t, err)

	// the operator publishes an end that has already passed by the next poll
	now = t1.Add(time.Hour)
	srv.set(buildFeed(testAlert{id: "fault", cause: causeAccident, effect: effectNoService, routes: []string{"NSL"}, end: &end}))
	run, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, run.IncidentsClosed)

	got := incidentsByID(t, database)["gtfsrt-fault"]
	assert.True(t, got.Start.Equal(t1))
	require.NotNil(t, got.End)
	assert.True(t, got.End.Equal(end))
}

func TestPollKeepsIncidentsOnFetchFailure(t *testing.T) {
	ctx := context.Background()
	database := openStore(t)
	now := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC)

	srv := &feedServer{}
	srv.set(buildFeed(testAlert{id: "fault", cause: causeTechnical, effect: effectDelays, routes: []string{"NSL"}}))
	ts := httptest.NewServer(srv)

	p := NewPoller(database, ts.URL, nil, WithClock(func() time.Time { return now }))
	_, err := p.Poll(ctx)
	require.NoError(t, err)

	ts.Close()
	now = now.Add(time.Minute)
	_, err = p.Poll(ctx)
	assert.Error(t, err)

	got := incidentsByID(t, database)
	assert.Nil(t, got["gtfsrt-fault"].End, "a failed poll must not close anything")
}

func TestFetchFeedErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte{0xff, 0xff, 0xff})
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(tc.handler)
			defer ts.Close()

			p := NewPoller(nil, ts.URL, nil, WithHTTPClient(ts.Client()))
			_, err := p.fetchFeed(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	database := openStore(t)
	srv := &feedServer{}
	srv.set(buildFeed())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	p := NewPoller(database, ts.URL, nil, WithRetention(24*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
