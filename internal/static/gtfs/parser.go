package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Parse reads a GTFS zip file and returns parsed data
func Parse(zipPath string, logger *zap.Logger) (*Data, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	return ParseZip(&r.Reader, logger)
}

// ParseZip parses an opened GTFS archive. routes.txt, trips.txt and
// stop_times.txt are required; the calendar files are optional.
func ParseZip(r *zip.Reader, logger *zap.Logger) (*Data, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Build file map for easy lookup
	files := make(map[string]*zip.File)
	for _, f := range r.File {
		files[f.Name] = f
	}

	data := &Data{}
	tables := []struct {
		name     string
		required bool
		row      func(get func(string) string) error
	}{
		{"routes.txt", true, func(get func(string) string) error {
			routeType, _ := strconv.Atoi(get("route_type"))
			data.Routes = append(data.Routes, Route{
				RouteID:        get("route_id"),
				AgencyID:       get("agency_id"),
				RouteShortName: get("route_short_name"),
				RouteLongName:  get("route_long_name"),
				RouteType:      routeType,
			})
			return nil
		}},
		{"trips.txt", true, func(get func(string) string) error {
			data.Trips = append(data.Trips, Trip{
				RouteID:   get("route_id"),
				ServiceID: get("service_id"),
				TripID:    get("trip_id"),
			})
			return nil
		}},
		{"stop_times.txt", true, func(get func(string) string) error {
			arrivalText, departureText := get("arrival_time"), get("departure_time")
			if arrivalText == "" && departureText == "" {
				// untimed stop between timepoints
				return nil
			}
			if arrivalText == "" {
				arrivalText = departureText
			}
			if departureText == "" {
				departureText = arrivalText
			}
			arrival, err := ParseGTFSTime(arrivalText)
			if err != nil {
				return err
			}
			departure, err := ParseGTFSTime(departureText)
			if err != nil {
				return err
			}
			seq, _ := strconv.Atoi(get("stop_sequence"))
			data.StopTimes = append(data.StopTimes, StopTime{
				TripID:        get("trip_id"),
				ArrivalTime:   arrival,
				DepartureTime: departure,
				StopSequence:  seq,
			})
			return nil
		}},
		{"calendar.txt", false, func(get func(string) string) error {
			entry := CalendarEntry{
				ServiceID: get("service_id"),
				StartDate: get("start_date"),
				EndDate:   get("end_date"),
			}
			for d := time.Sunday; d <= time.Saturday; d++ {
				entry.Days[d] = get(strings.ToLower(d.String())) == "1"
			}
			data.Calendar = append(data.Calendar, entry)
			return nil
		}},
		{"calendar_dates.txt", false, func(get func(string) string) error {
			exception, _ := strconv.Atoi(get("exception_type"))
			data.CalendarDates = append(data.CalendarDates, CalendarDate{
				ServiceID:     get("service_id"),
				Date:          get("date"),
				ExceptionType: exception,
			})
			return nil
		}},
	}

	for _, table := range tables {
		f, ok := files[table.name]
		if !ok {
			if table.required {
				return nil, fmt.Errorf("missing %s", table.name)
			}
			continue
		}
		skipped, err := readTable(f, table.row)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", table.name, err)
		}
		if skipped > 0 {
			logger.Warn("skipped malformed rows", zap.String("file", table.name), zap.Int("rows", skipped))
		}
	}

	logger.Info("GTFS parsed",
		zap.Int("routes", len(data.Routes)),
		zap.Int("trips", len(data.Trips)),
		zap.Int("stop_times", len(data.StopTimes)),
		zap.Int("calendar", len(data.Calendar)),
	)

	return data, nil
}

// readTable calls row for every record of a CSV file and returns the number
// of records that could not be read or were rejected by row.
func readTable(f *zip.File, row func(get func(string) string) error) (int, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return 0, err
	}

	idx := makeIndex(header)
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		get := func(field string) string { return getField(record, idx, field) }
		if err := row(get); err != nil {
			skipped++
		}
	}

	return skipped, nil
}

// ParseGTFSTime parses H:MM:SS into seconds after midnight. Hours may exceed
// 23 for trips that run past midnight of their service day.
func ParseGTFSTime(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid GTFS time %q", s)
	}
	var values [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid GTFS time %q", s)
		}
		values[i] = v
	}
	if values[1] > 59 || values[2] > 59 {
		return 0, fmt.Errorf("invalid GTFS time %q", s)
	}
	return values[0]*3600 + values[1]*60 + values[2], nil
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		// strip a UTF-8 BOM on the first column
		idx[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
