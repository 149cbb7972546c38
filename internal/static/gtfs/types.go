package gtfs

// Data holds the GTFS tables needed to derive operating hours
type Data struct {
	Routes        []Route
	Trips         []Trip
	StopTimes     []StopTime
	Calendar      []CalendarEntry
	CalendarDates []CalendarDate
}

// Route represents a route from routes.txt
type Route struct {
	RouteID        string
	AgencyID       string
	RouteShortName string
	RouteLongName  string
	RouteType      int
}

// Trip represents a trip from trips.txt
type Trip struct {
	RouteID   string
	ServiceID string
	TripID    string
}

// StopTime represents a stop time from stop_times.txt. Times are seconds
// after the service day's midnight and may exceed 24 hours.
type StopTime struct {
	TripID        string
	ArrivalTime   int
	DepartureTime int
	StopSequence  int
}

// CalendarEntry represents a row of calendar.txt
type CalendarEntry struct {
	ServiceID string
	Days      [7]bool // indexed by time.Weekday
	StartDate string  // YYYYMMDD
	EndDate   string
}

// CalendarDate represents a row of calendar_dates.txt
type CalendarDate struct {
	ServiceID     string
	Date          string // YYYYMMDD
	ExceptionType int
}
