package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/foldaway/mrtdown-data-sub000/internal/availability"
	"github.com/foldaway/mrtdown-data-sub000/internal/models"
	"github.com/foldaway/mrtdown-data-sub000/internal/report"
)

// maxBucketCount bounds the count query parameter
const maxBucketCount = 1000

// ReportService defines the report operations the handlers need
type ReportService interface {
	Statuses(ctx context.Context) (*report.StatusReport, error)
	LineUptime(ctx context.Context, lineID string, req report.Request) (*report.UptimeReport, error)
	Network(ctx context.Context, req report.Request) (*report.UptimeReport, error)
	Ranking(ctx context.Context, req report.Request) (*report.RankingReport, error)
	Comparison(ctx context.Context, req report.Request) (*report.ComparisonReport, error)
	Ping(ctx context.Context) error
}

// UptimeHandler handles HTTP requests for line status and availability reports
type UptimeHandler struct {
	reports ReportService
	logger  *zap.Logger
	timeout time.Duration
}

// NewUptimeHandler creates a new handler backed by the given report service
func NewUptimeHandler(reports ReportService, logger *zap.Logger) *UptimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UptimeHandler{reports: reports, logger: logger.Named("handlers"), timeout: 10 * time.Second}
}

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// LineStatusesResponse is the JSON response for GET /api/lines/status
type LineStatusesResponse struct {
	Lines       []models.LineStatus `json:"lines"`
	Count       int                 `json:"count"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// UptimeResponse is the JSON response for the per-bucket uptime endpoints
type UptimeResponse struct {
	LineID      string             `json:"lineId,omitempty"`
	Granularity string             `json:"granularity"`
	Rows        []models.MetricRow `json:"rows"`
	Truncated   bool               `json:"truncated,omitempty"` // older periods fell outside incident retention
	GeneratedAt time.Time          `json:"generatedAt"`
}

// RankingResponse is the JSON response for GET /api/uptime/ranking
type RankingResponse struct {
	Granularity string             `json:"granularity"`
	Period      models.Period      `json:"period"`
	Rows        []models.MetricRow `json:"rows"`
	Truncated   bool               `json:"truncated,omitempty"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// ComparisonResponse is the JSON response for GET /api/uptime/comparison
type ComparisonResponse struct {
	Granularity string                  `json:"granularity"`
	Current     models.Period           `json:"current"`
	Prior       models.Period           `json:"prior"`
	Lines       []models.LineComparison `json:"lines"`
	Truncated   bool                    `json:"truncated,omitempty"`
	GeneratedAt time.Time               `json:"generatedAt"`
}

// GetLineStatuses handles GET /api/lines/status
// Returns the live status of every line
func (h *UptimeHandler) GetLineStatuses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rep, err := h.reports.Statuses(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	lines := make([]models.LineStatus, 0, len(rep.Lines))
	for _, s := range rep.Lines {
		lines = append(lines, models.NewLineStatus(s))
	}

	w.Header().Set("Cache-Control", "public, max-age=15")
	writeJSON(w, http.StatusOK, LineStatusesResponse{
		Lines:       lines,
		Count:       len(lines),
		GeneratedAt: rep.GeneratedAt.UTC(),
	})
}

// GetLineUptime handles GET /api/lines/{lineID}/uptime?granularity=&count=
func (h *UptimeHandler) GetLineUptime(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "lineID")
	if lineID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "lineID parameter is required", Code: "missing_line_id"})
		return
	}
	req, ok := parseRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rep, err := h.reports.LineUptime(ctx, lineID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, UptimeResponse{
		LineID:      rep.LineID,
		Granularity: string(rep.Granularity),
		Rows:        models.NewMetricRows(rep.Rows),
		Truncated:   rep.Truncated,
		GeneratedAt: rep.GeneratedAt.UTC(),
	})
}

// GetNetworkUptime handles GET /api/network/uptime?granularity=&count=
func (h *UptimeHandler) GetNetworkUptime(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rep, err := h.reports.Network(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, UptimeResponse{
		Granularity: string(rep.Granularity),
		Rows:        models.NewMetricRows(rep.Rows),
		Truncated:   rep.Truncated,
		GeneratedAt: rep.GeneratedAt.UTC(),
	})
}

// GetRanking handles GET /api/uptime/ranking?granularity=&count=
func (h *UptimeHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rep, err := h.reports.Ranking(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, RankingResponse{
		Granularity: string(rep.Granularity),
		Period:      models.NewPeriod(rep.Period),
		Rows:        models.NewMetricRows(rep.Rows),
		Truncated:   rep.Truncated,
		GeneratedAt: rep.GeneratedAt.UTC(),
	})
}

// GetComparison handles GET /api/uptime/comparison?granularity=&count=
func (h *UptimeHandler) GetComparison(w http.ResponseWriter, r *http.Request) {
	req, ok := parseRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rep, err := h.reports.Comparison(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, ComparisonResponse{
		Granularity: string(rep.Granularity),
		Current:     models.NewPeriod(rep.Current),
		Prior:       models.NewPeriod(rep.Prior),
		Lines:       models.NewLineComparisons(rep.Lines),
		Truncated:   rep.Truncated,
		GeneratedAt: rep.GeneratedAt.UTC(),
	})
}

// parseRequest reads granularity (default day) and count (default chosen by
// the report service) and writes a 400 response when either is invalid.
func parseRequest(w http.ResponseWriter, r *http.Request) (report.Request, bool) {
	q := r.URL.Query()

	granularity := availability.GranularityDay
	if s := q.Get("granularity"); s != "" {
		g, err := availability.ParseGranularity(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "granularity must be one of day, month, year",
				Code:  "invalid_granularity",
				Details: map[string]interface{}{
					"granularity": s,
				},
			})
			return report.Request{}, false
		}
		granularity = g
	}

	count := 0
	if s := q.Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxBucketCount {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error: "count must be an integer between 1 and " + strconv.Itoa(maxBucketCount),
				Code:  "invalid_count",
				Details: map[string]interface{}{
					"count": s,
				},
			})
			return report.Request{}, false
		}
		count = n
	}

	return report.Request{Granularity: granularity, Count: count}, true
}

// writeError maps report errors onto HTTP status codes
func (h *UptimeHandler) writeError(w http.ResponseWriter, err error) {
	var incErr *availability.IncidentError
	switch {
	case errors.Is(err, report.ErrLineNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "line_not_found"})
	case errors.Is(err, availability.ErrInvalidGranularity):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_granularity"})
	case errors.Is(err, availability.ErrInvalidBucketCount):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_count"})
	case errors.As(err, &incErr):
		h.logger.Error("incident data rejected", zap.String("incident_id", incErr.IncidentID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Stored incident data is invalid",
			Code:  "invalid_incident_data",
			Details: map[string]interface{}{
				"incidentId": incErr.IncidentID,
				"internal":   incErr.Err.Error(),
			},
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "Report timed out", Code: "timeout"})
	default:
		h.logger.Error("report failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to compute report",
			Code:  "internal_error",
			Details: map[string]interface{}{
				"internal": err.Error(),
			},
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
