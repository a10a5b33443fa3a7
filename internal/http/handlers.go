package http

import (
	"context"
	"net/http"
	"time"

	"tally/internal/cache"
	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
)

// defaultSummaryDays is the range used when summary has no from parameter.
const defaultSummaryDays = 7

type categoryView struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Color   string `json:"color"`
	Ordinal int    `json:"ordinal"`
}

type trackerView struct {
	Name       string         `json:"name"`
	Today      string         `json:"today"`
	Categories []categoryView `json:"categories"`
}

type countEntry struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type changeView struct {
	Tracker  string `json:"tracker"`
	Day      string `json:"day"`
	Category string `json:"category"`
	Count    int    `json:"count"`
	DayTotal int    `json:"day_total"`
	Revision uint64 `json:"revision"`
}

type countView struct {
	Tracker  string `json:"tracker"`
	Day      string `json:"day"`
	Category string `json:"category,omitempty"`
	Count    int    `json:"count"`
}

type dayView struct {
	Tracker string       `json:"tracker"`
	Day     string       `json:"day"`
	Total   int          `json:"total"`
	Counts  []countEntry `json:"counts"`
}

type dayTotalView struct {
	Day   string `json:"day"`
	Total int    `json:"total"`
}

type summaryView struct {
	Tracker    string         `json:"tracker"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Total      int            `json:"total"`
	ByCategory []countEntry   `json:"by_category"`
	ByDay      []dayTotalView `json:"by_day"`
}

type streaksView struct {
	Tracker string       `json:"tracker"`
	Today   string       `json:"today"`
	Streaks []countEntry `json:"streaks"`
}

type statsView struct {
	HTTP         trace.Metrics             `json:"http"`
	RateLimit    ratelimit.Metrics         `json:"rate_limit"`
	Security     security.DetectionMetrics `json:"security"`
	SummaryCache *cache.Stats              `json:"summary_cache,omitempty"`
}

func entries(counts []core.CategoryCount) []countEntry {
	out := make([]countEntry, 0, len(counts))
	for _, c := range counts {
		out = append(out, countEntry{Category: c.Category.Name, Count: c.Count})
	}
	return out
}

// writeError sends b with the request ID attached to the error body.
func writeError(w http.ResponseWriter, r *http.Request, b *JSONResponseBuilder) {
	if body, ok := b.body.(ErrorBody); ok {
		body.RequestID = trace.GetRequestID(r.Context())
		b.Body(body)
	}
	b.Write(w)
}

// fail logs server-side failures and writes the mapped error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if StatusFor(err) == http.StatusInternalServerError {
		logger := applog.NewStructuredLogger(applog.FromContext(r.Context()))
		logger.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent()))
	}
	writeError(w, r, ErrorFromErr(err))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
		writeError(w, r, ServiceUnavailableError("storage unavailable"))
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	v := statsView{
		HTTP:      s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
	}
	if s.summary != nil {
		st := s.summary.Stats()
		v.SummaryCache = &st
	}
	NewJSONResponse().Body(v).Write(w)
}

func (s *Server) handleTrackers(w http.ResponseWriter, r *http.Request) {
	trackers := s.svc.Trackers()
	out := make([]trackerView, 0, len(trackers))
	for _, t := range trackers {
		st, err := s.svc.Store(t.Name)
		if err != nil {
			s.fail(w, r, applog.OpRead, err)
			return
		}
		v := trackerView{Name: t.Name, Today: st.TodayKey().String()}
		for _, c := range t.Categories {
			v.Categories = append(v.Categories, categoryView{
				Name: c.Name, Label: c.Label, Color: c.Color, Ordinal: c.Ordinal,
			})
		}
		out = append(out, v)
	}
	NewJSONResponse().Body(map[string]any{"trackers": out}).Write(w)
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeError(w, r, BadRequestError("invalid request body"))
		return
	}
	category := p.Get("category")
	if category == "" {
		writeError(w, r, BadRequestError("category is required"))
		return
	}

	ch, err := s.svc.RecordEvent(r.Context(), r.PathValue("tracker"), category)
	if err != nil {
		s.fail(w, r, applog.OpRecord, err)
		return
	}
	s.events.LogEventRecorded(r.Context(), ch.Tracker, ch.Day.String(), ch.Category.Name, ch.Count, ch.DayTotal)

	NewJSONResponse().
		Status(http.StatusCreated).
		Body(changeView{
			Tracker:  ch.Tracker,
			Day:      ch.Day.String(),
			Category: ch.Category.Name,
			Count:    ch.Count,
			DayTotal: ch.DayTotal,
			Revision: ch.Revision,
		}).
		Write(w)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Store(r.PathValue("tracker"))
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	q := r.URL.Query()
	day, err := ParseDayParam(q, "day", st.TodayKey())
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}

	v := countView{Tracker: st.Tracker().Name, Day: day.String()}
	if name := q.Get("category"); name != "" {
		_, c, err := s.svc.Category(st.Tracker().Name, name)
		if err != nil {
			s.fail(w, r, applog.OpRead, err)
			return
		}
		v.Category = c.Name
		v.Count = st.CountFor(day, c)
	} else {
		v.Count = st.CountFor(day)
	}
	NewJSONResponse().Body(v).Write(w)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Store(r.PathValue("tracker"))
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	day, err := core.ParseDayKey(r.PathValue("day"))
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(dayView{
		Tracker: st.Tracker().Name,
		Day:     day.String(),
		Total:   st.CountFor(day),
		Counts:  entries(st.Day(day)),
	}).Write(w)
}

func (s *Server) handleClearDay(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Store(r.PathValue("tracker"))
	if err != nil {
		s.fail(w, r, applog.OpClear, err)
		return
	}
	day, err := core.ParseDayKey(r.PathValue("day"))
	if err != nil {
		s.fail(w, r, applog.OpClear, err)
		return
	}
	if err := st.ClearDay(r.Context(), day); err != nil {
		s.fail(w, r, applog.OpClear, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Store(r.PathValue("tracker"))
	if err != nil {
		s.fail(w, r, applog.OpSummary, err)
		return
	}
	q := r.URL.Query()
	to, err := ParseDayParam(q, "to", st.TodayKey())
	if err != nil {
		s.fail(w, r, applog.OpSummary, err)
		return
	}
	defFrom, err := to.AddDays(-(defaultSummaryDays - 1))
	if err != nil {
		s.fail(w, r, applog.OpSummary, err)
		return
	}
	from, err := ParseDayParam(q, "from", defFrom)
	if err != nil {
		s.fail(w, r, applog.OpSummary, err)
		return
	}

	sum, err := s.svc.Summarize(st.Tracker().Name, from, to)
	if err != nil {
		s.fail(w, r, applog.OpSummary, err)
		return
	}

	v := summaryView{
		Tracker:    sum.Tracker,
		From:       sum.From.String(),
		To:         sum.To.String(),
		Total:      sum.Total,
		ByCategory: entries(sum.ByCategory),
		ByDay:      make([]dayTotalView, 0, len(sum.ByDay)),
	}
	for _, d := range sum.ByDay {
		v.ByDay = append(v.ByDay, dayTotalView{Day: d.Day.String(), Total: d.Total})
	}
	NewJSONResponse().Body(v).Write(w)
}

func (s *Server) handleStreaks(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Store(r.PathValue("tracker"))
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(streaksView{
		Tracker: st.Tracker().Name,
		Today:   st.TodayKey().String(),
		Streaks: entries(st.Streaks()),
	}).Write(w)
}
