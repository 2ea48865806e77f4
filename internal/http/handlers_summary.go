package http

import (
	"net/http"
)

// handleYearSummary returns {"1": total, ..., "12": total}.
func (s *Server) handleYearSummary(w http.ResponseWriter, r *http.Request) {
	year, err := ParseYearParam(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	totals, err := s.svc.YearSummary(r.Context(), year)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(totals).Write(w)
}

func (s *Server) handleCategoryTotals(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	totals, err := s.svc.CategoryTotals(r.Context(), p.Year, p.Month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(totals).Write(w)
}

func (s *Server) handleDailyTotals(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	totals, err := s.svc.DailyTotals(r.Context(), p.Year, p.Month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(totals).Write(w)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	overview, err := s.svc.Overview(r.Context(), p.Year, p.Month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(overview).Write(w)
}
