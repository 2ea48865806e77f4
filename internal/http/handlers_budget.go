package http

import (
	"net/http"
	"strings"

	"expensecal/internal/core"
)

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	b, err := ParseBudgetBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.svc.CreateBudget(r.Context(), b)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(created).Write(w)
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.svc.ListBudgets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if budgets == nil {
		budgets = []core.Budget{}
	}
	NewResponse().JSON(budgets).Write(w)
}

func (s *Server) handleCurrentBudget(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.CurrentBudget(r.Context(), budgetTypeParam(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(b).Write(w)
}

func (s *Server) handleBudgetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.BudgetProgress(r.Context(), budgetTypeParam(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(p).Write(w)
}

// budgetTypeParam reads ?type=, defaulting to monthly.
func budgetTypeParam(r *http.Request) core.BudgetType {
	t := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type")))
	if t == "" {
		return core.MonthlyBudget
	}
	return core.BudgetType(t)
}
