package http

import (
	"net/http"

	"expensecal/internal/core"
)

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	e, err := ParseExpenseBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.svc.CreateExpense(r.Context(), e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/expenses/"+created.ID).
		JSON(created).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.GetExpense(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(e).Write(w)
}

func (s *Server) handleExpensesByDate(w http.ResponseWriter, r *http.Request) {
	date, err := core.ParseDate(r.PathValue("date"))
	if err != nil {
		s.fail(w, r, core.Invalid("date", err))
		return
	}
	expenses, err := s.svc.ExpensesOn(r.Context(), date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	NewResponse().JSON(expenses).Write(w)
}

func (s *Server) handleMonthExpenses(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	grouped, err := s.svc.GroupedMonth(r.Context(), p.Year, p.Month)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(grouped).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	u, err := ParseExpenseUpdate(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	updated, err := s.svc.UpdateExpense(r.Context(), r.PathValue("id"), u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(updated).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	NewResponse().JSON(map[string]bool{"ok": true}).Write(w)
}
