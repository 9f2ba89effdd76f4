package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	pe "github.com/brightpath-pm/billflow/internal/errors"
	"github.com/brightpath-pm/billflow/internal/entrata"
	"github.com/brightpath-pm/billflow/internal/review"
	"github.com/brightpath-pm/billflow/internal/sidecar"
	"github.com/brightpath-pm/billflow/internal/stage"
	"github.com/brightpath-pm/billflow/internal/ubi"
)

// parseDate parses the YYYY-MM-DD query/body form into a partition date.
func parseDate(s string) (review.Date, error) {
	var d review.Date
	if _, err := fmt.Sscanf(s, "%4d-%2d-%2d", &d.Year, &d.Month, &d.Day); err != nil {
		return d, pe.Newf(pe.KindValidation, "invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

// decode parses a JSON body into dst.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return pe.Wrap(err, pe.KindValidation, "invalid request body")
	}
	return nil
}

// fail logs the full error and replies with the sanitized message.
func (s *Server) fail(w http.ResponseWriter, err error) {
	slog.Error("API request failed", "error", err)
	code := http.StatusInternalServerError
	switch pe.KindOf(err) {
	case pe.KindValidation:
		code = http.StatusBadRequest
	case pe.KindNotFound:
		code = http.StatusNotFound
	case pe.KindAccessDenied:
		code = http.StatusForbidden
	}
	s.Error(w, code, pe.Sanitize(err))
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.reviewSvc.ListDates(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, dates)
}

func (s *Server) handleInvoices(w http.ResponseWriter, r *http.Request) {
	d, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		s.fail(w, err)
		return
	}
	lines, err := s.reviewSvc.LinesForDate(r.Context(), d)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, lines)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PDFIDs []string `json:"pdf_ids"`
		Date   string   `json:"date"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	d, err := parseDate(req.Date)
	if err != nil {
		s.fail(w, err)
		return
	}
	keys, err := s.builder.Build(r.Context(), d, req.PDFIDs)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *Server) handlePostToEntrata(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keys            []string          `json:"keys"`
		VendorOverrides map[string]string `json:"vendor_overrides,omitempty"`
		PostMonth       string            `json:"post_month,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	// Only Stage 6 keys are postable; everything else is rejected before
	// any read happens.
	for _, k := range req.Keys {
		if !stage.Allowed(k) || !hasPrefix(k, stage.PreEntrata) {
			s.fail(w, pe.Newf(pe.KindValidation, "key %q is not a pre-entrata key", k))
			return
		}
	}
	results := s.orchestrator.PostKeys(r.Context(), req.Keys, entrata.PostOptions{
		VendorOverrides: req.VendorOverrides,
		PostMonth:       req.PostMonth,
	})
	s.Success(w, http.StatusOK, results)
}

func hasPrefix(key, prefix string) bool {
	return len(key) > len(prefix) && key[:len(prefix)] == prefix
}

type bulkRequest struct {
	PDFIDs     []string `json:"pdf_ids"`
	Date       string   `json:"date"`
	PropertyID string   `json:"property_id,omitempty"`
	VendorID   string   `json:"vendor_id,omitempty"`
	Reviewer   string   `json:"reviewer,omitempty"`
}

func (s *Server) handleBulkAssignProperty(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	d, err := parseDate(req.Date)
	if err != nil {
		s.fail(w, err)
		return
	}
	if req.PropertyID == "" {
		s.fail(w, pe.New(pe.KindValidation, "property_id is required"))
		return
	}
	n, err := s.reviewSvc.BulkAssignProperty(r.Context(), d, req.PDFIDs, req.PropertyID, req.Reviewer)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleBulkAssignVendor(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	d, err := parseDate(req.Date)
	if err != nil {
		s.fail(w, err)
		return
	}
	if req.VendorID == "" {
		s.fail(w, pe.New(pe.KindValidation, "vendor_id is required"))
		return
	}
	n, err := s.reviewSvc.BulkAssignVendor(r.Context(), d, req.PDFIDs, req.VendorID, req.Reviewer)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) handleBulkRework(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PDFIDs            []string `json:"pdf_ids"`
		Date              string   `json:"date"`
		Reason            string   `json:"reason,omitempty"`
		ExpectedLineCount int      `json:"expected_line_count,omitempty"`
		BillFrom          string   `json:"bill_from,omitempty"`
		RequestedBy       string   `json:"requested_by,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	d, err := parseDate(req.Date)
	if err != nil {
		s.fail(w, err)
		return
	}
	n, err := s.reviewSvc.Rework(r.Context(), d, req.PDFIDs, sidecar.Hints{
		ExpectedLineCount: req.ExpectedLineCount,
		BillFrom:          req.BillFrom,
		Reason:            req.Reason,
		RequestedBy:       req.RequestedBy,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, map[string]int{"flagged": n})
}

func (s *Server) dateRange(r *http.Request) (ubi.DateRange, error) {
	q := r.URL.Query()
	return ubi.ParseDateRange(q.Get("start"), q.Get("end"))
}

func (s *Server) handleListUnassigned(w http.ResponseWriter, r *http.Request) {
	s.handleList(w, r, s.engine.ListUnassigned)
}

func (s *Server) handleListAssigned(w http.ResponseWriter, r *http.Request) {
	s.handleList(w, r, s.engine.ListAssigned)
}

func (s *Server) handleListArchived(w http.ResponseWriter, r *http.Request) {
	s.handleList(w, r, s.engine.ListArchived)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request,
	list func(ctx context.Context, dr ubi.DateRange) ([]ubi.Line, error)) {

	dr, err := s.dateRange(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	lines, err := list(r.Context(), dr)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, lines)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	lineID := r.URL.Query().Get("line_id")
	if lineID == "" {
		s.fail(w, pe.New(pe.KindValidation, "line_id is required"))
		return
	}
	suggestions, err := s.engine.Suggest(r.Context(), lineID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, suggestions)
}

func (s *Server) handleStatsByProperty(w http.ResponseWriter, r *http.Request) {
	dr, err := s.dateRange(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	stats, err := s.engine.StatsByProperty(r.Context(), dr)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, stats)
}

type assignRequest struct {
	LineID     string       `json:"line_id"`
	PropertyID string       `json:"property_id"`
	Periods    []ubi.Period `json:"periods"`
	AssignedBy string       `json:"assigned_by,omitempty"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	hash, err := s.engine.Assign(r.Context(), req.LineID, req.PropertyID, req.Periods, req.AssignedBy)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, map[string]string{"line_hash": hash})
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	hash, err := s.engine.Reassign(r.Context(), req.LineID, req.PropertyID, req.Periods, req.AssignedBy)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, map[string]string{"line_hash": hash})
}

func (s *Server) handleUnassign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LineHash string `json:"line_hash"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.Unassign(r.Context(), req.LineHash); err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, nil)
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LineHash string `json:"line_hash"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.engine.Archive(r.Context(), req.LineHash); err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, nil)
}

func (s *Server) handleMasterBills(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start string `json:"start,omitempty"`
		End   string `json:"end,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	dr, err := ubi.ParseDateRange(req.Start, req.End)
	if err != nil {
		s.fail(w, err)
		return
	}
	bills, err := s.engine.MasterBills(r.Context(), dr)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Success(w, http.StatusOK, bills)
}
