package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/diff"
	"github.com/bodhi-compat/compatcheck/internal/suite"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DiffResponse is the body of POST /api/v1/diff.
type DiffResponse struct {
	Empty  bool        `json:"empty"`
	Report diff.Report `json:"report"`
	Text   string      `json:"text,omitempty"`
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req diff.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rep, err := req.Do()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := DiffResponse{Empty: rep.Empty(), Report: rep}
	if !rep.Empty() {
		resp.Text = rep.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// CaseSummary is one entry of GET /api/v1/cases.
type CaseSummary struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Operation   conformance.Operation `json:"operation"`
	Streaming   bool                  `json:"streaming"`
}

func (s *Server) handleListCases(w http.ResponseWriter, _ *http.Request) {
	out := make([]CaseSummary, len(s.cases))
	for i, c := range s.cases {
		out[i] = CaseSummary{Name: c.Name, Description: c.Description, Operation: c.Operation, Streaming: c.Streaming}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRunCase(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	res := s.runner.Run(r.Context(), c)
	slog.Info("case run", "case", c.Name, "outcome", res.Outcome, "user", UserFromContext(r.Context()), "request_id", RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, res)
}

// RunResponse is the body of POST /api/v1/runs.
type RunResponse struct {
	Results []conformance.Result `json:"results"`
	Summary conformance.Summary  `json:"summary"`
}

func (s *Server) handleRunSuite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Cases []string `json:"cases"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	selected, err := suite.Select(s.cases, body.Cases...)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	results := s.runner.RunSuite(r.Context(), selected, nil)
	writeJSON(w, http.StatusOK, RunResponse{Results: results, Summary: conformance.Summarize(results)})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (conformance.Case, bool) {
	name := r.PathValue("name")
	c, err := suite.Lookup(s.cases, name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return conformance.Case{}, false
	}
	return c, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
