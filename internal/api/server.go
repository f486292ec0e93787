// Package api serves conformance cases, ad-hoc diffs and suite runs over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/bodhi-compat/compatcheck/internal/agui"
	"github.com/bodhi-compat/compatcheck/internal/conformance"
)

// Runner runs conformance cases.
type Runner interface {
	agui.CaseRunner
	RunSuite(ctx context.Context, cases []conformance.Case, onResult func(conformance.Result)) []conformance.Result
}

// Server is the HTTP API server for compatibility checks.
type Server struct {
	runner  Runner
	cases   []conformance.Case
	mux     *http.ServeMux
	handler http.Handler
}

// New creates a Server running cases with runner. When oidcCfg is enabled
// every endpoint except health requires a bearer token from the issuer.
func New(ctx context.Context, runner Runner, cases []conformance.Case, corsOrigins []string, oidcCfg OIDCConfig) (*Server, error) {
	s := &Server{runner: runner, cases: cases, mux: http.NewServeMux()}
	s.routes()

	var h http.Handler = s.mux
	if oidcCfg.Enabled {
		provider, err := oidc.NewProvider(ctx, oidcCfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("api: oidc provider: %w", err)
		}
		h = oidcAuth(provider, oidcCfg.Audience)(h)
	}
	s.handler = requestID(logging(cors(corsOrigins, h)))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) suite() []conformance.Case {
	return s.cases
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/diff", s.handleDiff)
	s.mux.HandleFunc("GET /api/v1/cases", s.handleListCases)
	s.mux.HandleFunc("GET /api/v1/cases/{name}", s.handleGetCase)
	s.mux.HandleFunc("POST /api/v1/cases/{name}/run", s.handleRunCase)
	s.mux.HandleFunc("POST /api/v1/runs", s.handleRunSuite)
	s.mux.HandleFunc("GET /api/v1/runs/stream", agui.StreamHandler(s.runner, s.suite, agui.DefaultConfig()))
}
