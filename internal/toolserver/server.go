package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prodscout/server/internal/agent/model"
	logx "github.com/prodscout/server/pkg/logger"
)

const maxRequestBody = 1 << 20 // 1MB

// Config configures the tool server from the environment.
type Config struct {
	Addr            string `envconfig:"TOOLSERVER_ADDR" default:":8001"`
	ShutdownTimeout int    `envconfig:"TOOLSERVER_SHUTDOWN_TIMEOUT" default:"10"`
}

// CatalogSearch is the catalog side of the tool contract.
type CatalogSearch interface {
	Search(ctx context.Context, query string, maxResults int, filters []model.Filter) ([]model.Product, error)
}

// WebSearch is the web side of the tool contract. note carries non-fatal
// degradations (e.g. provider key missing).
type WebSearch interface {
	Search(ctx context.Context, query string, maxResults int, mode string) ([]model.WebResult, string, error)
}

// Server serves the retrieval tool contract.
type Server struct {
	cfg     Config
	catalog CatalogSearch
	web     WebSearch
}

func NewServer(cfg Config, catalog CatalogSearch, web WebSearch) *Server {
	return &Server{cfg: cfg, catalog: catalog, web: web}
}

// Handler returns the HTTP handler for the tool contract.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(RouteRagSearch, s.handleRagSearch)
	mux.HandleFunc(RouteWebSearch, s.handleWebSearch)
	mux.HandleFunc(RouteHealth, s.handleHealth)
	return mux
}

// Run serves until ctx is cancelled, then drains within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.cfg.Addr).Msg("Tool server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := time.Duration(s.cfg.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logx.Info().Msg("Tool server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleRagSearch(w http.ResponseWriter, r *http.Request) {
	var req RagSearchRequest
	if !decodeToolRequest(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	for _, f := range req.Filters {
		if !model.ValidFilter(f) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid filter: field=%q op=%q", f.Field, f.Op))
			return
		}
	}

	products, err := s.catalog.Search(r.Context(), req.Query, req.MaxResults, req.Filters)
	if err != nil {
		logx.Error().Err(err).Str("route", RouteRagSearch).Msg("catalog search failed")
		writeError(w, http.StatusBadGateway, "catalog search failed")
		return
	}
	if products == nil {
		products = []model.Product{}
	}

	writeJSON(w, http.StatusOK, RagSearchResponse{Products: products, Total: len(products)})
}

func (s *Server) handleWebSearch(w http.ResponseWriter, r *http.Request) {
	var req WebSearchRequest
	if !decodeToolRequest(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	switch req.Mode {
	case "", "web", "shopping":
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q", req.Mode))
		return
	}

	results, note, err := s.web.Search(r.Context(), req.Query, req.MaxResults, req.Mode)
	if err != nil {
		logx.Error().Err(err).Str("route", RouteWebSearch).Msg("web search failed")
		writeError(w, http.StatusBadGateway, "web search failed")
		return
	}
	if results == nil {
		results = []model.WebResult{}
	}

	writeJSON(w, http.StatusOK, WebSearchResponse{Results: results, Note: note})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Server:  ServerName,
		Version: ServerVersion,
	})
}

func decodeToolRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("write response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
