// Package server exposes the daemon's HTTP API: spell listing and casting,
// environment updates, quick edit, and an SSE event feed.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metakeyai/spelld/pkg/event"
	"github.com/metakeyai/spelld/pkg/llm"
	"github.com/metakeyai/spelld/pkg/spell"
)

// Server routes HTTP requests to the spell registry and loader. Invocation
// errors are caught at this boundary and returned as structured failure
// payloads; they never crash the process.
type Server struct {
	registry *spell.Registry
	loader   *spell.Loader
	client   *llm.Switcher
	stream   *event.Stream
	logger   *zap.Logger
	mux      *http.ServeMux
}

// New creates a Server with pre-wired routes.
func New(registry *spell.Registry, loader *spell.Loader, client *llm.Switcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		registry: registry,
		loader:   loader,
		client:   client,
		stream:   event.NewStream(),
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("/ping", s.handlePing)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/spells", s.handleSpells)
	s.mux.HandleFunc("/cast", s.handleCast)
	s.mux.HandleFunc("/env", s.handleEnv)
	s.mux.HandleFunc("/quick_edit", s.handleQuickEdit)
	s.mux.Handle("/events", s.stream)
}

// ServeHTTP implements http.Handler and delegates to the internal mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Events exposes the SSE stream so other components can publish.
func (s *Server) Events() *event.Stream {
	return s.stream
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.logger, "pong")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.logger, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"spells": s.registry.Len(),
		"llm":    s.client.Name(),
	})
}

func (s *Server) handleSpells(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.logger, s.registry.List())
}

// CastRequest allows either a script file path or inline script content.
type CastRequest struct {
	SpellID    string `json:"spellId"`
	ScriptFile string `json:"scriptFile,omitempty"`
	Script     string `json:"script,omitempty"`
	Input      string `json:"input,omitempty"`
}

// CastResponse mirrors the payload the desktop client expects.
type CastResponse struct {
	SpellID       string `json:"spellId"`
	Success       bool   `json:"success"`
	Output        string `json:"output"`
	ExecutionTime int64  `json:"executionTime"`
	Error         string `json:"error,omitempty"`
}

func (s *Server) handleCast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req CastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	scriptPath := strings.TrimSpace(req.ScriptFile)
	var cleanup func()
	if req.Script != "" {
		path, remove, err := spell.WriteTempScript(req.Script)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		scriptPath = path
		cleanup = remove
	}
	if cleanup != nil {
		defer cleanup()
	}
	if scriptPath == "" {
		desc, ok := s.registry.Lookup(req.SpellID)
		if !ok {
			http.Error(w, "no scriptFile or script content provided and spell id is not registered", http.StatusBadRequest)
			return
		}
		scriptPath = desc.ScriptPath
	}

	_ = s.stream.Send(event.NewEvent(event.EventCastStarted, req.SpellID, nil))

	resp := s.cast(r, req.SpellID, scriptPath, req.Input)

	_ = s.stream.Send(event.NewEvent(event.EventCastFinished, req.SpellID, event.CastFinishedData{
		Success:   resp.Success,
		ElapsedMs: resp.ExecutionTime,
		Error:     resp.Error,
	}))
	writeJSON(w, s.logger, resp)
}

// cast performs the load+invoke and converts every failure into a structured
// response instead of an HTTP error.
func (s *Server) cast(r *http.Request, spellID, scriptPath, input string) CastResponse {
	start := time.Now()
	unit, err := s.loader.LoadQuiet(scriptPath)
	if err != nil {
		s.logger.Warn("spell load failed", zap.String("spell", spellID), zap.Error(err))
		return CastResponse{
			SpellID:       spellID,
			ExecutionTime: time.Since(start).Milliseconds(),
			Error:         err.Error(),
		}
	}
	res := s.loader.Invoke(r.Context(), unit, input)
	resp := CastResponse{
		SpellID:       spellID,
		Success:       res.Err == nil,
		Output:        res.Output,
		ExecutionTime: res.Elapsed.Milliseconds(),
	}
	if res.Err != nil {
		s.logger.Warn("spell execution failed", zap.String("spell", spellID), zap.Error(res.Err))
		resp.Error = res.Err.Error()
	}
	return resp
}

// EnvRequest carries environment updates, the daemon's only write channel to
// its configuration.
type EnvRequest struct {
	Env map[string]string `json:"env"`
}

// EnvResponse reports which keys changed and whether the model answered.
type EnvResponse struct {
	Updated []string `json:"updated"`
	OK      bool     `json:"ok"`
	Msg     string   `json:"msg,omitempty"`
}

func (s *Server) handleEnv(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req EnvRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	updated := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		if err := os.Setenv(k, v); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		updated = append(updated, k)
	}

	s.client.Swap(llm.FromEnv())
	s.logger.Info("environment updated", zap.Strings("keys", updated), zap.String("llm", s.client.Name()))

	resp := EnvResponse{Updated: updated}
	if s.client.Available() {
		resp.OK, resp.Msg = llm.Probe(r.Context(), s.client)
	} else {
		resp.Msg = llm.EnvModel + " not configured"
	}
	writeJSON(w, s.logger, resp)
}

// QuickEditRequest carries the text to improve.
type QuickEditRequest struct {
	Text string `json:"text"`
}

// QuickEditResponse carries the improved text.
type QuickEditResponse struct {
	Result string `json:"result"`
}

func (s *Server) handleQuickEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req QuickEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	writeJSON(w, s.logger, QuickEditResponse{
		Result: llm.QuickEdit(r.Context(), s.client, req.Text),
	})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		logger.Warn("encode response failed", zap.Error(err))
	}
}
