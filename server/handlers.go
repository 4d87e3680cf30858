package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kilobridge/kilobridge/internal/chat"
	"github.com/kilobridge/kilobridge/internal/fsindex"
	"github.com/kilobridge/kilobridge/internal/orchestrator"
	"github.com/kilobridge/kilobridge/internal/provider"
	"github.com/kilobridge/kilobridge/internal/sse"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 8 << 20

type chatRequest struct {
	Mode           string            `json:"mode"`
	Messages       []chat.Message    `json:"messages"`
	ProjectContext map[string]any    `json:"project_context,omitempty"`
	CustomRules    map[string]string `json:"custom_rules,omitempty"`
}

func (c chatRequest) toRequest() orchestrator.Request {
	return orchestrator.Request{
		Mode:           c.Mode,
		Messages:       c.Messages,
		ProjectContext: c.ProjectContext,
		CustomRules:    c.CustomRules,
	}
}

type chatMeta struct {
	Mode       string `json:"mode"`
	Provenance string `json:"provenance"`
}

type chatResponse struct {
	Content string   `json:"content"`
	Meta    chatMeta `json:"meta"`
}

type executeRequest struct {
	Mode    string         `json:"mode"`
	Plan    []string       `json:"plan"`
	Context map[string]any `json:"context,omitempty"`
}

type planRequest struct {
	Messages []chat.Message `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "kilobridge backend"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := chat.Validate(body.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.cfg.Responder.Respond(r.Context(), body.toRequest())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Content: resp.Content,
		Meta: chatMeta{
			Mode:       string(resp.Mode),
			Provenance: string(resp.Provenance),
		},
	})
}

// handleChatStream answers with an event stream. Once the stream has
// started every problem, including a malformed body, is reported in-band.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	decodeErr := decodeBody(w, r, &body)
	if decodeErr == nil {
		decodeErr = chat.Validate(body.Messages)
	}

	stream := sse.NewWriter(w)
	if decodeErr != nil {
		_ = stream.Token(sse.ErrorToken(decodeErr.Error()))
		_ = stream.Done()
		return
	}
	s.cfg.Responder.RespondStream(r.Context(), body.toRequest(), stream)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AllowExecute {
		writeError(w, http.StatusForbidden, "plan execution is disabled")
		return
	}

	var body executeRequest
	decodeErr := decodeBody(w, r, &body)

	stream := sse.NewWriter(w)
	if decodeErr != nil {
		_ = stream.Token(sse.ErrorToken(decodeErr.Error()))
		_ = stream.Done()
		return
	}
	s.cfg.Responder.ExecutePlan(r.Context(), orchestrator.PlanRequest{
		Mode:    body.Mode,
		Plan:    body.Plan,
		Context: body.Context,
	}, stream)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var body planRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := chat.Validate(body.Messages); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.cfg.Planner.Plan(r.Context(), body.Messages)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFSIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	depth, err := intParam(q.Get("max_depth"), fsindex.DefaultIndexDepth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_depth")
		return
	}
	idx, err := s.cfg.Files.Index(r.Context(), q.Get("path"), depth)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

func (s *Server) handleFSRead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := intParam(q.Get("start_line"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_line")
		return
	}
	maxLines, err := intParam(q.Get("max_lines"), fsindex.DefaultSnippetLines)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_lines")
		return
	}
	snippet, err := s.cfg.Files.ReadSnippet(q.Get("path"), start, maxLines)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

func (s *Server) handleFSSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var exts []string
	for _, v := range q["ext"] {
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				exts = append(exts, e)
			}
		}
	}
	result, err := s.cfg.Files.Search(r.Context(), q.Get("q"), q.Get("path"), exts)
	if err != nil {
		writeFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps an orchestration or planner error to a response.
func writeFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, orchestrator.ErrNoUserMessage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		writeJSON(w, provider.HTTPStatus(pe.Kind), errorResponse{Error: pe.Message, Kind: string(pe.Kind)})
		return
	}
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeFSError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, fsindex.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, fsindex.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fsindex.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, fsindex.ErrInvalidPath),
		errors.Is(err, fsindex.ErrEmptyQuery),
		errors.Is(err, fsindex.ErrNotText),
		errors.Is(err, fsindex.ErrIsDir),
		errors.Is(err, fsindex.ErrNotDir):
	default:
		slog.Error("filesystem tool failed", "error", err)
		status = http.StatusInternalServerError
	}
	writeError(w, status, err.Error())
}
