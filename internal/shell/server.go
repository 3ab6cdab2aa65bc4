package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chronicle/editor/internal/auth"
	"chronicle/editor/internal/history"
	"chronicle/editor/internal/search"
	"chronicle/editor/internal/workspace"
)

const flushTimeout = 10 * time.Second

// SessionFactory builds an unloaded session for the scope and permission of
// an embed token.
type SessionFactory func(claims auth.Claims) (*workspace.Session, error)

// HistoryReader serves saved page history.
type HistoryReader interface {
	History(docID string, limit int) ([]history.Commit, error)
	Snapshot(docID, hash string) (string, error)
}

type Options struct {
	Secret     []byte
	Factory    SessionFactory
	Search     *search.Service
	History    HistoryReader
	Ready      func(ctx context.Context) error
	CORSOrigin string
}

// Server exposes editing sessions over JSON. One session is kept per scope
// and permission; every request carries the embed token that selects it.
type Server struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*workspace.Session
}

func NewServer(opts Options) *Server {
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	if opts.Search == nil {
		opts.Search = search.NewService(nil)
	}
	return &Server{opts: opts, sessions: make(map[string]*workspace.Session)}
}

func (s *Server) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// Close flushes and detaches every session.
func (s *Server) Close(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*workspace.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = make(map[string]*workspace.Session)
	s.mu.Unlock()
	for _, session := range sessions {
		session.Close(ctx)
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "pages":
		s.handlePages(w, r, session, parts[2:])
	case "content":
		s.handleContent(w, r, session, parts[2:])
	case "drag":
		s.handleDrag(w, r, session, parts[2:])
	case "search":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		resp := s.opts.Search.Search(search.Query{
			Text:    r.URL.Query().Get("q"),
			ScopeID: session.Scope().ID(),
			Limit:   limit,
		}, session.Pages())
		writeJSON(w, http.StatusOK, resp)
	case "session":
		if len(parts) == 3 && parts[2] == "clear-expired" && r.Method == http.MethodPost {
			session.ClearExpired()
			writeJSON(w, http.StatusOK, session.View())
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"store": map[string]any{"status": "ok"},
	}
	if s.opts.Ready != nil {
		if err := s.opts.Ready(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request, session *workspace.Session, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, session.View())
		case http.MethodPost:
			var body struct {
				ParentID *string `json:"parentId"`
				Title    string  `json:"title"`
				Open     bool    `json:"open"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			created, err := session.Create(ctx, body.ParentID, body.Title)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			if body.Open {
				if err := session.Open(ctx, created.ID); err != nil {
					writeMappedError(w, err)
					return
				}
			}
			writeJSON(w, http.StatusCreated, created)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 1 && parts[0] == "refresh" && r.Method == http.MethodPost {
		if err := session.Refresh(ctx); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session.View())
		return
	}

	pageID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			page, ok := session.Page(pageID)
			if !ok {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
				return
			}
			writeJSON(w, http.StatusOK, page)
		case http.MethodPatch:
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := session.Rename(ctx, pageID, body.Title); err != nil {
				writeMappedError(w, err)
				return
			}
			page, _ := session.Page(pageID)
			writeJSON(w, http.StatusOK, page)
		case http.MethodDelete:
			if err := session.Delete(ctx, pageID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, session.View())
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case parts[1] == "open" && r.Method == http.MethodPost:
		if err := session.Open(ctx, pageID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, contentResponse(session))

	case parts[1] == "move" && r.Method == http.MethodPost:
		var body struct {
			ParentID *string `json:"parentId"`
			Index    *int    `json:"index"`
			Slot     *int    `json:"slot"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		var err error
		switch {
		case body.Slot != nil:
			err = session.MoveToSlot(ctx, pageID, body.ParentID, *body.Slot)
		case body.Index != nil:
			err = session.Move(ctx, pageID, body.ParentID, *body.Index)
		default:
			err = session.MoveToSlot(ctx, pageID, body.ParentID, session.AppendSlot(body.ParentID))
		}
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session.View())

	case parts[1] == "history" && r.Method == http.MethodGet:
		s.handleHistory(w, r, session, pageID, parts[2:])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, session *workspace.Session, pageID string, parts []string) {
	if s.opts.History == nil {
		writeError(w, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "History is not configured", nil)
		return
	}
	if _, ok := session.Page(pageID); !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if len(parts) == 0 {
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = 50
		}
		commits, err := s.opts.History.History(pageID, limit)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pageId": pageID, "commits": commits})
		return
	}
	content, err := s.opts.History.Snapshot(pageID, parts[0])
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pageId": pageID, "hash": parts[0], "content": content})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request, session *workspace.Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, contentResponse(session))

	case len(parts) == 0 && r.Method == http.MethodPut:
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if session.ActiveID() == "" {
			writeMappedError(w, domainError(http.StatusConflict, "NO_ACTIVE_PAGE", "No page is open", nil))
			return
		}
		session.Edit(body.Content)
		writeJSON(w, http.StatusAccepted, contentResponse(session))

	case len(parts) == 1 && parts[0] == "flush" && r.Method == http.MethodPost:
		ctx, cancel := context.WithTimeout(r.Context(), flushTimeout)
		defer cancel()
		select {
		case <-session.Flush():
		case <-ctx.Done():
		}
		writeJSON(w, http.StatusOK, contentResponse(session))

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *Server) handleDrag(w http.ResponseWriter, r *http.Request, session *workspace.Session, parts []string) {
	if len(parts) != 1 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch parts[0] {
	case "begin":
		var body struct {
			ID string `json:"id"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := session.BeginDrag(body.ID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"dragId": body.ID})
	case "propose":
		var body struct {
			ParentID *string `json:"parentId"`
			Slot     *int    `json:"slot"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		slot := session.AppendSlot(body.ParentID)
		if body.Slot != nil {
			slot = *body.Slot
		}
		preview, err := session.ProposeDrop(body.ParentID, slot)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"accepted": true, "updates": preview.Updates})
	case "commit":
		if err := session.CommitDrop(r.Context()); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session.View())
	case "cancel":
		session.CancelDrag()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// requireSession resolves the bearer embed token to its session, loading the
// scope the first time it is seen.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (*workspace.Session, bool) {
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return nil, false
	}
	claims, err := auth.ParseToken(s.opts.Secret, token)
	if err != nil {
		writeMappedError(w, err)
		return nil, false
	}
	session, err := s.sessionFor(r.Context(), claims)
	if err != nil {
		writeMappedError(w, err)
		return nil, false
	}
	return session, true
}

// sessionFor returns the cached session for the token's scope and
// permission, loading one on first use. The token's docId only picks the
// page a new session opens on; a cached session keeps its active page.
func (s *Server) sessionFor(ctx context.Context, claims auth.Claims) (*workspace.Session, error) {
	key := claims.Scope().ID() + "|" + string(claims.Perm())

	s.mu.Lock()
	session, ok := s.sessions[key]
	s.mu.Unlock()
	if ok {
		return session, nil
	}

	created, err := s.opts.Factory(claims)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := created.Refresh(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	session, ok = s.sessions[key]
	if !ok {
		s.sessions[key] = created
	}
	s.mu.Unlock()
	if ok {
		// Lost the race to a concurrent first request.
		created.Close(ctx)
		return session, nil
	}
	log.Printf("shell: opened session for %s (%s)", claims.Scope().ID(), claims.Perm())
	return created, nil
}

func contentResponse(session *workspace.Session) map[string]any {
	return map[string]any{
		"pageId":  session.ActiveID(),
		"content": session.Content(),
		"save":    session.View().Save,
	}
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.opts.CORSOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("shell: %s: %v", code, err)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
