package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/agents"
	"github.com/talentcomp/comprec/internal/auth"
	"github.com/talentcomp/comprec/internal/compdata"
	"github.com/talentcomp/comprec/internal/metrics"
	"github.com/talentcomp/comprec/internal/models"
	"github.com/talentcomp/comprec/internal/streaming"
)

// Turner runs one chat turn. *agents.Workflow satisfies it.
type Turner interface {
	Run(ctx context.Context, in agents.TurnInput) (*agents.TurnResult, error)
}

// ContextStore is the candidate-context surface the API exposes.
type ContextStore interface {
	Get(ctx context.Context, candidateID string) (*models.CandidateContext, error)
	SaveReplace(ctx context.Context, candidateID string, upd models.ContextUpdate, actor string) (*models.CandidateContext, error)
	Reset(ctx context.Context, candidateID, actor string) (bool, error)
	AuditLog(ctx context.Context, candidateID string) ([]models.AuditEntry, error)
	ListByState(ctx context.Context, state models.CandidateState) ([]models.CandidateContext, error)
}

// SessionStore exposes the per-user current-candidate pointer.
type SessionStore interface {
	CurrentCandidate(ctx context.Context, userEmail string) (string, error)
	ClearCurrentCandidate(ctx context.Context, userEmail string) error
}

// MessageStore persists transcripts and feedback.
type MessageStore interface {
	Append(ctx context.Context, rec models.MessageRecord) error
	Recent(ctx context.Context, userEmail string, limit int, candidateID string) ([]models.MessageRecord, error)
	All(ctx context.Context, userEmail string) ([]models.MessageRecord, error)
	SaveFeedback(ctx context.Context, rec models.FeedbackRecord) error
}

// Catalog serves the data-file metadata used by clients for input hints.
type Catalog interface {
	Metadata() *compdata.Metadata
}

// Config tunes the HTTP layer.
type Config struct {
	Version         string
	RateLimitPerMin int
}

// Server wires the chat pipeline and stores to HTTP.
type Server struct {
	workflow Turner
	contexts ContextStore
	sessions SessionStore
	messages MessageStore
	catalog  Catalog
	users    *auth.Directory
	jwt      *auth.JWTManager
	streams  *streaming.Manager
	limiter  *userLimiter
	logger   *zap.Logger
	version  string
}

func NewServer(
	workflow Turner,
	contexts ContextStore,
	sessions SessionStore,
	messages MessageStore,
	catalog Catalog,
	users *auth.Directory,
	jwt *auth.JWTManager,
	streams *streaming.Manager,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{
		workflow: workflow,
		contexts: contexts,
		sessions: sessions,
		messages: messages,
		catalog:  catalog,
		users:    users,
		jwt:      jwt,
		streams:  streams,
		limiter:  newUserLimiter(cfg.RateLimitPerMin),
		logger:   logger,
		version:  cfg.Version,
	}
}

// Handler builds the full route table. Everything under /api except login
// requires a bearer token.
func (s *Server) Handler() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/chat", s.handleChat)
	protected.HandleFunc("GET /api/chat/stream", s.handleChatSSE)
	protected.HandleFunc("GET /api/chat/ws", s.handleChatWS)
	protected.HandleFunc("GET /api/context/{id}", s.handleContextGet)
	protected.HandleFunc("PUT /api/context/{id}", s.handleContextReplace)
	protected.HandleFunc("POST /api/context/{id}/reset", s.handleContextReset)
	protected.HandleFunc("GET /api/audit/{id}", s.handleAudit)
	protected.HandleFunc("GET /api/messages", s.handleMessages)
	protected.HandleFunc("GET /api/messages/all", s.handleMessagesAll)
	protected.HandleFunc("GET /api/user/current-candidate", s.handleCurrentCandidate)
	protected.HandleFunc("GET /api/user/candidates", s.handleCandidates)
	protected.HandleFunc("POST /api/feedback", s.handleFeedback)
	protected.HandleFunc("GET /api/metadata", s.handleMetadata)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("/api/", auth.Middleware(s.jwt)(s.limiter.middleware(protected)))

	return instrument(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "comprec",
		"version": s.version,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing email or password")
		return
	}

	user, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		s.logger.Warn("login failed", zap.String("email", req.Email))
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := s.jwt.Generate(user)
	if err != nil {
		s.logger.Error("token generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	currentID, _ := s.sessions.CurrentCandidate(r.Context(), user.Email)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(s.jwt.TTL().Seconds()),
		"user": map[string]interface{}{
			"email":     user.Email,
			"name":      user.Name,
			"user_type": user.UserType,
		},
		"current_candidate_id": currentID,
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Metadata())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// instrument counts requests by normalized path and status.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(metricsPath(r.URL.Path), strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps websocket upgrades working through the wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := r.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// metricsPath collapses per-candidate path segments so the label set stays
// bounded.
func metricsPath(path string) string {
	for _, prefix := range []string{"/api/context/", "/api/audit/"} {
		if rest, ok := strings.CutPrefix(path, prefix); ok {
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				return prefix + ":id" + rest[i:]
			}
			return prefix + ":id"
		}
	}
	return path
}
