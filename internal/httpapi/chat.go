package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/agents"
	"github.com/talentcomp/comprec/internal/auth"
	"github.com/talentcomp/comprec/internal/metrics"
	"github.com/talentcomp/comprec/internal/models"
	"github.com/talentcomp/comprec/internal/streaming"
	"github.com/talentcomp/comprec/internal/tracing"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // secured via proxy in prod
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// handleChat runs one turn synchronously and returns the full result.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}

	requestID := uuid.NewString()
	res, err := s.runTurn(r.Context(), identity, req.Message, requestID, req.SessionID)
	if err != nil {
		s.logger.Error("turn failed", zap.String("request_id", requestID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, turnPayload(requestID, res))
}

// handleChatSSE streams turn progress over Server-Sent Events. The message
// rides in the query string; EventSource cannot send a body.
// GET /api/chat/stream?message=...&session_id=...
func (s *Server) handleChatSSE(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	message := r.URL.Query().Get("message")
	if message == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}
	sessionID := r.URL.Query().Get("session_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	requestID := uuid.NewString()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	// Subscribe before starting the turn so no event is missed.
	ch := s.streams.Subscribe(requestID, 256)
	defer func() {
		s.streams.Unsubscribe(requestID, ch)
		s.streams.Forget(requestID)
	}()

	resCh := make(chan *agents.TurnResult, 1)
	go func() {
		res, err := s.runTurn(r.Context(), identity, message, requestID, sessionID)
		if err != nil {
			s.streams.Publish(requestID, streaming.Event{
				Type:    streaming.EventError,
				Message: "internal error",
			})
			s.logger.Error("turn failed", zap.String("request_id", requestID), zap.Error(err))
		}
		resCh <- res
	}()

	fmt.Fprintf(w, ": connected %s\n\n", requestID)
	flusher.Flush()

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SSE client disconnected", zap.String("request_id", requestID))
			return
		case evt := <-ch:
			if evt.Type == streaming.EventResponse {
				if res := <-resCh; res != nil {
					evt.Payload = turnPayload(requestID, res)
				}
				writeSSE(w, evt)
				flusher.Flush()
				return
			}
			writeSSE(w, evt)
			flusher.Flush()
			if evt.Type == streaming.EventError {
				return
			}
		case <-hb.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt streaming.Event) {
	fmt.Fprintf(w, "id: %d\n", evt.Seq)
	if evt.Type != "" {
		fmt.Fprintf(w, "event: %s\n", evt.Type)
	}
	fmt.Fprintf(w, "data: %s\n\n", string(evt.Marshal()))
}

// handleChatWS serves chat over a websocket. Each client frame is one turn;
// the server streams progress events and a final response frame per turn.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Message == "" {
			if err := conn.WriteJSON(map[string]string{"error": "message required"}); err != nil {
				return
			}
			continue
		}
		if !s.streamTurn(r.Context(), conn, identity, req) {
			return
		}
	}
}

// streamTurn runs one turn and forwards its events over the connection.
// Returns false when the connection is no longer usable.
func (s *Server) streamTurn(ctx context.Context, conn *websocket.Conn, identity *auth.Identity, req chatRequest) bool {
	requestID := uuid.NewString()

	ch := s.streams.Subscribe(requestID, 256)
	defer func() {
		s.streams.Unsubscribe(requestID, ch)
		s.streams.Forget(requestID)
	}()

	resCh := make(chan *agents.TurnResult, 1)
	go func() {
		res, err := s.runTurn(ctx, identity, req.Message, requestID, req.SessionID)
		if err != nil {
			s.streams.Publish(requestID, streaming.Event{
				Type:    streaming.EventError,
				Message: "internal error",
			})
			s.logger.Error("turn failed", zap.String("request_id", requestID), zap.Error(err))
		}
		resCh <- res
	}()

	for {
		select {
		case <-ctx.Done():
			return false
		case evt := <-ch:
			if evt.Type == streaming.EventResponse {
				if res := <-resCh; res != nil {
					evt.Payload = turnPayload(requestID, res)
				}
				return conn.WriteJSON(evt) == nil
			}
			if err := conn.WriteJSON(evt); err != nil {
				return false
			}
			if evt.Type == streaming.EventError {
				return true
			}
		}
	}
}

// runTurn executes the pipeline and appends the exchange to the transcript.
func (s *Server) runTurn(ctx context.Context, identity *auth.Identity, message, requestID, sessionID string) (*agents.TurnResult, error) {
	ctx, span := tracing.StartTurnSpan(ctx, requestID, identity.Email)
	defer span.End()

	res, err := s.workflow.Run(ctx, agents.TurnInput{
		Message:   message,
		UserEmail: identity.Email,
		UserType:  identity.UserType,
		RequestID: requestID,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.messages.Append(ctx, models.MessageRecord{
		UserEmail:   identity.Email,
		Message:     message,
		Response:    res.Response,
		SessionID:   sessionID,
		RequestID:   requestID,
		CandidateID: res.CandidateID,
	}); err != nil {
		s.logger.Warn("transcript append failed", zap.String("request_id", requestID), zap.Error(err))
	}
	return res, nil
}

// turnPayload is the client-facing result of one turn. History rides along
// newest-first so clients can render the latest recommendation without
// sorting.
func turnPayload(requestID string, res *agents.TurnResult) map[string]interface{} {
	payload := map[string]interface{}{
		"request_id": requestID,
		"response":   res.Response,
	}
	if res.CandidateID != "" {
		payload["candidate_id"] = res.CandidateID
	}
	if res.Recommendation != nil {
		payload["recommendation"] = res.Recommendation
	}
	if len(res.MissingFields) > 0 {
		payload["missing_fields"] = res.MissingFields
	}
	if res.Context != nil && len(res.Context.RecommendationHistory) > 0 {
		payload["recommendation_history"] = historyNewestFirst(res.Context.RecommendationHistory)
	}
	return payload
}

func historyNewestFirst(history []models.RecommendationHistoryItem) []models.RecommendationHistoryItem {
	out := make([]models.RecommendationHistoryItem, len(history))
	for i, item := range history {
		out[len(history)-1-i] = item
	}
	return out
}
