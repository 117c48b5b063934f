package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/retention-agent/internal/domain"
	"github.com/ashureev/retention-agent/internal/store"
	"github.com/go-chi/chi/v5"
)

// Gateway is the decision entry point the handlers delegate to.
type Gateway interface {
	Submit(ctx context.Context, threadID string, decision domain.Decision) (domain.Outcome, error)
	Thread(ctx context.Context, threadID string) (*domain.Thread, error)
	Status(thread *domain.Thread) domain.ThreadStatus
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
	Message  string `json:"message,omitempty"`
	Action   string `json:"action,omitempty"`
}

// Decision validates the request and converts it to a decision.
func (r ChatRequest) Decision() (domain.Decision, error) {
	hasMessage := strings.TrimSpace(r.Message) != ""
	hasAction := strings.TrimSpace(r.Action) != ""
	switch {
	case hasMessage && hasAction:
		return domain.Decision{}, errors.New("provide either message or action, not both")
	case hasMessage:
		return domain.NewMessage(r.Message), nil
	case hasAction:
		return domain.ParseAction(r.Action)
	default:
		return domain.Decision{}, errors.New("either message or action is required")
	}
}

// ChatHandler serves the chat contract and thread inspection endpoints.
type ChatHandler struct {
	gateway Gateway
	newID   func() string
	logger  *slog.Logger
}

// NewChatHandler creates a chat handler. newID allocates ids for POST /api/threads.
func NewChatHandler(gateway Gateway, newID func() string, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{gateway: gateway, newID: newID, logger: logger}
}

// RegisterRoutes registers chat and thread routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.Chat)
	r.Route("/api/threads", func(r chi.Router) {
		r.Post("/", h.CreateThread)
		r.Get("/{threadID}", h.GetThread)
	})
}

// Chat handles POST /chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, err := req.Decision()
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.gateway.Submit(r.Context(), req.ThreadID, decision)
	if err != nil {
		h.logger.Debug("chat request failed", "thread_id", outcome.ThreadID, "kind", outcome.ErrorKind, "error", err)
	}
	status, body := outcomeBody(outcome)
	JSON(w, status, body)
}

// CreateThread handles POST /api/threads.
func (h *ChatHandler) CreateThread(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusCreated, map[string]string{"thread_id": h.newID()})
}

// ThreadView is the inspection shape of a stored thread.
type ThreadView struct {
	*domain.Thread
	Status domain.ThreadStatus `json:"status"`
}

// GetThread handles GET /api/threads/{threadID}.
func (h *ChatHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	thread, err := h.gateway.Thread(r.Context(), threadID)
	switch {
	case errors.Is(err, store.ErrThreadNotFound):
		Error(w, http.StatusNotFound, "thread not found")
		return
	case err != nil:
		h.logger.Error("failed to load thread", "thread_id", threadID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load thread")
		return
	}
	JSON(w, http.StatusOK, ThreadView{Thread: thread, Status: h.gateway.Status(thread)})
}

// outcomeBody renders an outcome as the chat contract body.
func outcomeBody(o domain.Outcome) (int, map[string]any) {
	switch o.Status {
	case domain.OutcomeCompleted:
		return http.StatusOK, map[string]any{
			"status":    string(o.Status),
			"response":  o.Response,
			"thread_id": o.ThreadID,
		}
	case domain.OutcomeRequiresAction:
		var (
			tool string
			args = map[string]any{}
		)
		if o.Action != nil {
			tool = o.Action.Name
			if o.Action.Arguments != nil {
				args = o.Action.Arguments
			}
		}
		return http.StatusOK, map[string]any{
			"status":    string(o.Status),
			"tool":      tool,
			"args":      args,
			"thread_id": o.ThreadID,
			"message":   o.Message,
		}
	case domain.OutcomeStopped:
		return http.StatusOK, map[string]any{
			"status":    string(o.Status),
			"reason":    o.Reason,
			"thread_id": o.ThreadID,
		}
	default:
		msg := o.Message
		if msg == "" {
			msg = "Internal error."
		}
		return statusForKind(o.ErrorKind), map[string]any{
			"status":  string(domain.OutcomeError),
			"message": msg,
		}
	}
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorKindClientInput:
		return http.StatusBadRequest
	case domain.ErrorKindEngineUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
