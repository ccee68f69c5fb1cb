package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"paper-review-batch/internal/domain"
	"paper-review-batch/internal/domain/model"
	"paper-review-batch/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AgentAPI = (*OpenHandsAdapter)(nil)

// OpenHandsAdapter drives an OpenHands-style session API over plain HTTP:
// POST /api/sessions, POST /api/sessions/{id}/messages,
// GET /api/sessions/{id}/status, GET /api/sessions/{id}/messages.
type OpenHandsAdapter struct {
	base          string // e.g., http://localhost:3000
	apiKey        string
	agent         string
	model         string
	maxIterations int
	client        *http.Client
}

func NewOpenHandsAdapter(baseURL, apiKey, agentName, modelName string, maxIterations int, callTimeout time.Duration) (*OpenHandsAdapter, error) {
	if baseURL == "" {
		return nil, errors.New("agent base url empty")
	}
	if agentName == "" {
		agentName = "CodeActAgent"
	}
	if maxIterations <= 0 {
		maxIterations = 100
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &OpenHandsAdapter{
		base:          baseURL,
		apiKey:        apiKey,
		agent:         agentName,
		model:         modelName,
		maxIterations: maxIterations,
		client:        &http.Client{Timeout: callTimeout},
	}, nil
}

func (a *OpenHandsAdapter) Health(ctx context.Context) error {
	var payload struct {
		Status string `json:"status"`
	}
	if err := a.do(ctx, http.MethodGet, "/health", nil, &payload); err != nil {
		return err
	}
	if payload.Status != "healthy" && payload.Status != "ok" {
		return fmt.Errorf("%w: status %q", domain.ErrUnhealthy, payload.Status)
	}
	return nil
}

func (a *OpenHandsAdapter) StartSession(ctx context.Context, prompt string) (string, error) {
	reqBody := struct {
		Agent string `json:"agent"`
		Args  struct {
			ModelName     string `json:"model_name"`
			MaxIterations int    `json:"max_iterations"`
		} `json:"args"`
	}{Agent: a.agent}
	reqBody.Args.ModelName = a.model
	reqBody.Args.MaxIterations = a.maxIterations

	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/sessions", reqBody, &created); err != nil {
		return "", err
	}
	if created.SessionID == "" {
		return "", &domain.APIError{Message: "start response missing session_id"}
	}

	// The task prompt is delivered as the first user message of the session.
	msg := struct {
		Message     string `json:"message"`
		MessageType string `json:"message_type"`
	}{Message: prompt, MessageType: "user"}
	if err := a.do(ctx, http.MethodPost, "/api/sessions/"+created.SessionID+"/messages", msg, nil); err != nil {
		return "", err
	}
	return created.SessionID, nil
}

func (a *OpenHandsAdapter) Status(ctx context.Context, sessionID string) (adapter.SessionStatus, error) {
	var payload struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/status", nil, &payload); err != nil {
		return adapter.SessionStatus{}, err
	}
	switch payload.Status {
	case "running", "pending", "processing":
		return adapter.SessionStatus{State: adapter.RemoteRunning}, nil
	case "completed", "finished":
		return adapter.SessionStatus{State: adapter.RemoteFinished}, nil
	case "error", "failed":
		return adapter.SessionStatus{State: adapter.RemoteError, Err: payload.Error}, nil
	}
	return adapter.SessionStatus{}, &domain.APIError{Message: fmt.Sprintf("unknown session status %q", payload.Status)}
}

func (a *OpenHandsAdapter) Messages(ctx context.Context, sessionID string, sinceOffset int) ([]model.Message, error) {
	path := "/api/sessions/" + sessionID + "/messages"
	if sinceOffset > 0 {
		path += "?offset=" + strconv.Itoa(sinceOffset)
	}
	var payload struct {
		Messages []struct {
			Role      string     `json:"role"`
			Content   string     `json:"content"`
			Timestamp *time.Time `json:"timestamp"`
		} `json:"messages"`
	}
	if err := a.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}

	msgs := make([]model.Message, 0, len(payload.Messages))
	for i, m := range payload.Messages {
		if m.Role == "" || m.Content == "" {
			return nil, &domain.APIError{Message: fmt.Sprintf("message %d missing role or content", sinceOffset+i)}
		}
		ts := time.Now()
		if m.Timestamp != nil {
			ts = *m.Timestamp
		}
		msgs = append(msgs, model.Message{Role: m.Role, Content: m.Content, Timestamp: ts})
	}
	return msgs, nil
}

// do performs one JSON round trip. Non-2xx responses become *domain.APIError
// carrying the status code and a body snippet for classification upstream.
func (a *OpenHandsAdapter) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.APIError{StatusCode: resp.StatusCode, Message: string(snippet)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.APIError{Message: fmt.Sprintf("decode %s %s: %v", method, path, err)}
	}
	return nil
}
