package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/johndosdos/skillxchange/internal/model"
)

// APIError is a {success:false} answer from the REST API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("session: api status %d: %s", e.Status, e.Message)
}

// API is a client for the chat REST endpoints.
type API struct {
	baseURL string
	http    *http.Client
}

func NewAPI(baseURL string, client *http.Client) *API {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (a *API) History(ctx context.Context, self, peer string) ([]model.Message, error) {
	var out struct {
		Messages []model.Message `json:"messages"`
	}
	path := "/api/messages/" + url.PathEscape(self) + "/" + url.PathEscape(peer)
	if err := a.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (a *API) Send(ctx context.Context, from, to, content string) (model.Message, error) {
	var out struct {
		Message model.Message `json:"message"`
	}
	req := model.SendMessageRequest{From: from, To: to, Content: content}
	if err := a.call(ctx, http.MethodPost, "/api/messages", req, &out); err != nil {
		return model.Message{}, err
	}
	return out.Message, nil
}

func (a *API) MarkRead(ctx context.Context, self, from string) error {
	req := model.MarkReadRequest{UserID: self, FromUserID: from}
	return a.call(ctx, http.MethodPost, "/api/messages/mark-read", req, nil)
}

func (a *API) UnreadCounts(ctx context.Context, self string) (map[string]int, error) {
	var out struct {
		Counts map[string]int `json:"counts"`
	}
	if err := a.call(ctx, http.MethodGet, "/api/messages/unread-counts/"+url.PathEscape(self), nil, &out); err != nil {
		return nil, err
	}
	return out.Counts, nil
}

func (a *API) Contacts(ctx context.Context, self string) ([]model.Profile, error) {
	var out struct {
		Users []model.Profile `json:"users"`
	}
	if err := a.call(ctx, http.MethodGet, "/api/chat-contacts/contacts/"+url.PathEscape(self), nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// AuthResult is what register and login hand back.
type AuthResult struct {
	Token string        `json:"token"`
	User  model.Profile `json:"user"`
}

func (a *API) Register(ctx context.Context, req model.RegisterRequest) (AuthResult, error) {
	var out AuthResult
	if err := a.call(ctx, http.MethodPost, "/api/auth/register", req, &out); err != nil {
		return AuthResult{}, err
	}
	return out, nil
}

func (a *API) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	req := model.LoginRequest{Email: email, Password: password}
	if err := a.call(ctx, http.MethodPost, "/api/auth/login", req, &out); err != nil {
		return AuthResult{}, err
	}
	return out, nil
}

func (a *API) call(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("session: encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("session: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("session: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("session: read response: %w", err)
	}

	// message is a string on failure and a record on a successful send
	var env struct {
		Success bool            `json:"success"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("session: decode response: %w", err)
	}
	if !env.Success {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(env.Message, &apiErr.Message)
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("session: decode response: %w", err)
		}
	}
	return nil
}
