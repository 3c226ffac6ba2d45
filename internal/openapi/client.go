// Package openapi is a client for the vendor session-provisioning API.
package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"live-avatar-demo/internal/models"
)

const (
	defaultTimeout = 30 * time.Second

	// CodeSuccess is the application-level success code of every response
	CodeSuccess = 1000

	pathSessionCreate = "/api/open/v4/liveAvatar/session/create"
	pathSessionClose  = "/api/open/v4/liveAvatar/session/close"
	pathLanguageList  = "/api/open/v3/language/list"
	pathVoiceList     = "/api/open/v3/voice/list"
	pathAvatarList    = "/api/open/v4/liveAvatar/avatar/list"
)

// Client provides access to the provisioning API
type Client struct {
	host       string
	token      string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the client logger
func WithLogger(logger *zap.SugaredLogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new provisioning API client
func NewClient(host, token string, opts ...ClientOption) *Client {
	c := &Client{
		host:  strings.TrimRight(host, "/"),
		token: token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// response is the envelope every endpoint answers with
type response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// CreateSessionRequest is the body of a create-session call
type CreateSessionRequest struct {
	AvatarID string `json:"avatar_id"`
	Duration int    `json:"duration"`
}

// CreateSession provisions a new avatar session. Duration is in seconds.
func (c *Client) CreateSession(ctx context.Context, avatarID string, durationSeconds int) (*models.Session, error) {
	c.logger.Infow("CreateSession started", "avatar_id", avatarID, "duration", durationSeconds)

	var session models.Session
	err := c.do(ctx, http.MethodPost, pathSessionCreate, CreateSessionRequest{
		AvatarID: avatarID,
		Duration: durationSeconds,
	}, &session)
	if err != nil {
		c.logger.Warnw("CreateSession failed", "avatar_id", avatarID, "err", err)
		return nil, err
	}

	session.AvatarID = avatarID
	session.Duration = durationSeconds
	c.logger.Infow("CreateSession completed", "session_id", session.ID, "channel", session.ConnectionCredentials().Channel)
	return &session, nil
}

// CloseSession closes a provisioned session
func (c *Client) CloseSession(ctx context.Context, id string) error {
	c.logger.Infow("CloseSession started", "session_id", id)

	if err := c.do(ctx, http.MethodPost, pathSessionClose, map[string]string{"id": id}, nil); err != nil {
		c.logger.Warnw("CloseSession failed", "session_id", id, "err", err)
		return err
	}

	c.logger.Infow("CloseSession completed", "session_id", id)
	return nil
}

// ListLanguages returns the languages the avatar can speak
func (c *Client) ListLanguages(ctx context.Context) ([]models.Language, error) {
	var data struct {
		LangList []models.Language `json:"lang_list"`
	}
	if err := c.do(ctx, http.MethodGet, pathLanguageList, nil, &data); err != nil {
		return nil, err
	}
	return data.LangList, nil
}

// ListVoices returns the available voices
func (c *Client) ListVoices(ctx context.Context) ([]models.Voice, error) {
	var voices []models.Voice
	if err := c.do(ctx, http.MethodGet, pathVoiceList, nil, &voices); err != nil {
		return nil, err
	}
	return voices, nil
}

// ListAvatars returns one page of avatars
func (c *Client) ListAvatars(ctx context.Context, page, size int) ([]models.Avatar, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var data struct {
		Result []models.Avatar `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, pathAvatarList+"?"+q.Encode(), nil, &data); err != nil {
		return nil, err
	}
	return data.Result, nil
}

// do sends a request and decodes the data field of the envelope into out
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var envelope response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return c.handleError(resp.StatusCode, 0, http.StatusText(resp.StatusCode))
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if envelope.Code != CodeSuccess {
		return c.handleError(resp.StatusCode, envelope.Code, envelope.Msg)
	}

	if out == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// setHeaders sets the required headers for API requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

// APIError is a non-success answer of the provisioning API. Msg is the
// server-provided text and is meant to be shown to the user verbatim.
type APIError struct {
	StatusCode int
	Code       int
	Msg        string
}

func (e *APIError) Error() string {
	return e.Msg
}

// handleError builds an APIError and logs it
func (c *Client) handleError(status, code int, msg string) error {
	logMsg := msg
	if len(logMsg) > 500 {
		logMsg = logMsg[:500] + "..."
	}
	c.logger.Warnw("API error", "status", status, "code", code, "msg", logMsg)

	return &APIError{
		StatusCode: status,
		Code:       code,
		Msg:        msg,
	}
}
