// Package api is the typed HTTP client for the HelpMarq REST API. It owns the
// network boundary: the discriminated response envelope, the error taxonomy,
// request identity headers, read-through caching of idempotent GETs, and the
// forced sign-out hook for 401s on authenticated calls.
package api

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

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"helpmarq/client/internal/respcache"
)

const maxResponseBytes = 4 << 20

// Client talks to the HelpMarq backend.
type Client struct {
	baseURL        string
	http           *http.Client
	cache          *respcache.Cache
	token          func() string
	onUnauthorized func()
	log            zerolog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Cache      *respcache.Cache
	Logger     zerolog.Logger
}

// New creates a Client. A nil cache disables read memoization.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		cache:   opts.Cache,
		token:   func() string { return "" },
		log:     opts.Logger,
	}
}

// SetTokenSource installs the bearer token source for authenticated calls.
func (c *Client) SetTokenSource(fn func() string) {
	if fn != nil {
		c.token = fn
	}
}

// SetOnUnauthorized installs the hook invoked when an authenticated call
// returns 401. The hook must be idempotent.
func (c *Client) SetOnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// Cache returns the response cache, if any.
func (c *Client) Cache() *respcache.Cache {
	return c.cache
}

// --- auth endpoints -------------------------------------------------------

// SignIn posts credentials to the email sign-in endpoint.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return c.authPost(ctx, "/api/auth/sign-in/email", map[string]string{
		"email":    email,
		"password": password,
	})
}

// SignUp creates an account and returns its initial session.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	return c.authPost(ctx, "/api/auth/sign-up/email", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	})
}

func (c *Client) authPost(ctx context.Context, path string, body map[string]string) (*Session, error) {
	resp, raw, err := c.do(ctx, http.MethodPost, path, body, false)
	if err != nil {
		return nil, &AuthError{Kind: AuthKindNetwork, Message: err.Error()}
	}
	var decoded authResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &AuthError{Kind: AuthKindNetwork, Message: "malformed auth response"}
	}
	if resp.StatusCode >= 500 {
		return nil, &AuthError{Kind: AuthKindNetwork, Message: fmt.Sprintf("authentication service unavailable (http %d)", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		// Only a 4xx carrying a backend message is a credential rejection the
		// human should see; anything else reads as a service problem.
		if decoded.Error != nil && decoded.Error.Message != "" {
			return nil, &AuthError{Kind: AuthKindInvalidCredentials, Message: decoded.Error.Message}
		}
		return nil, &AuthError{Kind: AuthKindNetwork, Message: fmt.Sprintf("authentication failed (http %d)", resp.StatusCode)}
	}
	if decoded.Session == nil || decoded.User == nil {
		return nil, &AuthError{Kind: AuthKindNetwork, Message: "auth response missing session"}
	}
	session := *decoded.Session
	session.User = *decoded.User
	return &session, nil
}

// SignOut notifies the backend that the session is over. Best-effort: callers
// tear down local state regardless of the result.
func (c *Client) SignOut(ctx context.Context) error {
	resp, _, err := c.do(ctx, http.MethodPost, "/api/auth/sign-out", nil, true)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sign out: http %d", resp.StatusCode)
	}
	return nil
}

// GetSession probes the backend for the current session. It returns
// ErrUnauthorized when the backend does not recognize the credential; the
// caller decides whether that means teardown (page load) or retry (readiness
// poll just after sign-in). The OnUnauthorized hook does not fire here.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	resp, raw, err := c.do(ctx, http.MethodGet, "/api/auth/get-session", nil, true)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("get session: http %d", resp.StatusCode)
	}
	var decoded authResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if decoded.Session == nil || decoded.User == nil {
		return nil, ErrUnauthorized
	}
	session := *decoded.Session
	session.User = *decoded.User
	return &session, nil
}

// Me queries the role source of truth. Identity.Role is empty while the
// account has not chosen a role yet.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	resp, raw, err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, true)
	if err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	if err := c.checkStatus(resp, raw, "me"); err != nil {
		return nil, err
	}
	var decoded struct {
		Success bool            `json:"success"`
		Role    *string         `json:"role"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	if !decoded.Success {
		return nil, fmt.Errorf("me: backend reported failure")
	}
	identity := &Identity{}
	if decoded.Role != nil {
		identity.Role = *decoded.Role
	}
	if len(decoded.Data) > 0 {
		var record struct {
			ID string `json:"id"`
		}
		// Reviewer records carry the reviewer id; owner records have their own.
		if err := json.Unmarshal(decoded.Data, &record); err == nil {
			identity.ReviewerID = record.ID
		}
	}
	return identity, nil
}

// --- marketplace reads (cached) -------------------------------------------

// ListProjects fetches the marketplace project list.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.getJSON(ctx, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var project Project
	if err := c.getJSON(ctx, "/api/projects/"+url.PathEscape(id), nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// ListApplications fetches the applications for a project.
func (c *Client) ListApplications(ctx context.Context, projectID string) ([]Application, error) {
	var apps []Application
	path := "/api/projects/" + url.PathEscape(projectID) + "/applications"
	if err := c.getJSON(ctx, path, nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// ListFeedback fetches the feedback submitted for a project.
func (c *Client) ListFeedback(ctx context.Context, projectID string) ([]Feedback, error) {
	var feedback []Feedback
	path := "/api/projects/" + url.PathEscape(projectID) + "/feedback"
	if err := c.getJSON(ctx, path, nil, &feedback); err != nil {
		return nil, err
	}
	return feedback, nil
}

// ListNotifications fetches the current user's notifications.
func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	var items []Notification
	if err := c.getJSON(ctx, "/api/notifications", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetReviewerProfile fetches a reviewer's profile, including XP.
func (c *Client) GetReviewerProfile(ctx context.Context, reviewerID string) (*ReviewerProfile, error) {
	var profile ReviewerProfile
	path := "/api/reviewers/" + url.PathEscape(reviewerID)
	if err := c.getJSON(ctx, path, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// --- marketplace mutations (never cached, never retried) --------------------

// UploadProject creates a project for review.
func (c *Client) UploadProject(ctx context.Context, title, description, fileURL string) (*Project, error) {
	var project Project
	body := map[string]string{"title": title, "description": description, "fileUrl": fileURL}
	if err := c.postJSON(ctx, "/api/projects", body, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// Apply submits a review application for a project.
func (c *Client) Apply(ctx context.Context, projectID string) (*Application, error) {
	var app Application
	path := "/api/projects/" + url.PathEscape(projectID) + "/apply"
	if err := c.postJSON(ctx, path, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// ApproveApplication approves a reviewer's application.
func (c *Client) ApproveApplication(ctx context.Context, applicationID string) error {
	path := "/api/applications/" + url.PathEscape(applicationID) + "/approve"
	return c.postJSON(ctx, path, nil, nil)
}

// SubmitFeedback submits review feedback for a project.
func (c *Client) SubmitFeedback(ctx context.Context, projectID, body string) (*Feedback, error) {
	var feedback Feedback
	path := "/api/projects/" + url.PathEscape(projectID) + "/feedback"
	if err := c.postJSON(ctx, path, map[string]string{"body": body}, &feedback); err != nil {
		return nil, err
	}
	return &feedback, nil
}

// RateFeedback records the owner's rating of a piece of feedback.
func (c *Client) RateFeedback(ctx context.Context, feedbackID string, rating int) error {
	path := "/api/feedback/" + url.PathEscape(feedbackID) + "/rate"
	return c.postJSON(ctx, path, map[string]int{"rating": rating}, nil)
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	path := "/api/notifications/" + url.PathEscape(id) + "/read"
	return c.postJSON(ctx, path, nil, nil)
}

// --- plumbing ---------------------------------------------------------------

// getJSON performs a cached, authenticated GET and decodes the envelope's data
// into out. query may be nil.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	fullPath := path
	if len(query) > 0 {
		fullPath = path + "?" + query.Encode()
	}
	key := respcache.Key(http.MethodGet, c.baseURL+fullPath)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return json.Unmarshal(cached, out)
		}
	}
	resp, raw, err := c.do(ctx, http.MethodGet, fullPath, nil, true)
	if err != nil {
		return err
	}
	data, err := c.decodeEnvelope(resp, raw, path)
	if err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.Set(key, data)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// postJSON performs an authenticated POST and decodes the envelope's data into
// out (which may be nil).
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	resp, raw, err := c.do(ctx, http.MethodPost, path, body, true)
	if err != nil {
		return err
	}
	data, err := c.decodeEnvelope(resp, raw, path)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// decodeEnvelope validates status and the {success, data, error} envelope,
// returning the raw data payload.
func (c *Client) decodeEnvelope(resp *http.Response, raw []byte, path string) ([]byte, error) {
	if err := c.checkStatus(resp, raw, path); err != nil {
		return nil, err
	}
	var decoded envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%s: malformed response: %w", path, err)
	}
	if !decoded.Success {
		message := decoded.Error
		if message == "" {
			message = "request failed"
		}
		return nil, &APIError{Status: resp.StatusCode, Code: decoded.Code, Message: message}
	}
	return decoded.Data, nil
}

func (c *Client) checkStatus(resp *http.Response, raw []byte, path string) error {
	if resp.StatusCode == http.StatusUnauthorized {
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		var decoded envelope
		message := http.StatusText(resp.StatusCode)
		code := ""
		if err := json.Unmarshal(raw, &decoded); err == nil && decoded.Error != "" {
			message = decoded.Error
			code = decoded.Code
		}
		c.log.Warn().Str("path", path).Int("status", resp.StatusCode).Msg("backend error")
		return &APIError{Status: resp.StatusCode, Code: code, Message: message}
	}
	return nil
}

// do performs one request and returns the response plus its fully-read body.
// authed attaches the bearer token when one is available.
func (c *Client) do(ctx context.Context, method, path string, body any, authed bool) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	c.log.Debug().Str("method", method).Str("path", path).Msg("request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, raw, nil
}
