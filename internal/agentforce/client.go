// Package agentforce implements the Salesforce AgentForce gateway: OAuth
// client-credentials auth, per-request agent sessions, and message exchange.
// The triage core consumes it only through ProcessMessage.
package agentforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/casetriage/internal/config"
)

const defaultAPIBase = "https://api.salesforce.com/einstein/ai-agent/v1"

// Client talks to the AgentForce API. Safe for concurrent use; the access
// token is shared and refreshed on expiry.
type Client struct {
	consumerKey    string
	consumerSecret string
	agentID        string
	authBase       string // https://{domain}, overridable in tests
	apiBase        string
	httpc          *http.Client

	mu    sync.Mutex
	token string

	seq atomic.Int64
}

// New creates an AgentForce client from config. Returns an error when
// credentials are incomplete; callers should then run without the agent path.
func New(cfg config.AgentforceConfig) (*Client, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("agentforce credentials incomplete (domain/key/secret/agent id required)")
	}
	return &Client{
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		agentID:        cfg.AgentID,
		authBase:       "https://" + cfg.DomainURL,
		apiBase:        defaultAPIBase,
		httpc:          &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// ProcessMessage runs text through AgentForce: create a session, send the
// message, assemble the reply. Session creation and message send are not
// retried; a failure surfaces to the caller, who shows the user an apology.
func (c *Client) ProcessMessage(ctx context.Context, text string) (string, error) {
	sessionID, err := c.createSession(ctx)
	if err != nil {
		return "", fmt.Errorf("create agent session: %w", err)
	}

	reply, err := c.sendMessage(ctx, sessionID, text)
	if err != nil {
		return "", fmt.Errorf("send to agent session %s: %w", sessionID, err)
	}
	return reply, nil
}

// accessToken returns the cached token, fetching one when absent. The token
// endpoint is the only call retried (with backoff): it is idempotent and a
// transient auth outage would otherwise fail every case.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	op := func() (string, error) {
		return c.fetchToken(ctx)
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(30*time.Second)), ctx)
	token, err := backoff.RetryWithData(op, bo)
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

// invalidateToken drops the cached token after a 401.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.consumerKey},
		"client_secret": {c.consumerSecret},
	}
	endpoint := c.authBase + "/services/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.AccessToken == "" {
		return "", backoff.Permanent(fmt.Errorf("token response missing access_token"))
	}
	slog.Info("agentforce access token acquired")
	return out.AccessToken, nil
}

func (c *Client) createSession(ctx context.Context) (string, error) {
	payload := map[string]any{
		"externalSessionKey": uuid.NewString(),
		"instanceConfig": map[string]string{
			"endpoint": c.authBase,
		},
		"streamingCapabilities": map[string]any{
			"chunkTypes": []string{"Text"},
		},
		"bypassUser": true,
	}

	var out struct {
		SessionID string `json:"sessionId"`
	}
	endpoint := fmt.Sprintf("%s/agents/%s/sessions", c.apiBase, c.agentID)
	if err := c.postJSON(ctx, endpoint, payload, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("session response missing sessionId")
	}
	slog.Debug("agentforce session created", "session", out.SessionID)
	return out.SessionID, nil
}

// agentMessage is one entry of the reply "messages" array. The API is
// inconsistent about the content field name, so both are accepted.
type agentMessage struct {
	Message string `json:"message"`
	Text    string `json:"text"`
}

func (c *Client) sendMessage(ctx context.Context, sessionID, text string) (string, error) {
	payload := map[string]any{
		"message": map[string]any{
			"sequenceId": c.seq.Add(1),
			"type":       "Text",
			"text":       text,
		},
	}

	var out struct {
		Messages []agentMessage `json:"messages"`
	}
	endpoint := fmt.Sprintf("%s/sessions/%s/messages", c.apiBase, sessionID)
	if err := c.postJSON(ctx, endpoint, payload, &out); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, m := range out.Messages {
		if m.Message != "" {
			b.WriteString(m.Message)
		} else {
			b.WriteString(m.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no reply content in agent response")
	}
	return b.String(), nil
}

// postJSON posts a JSON payload with bearer auth, refreshing the token once
// on 401.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return fmt.Errorf("acquire access token: %w", err)
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.invalidateToken()
			continue
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("agentforce API returned %d: %s", resp.StatusCode, msg)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode agent response: %w", err)
		}
		return nil
	}
}
