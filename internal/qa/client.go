// Package qa asks the document-grounded question answering service and turns
// its answers into something short enough to speak.
package qa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config describes how to reach the QA service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client posts questions to the QA service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient validates the configuration and returns a ready-to-use client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("qa: base URL required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

// Ask sends one question. The session id lets the service keep per-call
// history.
func (c *Client) Ask(ctx context.Context, question, sessionID string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("qa: question required")
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/ask", askRequest{Question: question, SessionID: sessionID})
	if err != nil {
		return "", err
	}
	var out askResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("qa: decode response failed: %w", err)
	}
	return strings.TrimSpace(out.Answer), nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	body := bytes.NewBuffer(nil)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("qa: failed to encode payload: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("qa: request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qa: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("qa: read response failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("qa: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}
