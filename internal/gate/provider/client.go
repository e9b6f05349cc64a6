package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is an HTTP client for the identity provider. The service key is
// only attached on admin paths; everything else uses the anonymous key plus,
// where applicable, the end user's bearer token.
type Client struct {
	BaseURL    string
	ServiceKey string
	AnonKey    string
	HTTPClient *http.Client
}

// NewClient creates a provider client with a sane request timeout.
func NewClient(baseURL, serviceKey, anonKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		ServiceKey: serviceKey,
		AnonKey:    anonKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithToken returns a client scoped to an end user's session tokens, used
// for the self-service MFA surface.
func (c *Client) WithToken(accessToken, refreshToken string) *UserClient {
	return &UserClient{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// doJSON performs a request with a JSON body (nil for none) and decodes a
// JSON response into out (nil to discard). bearer selects the Authorization
// header: the caller passes the user's access token, the service key for
// admin paths, or the anon key.
func (c *Client) doJSON(
	ctx context.Context,
	method, path, bearer string,
	body, out any,
) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Apikey", c.AnonKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse turns a non-2xx provider response into a typed *Error.
// The upstream status, code and message are preserved so callers can pass
// distinct failure reasons through unchanged.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var payload struct {
		ErrorCode   string `json:"error_code"`
		Msg         string `json:"msg"`
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		code := payload.ErrorCode
		if code == "" {
			code = payload.Error
		}
		desc := payload.Msg
		if desc == "" {
			desc = payload.Description
		}
		if code != "" || desc != "" {
			return &Error{Status: resp.StatusCode, Code: code, Description: desc}
		}
	}

	return &Error{
		Status:      resp.StatusCode,
		Code:        "unexpected_failure",
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
