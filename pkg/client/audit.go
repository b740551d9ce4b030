package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// AuditConfig holds the moderation settings sent with every audit.
type AuditConfig struct {
	UnhealthyWords     []string
	CustomErrorMessage string
}

// AuditClient calls the audit mock.
type AuditClient struct {
	base
	cfg AuditConfig
}

// NewAuditClient creates a client for the audit mock at baseURL. A nil
// httpClient gets a default with a 30s timeout.
func NewAuditClient(baseURL string, cfg AuditConfig, httpClient *http.Client) *AuditClient {
	return &AuditClient{base: newBase(baseURL, httpClient), cfg: cfg}
}

type auditRequest struct {
	Content            string   `json:"content"`
	UnhealthyWords     []string `json:"unhealthy_words"`
	CustomErrorMessage string   `json:"custom_error_message,omitempty"`
}

// AuditResponse is the audit mock's verdict as sent on the wire.
type AuditResponse struct {
	IsSafe       bool     `json:"is_safe"`
	FlaggedWords []string `json:"flagged_words"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// Verdict is a moderation decision.
type Verdict struct {
	Allow        bool
	Reason       string
	FlaggedWords []string
}

// Audit sends content for auditing and returns the raw answer.
func (c *AuditClient) Audit(ctx context.Context, content string) (*AuditResponse, error) {
	words := c.cfg.UnhealthyWords
	if words == nil {
		words = []string{}
	}

	resp, err := c.postJSON(ctx, "/audit", auditRequest{
		Content:            content,
		UnhealthyWords:     words,
		CustomErrorMessage: c.cfg.CustomErrorMessage,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out AuditResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Moderate audits content and turns the answer into an allow or deny
// decision. A denial carries the service's message, or else names the
// flagged words.
func (c *AuditClient) Moderate(ctx context.Context, content string) (*Verdict, error) {
	resp, err := c.Audit(ctx, content)
	if err != nil {
		return nil, err
	}

	verdict := &Verdict{Allow: resp.IsSafe, FlaggedWords: resp.FlaggedWords}
	if !resp.IsSafe {
		verdict.Reason = denyReason(resp)
	}
	return verdict, nil
}

func denyReason(resp *AuditResponse) string {
	switch {
	case resp.ErrorMessage != "":
		return resp.ErrorMessage
	case len(resp.FlaggedWords) > 0:
		return "content contains inappropriate words: " + strings.Join(resp.FlaggedWords, ", ")
	default:
		return "content flagged as inappropriate by moderation service"
	}
}
