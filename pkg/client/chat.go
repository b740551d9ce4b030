package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/polisai/polis-mocks/pkg/sse"
)

const completionsPath = "/v1/chat/completions"

// ChatClient calls the LLM mock using the plain request shape.
type ChatClient struct {
	base
}

// NewChatClient creates a client for the LLM mock at baseURL.
func NewChatClient(baseURL string, httpClient *http.Client) *ChatClient {
	return &ChatClient{base: newBase(baseURL, httpClient)}
}

type chatRequest struct {
	ResponseMessage string `json:"response_message"`
	Stream          bool   `json:"stream"`
	EventNum        int    `json:"event_num,omitempty"`
}

// Completion is a non-streaming reply.
type Completion struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

type streamChunk struct {
	ID      string `json:"id"`
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete asks the mock to echo message in a single response.
func (c *ChatClient) Complete(ctx context.Context, message string) (*Completion, error) {
	resp, err := c.postJSON(ctx, completionsPath, chatRequest{ResponseMessage: message})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Completion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Stream asks the mock to stream message in eventCount fragments and returns
// the fragments in arrival order. A zero eventCount leaves the choice to the
// server. The stream must end with the [DONE] sentinel; anything shorter is
// reported as io.ErrUnexpectedEOF.
func (c *ChatClient) Stream(ctx context.Context, message string, eventCount int) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := c.postJSON(ctx, completionsPath, chatRequest{
		ResponseMessage: message,
		Stream:          true,
		EventNum:        eventCount,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	events, readErr := sse.ParseStream(ctx, resp.Body)
	fragments := make([]string, 0)

	for event := range events {
		if event.IsDone() {
			return fragments, nil
		}

		var chunk streamChunk
		if err := json.Unmarshal(event.Data, &chunk); err != nil {
			return nil, fmt.Errorf("failed to decode chunk: %w", err)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != nil {
				fragments = append(fragments, *choice.Delta.Content)
			}
		}
	}

	if err := readErr(); err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("stream ended before [DONE]: %w", io.ErrUnexpectedEOF)
}

// OpenAI returns a go-openai client pointed at the mock's OpenAI-compatible
// variant.
func (c *ChatClient) OpenAI() *openai.Client {
	cfg := openai.DefaultConfig("mock")
	cfg.BaseURL = c.baseURL + "/v1"
	cfg.HTTPClient = c.httpClient
	return openai.NewClientWithConfig(cfg)
}
