package llmmock

import (
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/polisai/polis-mocks/pkg/chunking"
	"github.com/polisai/polis-mocks/pkg/config"
)

const (
	completionID     = "mock-chatcmpl-123"
	completionObject = "chat.completion"
	finalStreamID    = "mock-final"
)

// userContent joins the content of every user message.
func userContent(messages []openai.ChatCompletionMessage) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == openai.ChatMessageRoleUser {
			parts = append(parts, m.Content)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// synthesizeReply builds the assistant reply echoed back for messages and
// returns it together with the user text it was derived from.
func synthesizeReply(messages []openai.ChatCompletionMessage, settings config.StreamConfig) (reply, prompt string) {
	prompt = userContent(messages)
	if prompt == "" {
		prompt = settings.EmptyReply
	}
	return settings.ReplyPrefix + prompt, prompt
}

func completionResponse(model, reply, prompt string, created int64) openai.ChatCompletionResponse {
	promptTokens := chunking.TokenCount(prompt)
	completionTokens := chunking.TokenCount(reply)

	return openai.ChatCompletionResponse{
		ID:      completionID,
		Object:  completionObject,
		Created: created,
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: reply,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
}

func streamChunk(model string, created int64, index int, fragment string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		ID:      "mock-stream-" + strconv.Itoa(index),
		Object:  chunkObject,
		Created: created,
		Model:   model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index: 0,
			Delta: openai.ChatCompletionStreamChoiceDelta{Content: fragment},
		}},
	}
}

func streamFinalChunk(model string, created int64) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		ID:      finalStreamID,
		Object:  chunkObject,
		Created: created,
		Model:   model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			FinishReason: openai.FinishReasonStop,
		}},
	}
}
