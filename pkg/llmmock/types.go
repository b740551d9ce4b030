package llmmock

import (
	"strconv"

	openai "github.com/sashabaranov/go-openai"
)

// Chunk object type shared by both stream variants.
const chunkObject = "chat.completion.chunk"

// chatRequest is the union of both request shapes accepted on the completions
// route. The presence of messages selects the OpenAI-compatible variant.
type chatRequest struct {
	// Plain variant.
	ResponseMessage *string `json:"response_message"`
	Message         *string `json:"message"`
	EventNum        *int    `json:"event_num"`
	EventCount      *int    `json:"eventCount"`

	// OpenAI variant.
	Model    *string                        `json:"model"`
	Messages []openai.ChatCompletionMessage `json:"messages"`

	Stream bool `json:"stream"`
}

func (r *chatRequest) isOpenAI() bool {
	return r.Messages != nil
}

func (r *chatRequest) message() (string, bool) {
	switch {
	case r.ResponseMessage != nil:
		return *r.ResponseMessage, true
	case r.Message != nil:
		return *r.Message, true
	default:
		return "", false
	}
}

func (r *chatRequest) eventCount(fallback int) int {
	switch {
	case r.EventNum != nil:
		return *r.EventNum
	case r.EventCount != nil:
		return *r.EventCount
	default:
		return fallback
	}
}

// PlainResponse is the non-streaming reply of the plain variant.
type PlainResponse struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

// PlainChunk is one SSE payload of the plain variant.
type PlainChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Choices []PlainChunkChoice `json:"choices"`
}

// PlainChunkChoice carries the delta of a plain chunk. FinishReason is null on
// every chunk except the final one.
type PlainChunkChoice struct {
	Delta        PlainDelta `json:"delta"`
	Index        int        `json:"index"`
	FinishReason *string    `json:"finish_reason"`
}

// PlainDelta holds a fragment. Content is nil on the final chunk so the delta
// encodes as an empty object, and non-nil (possibly empty) otherwise.
type PlainDelta struct {
	Content *string `json:"content,omitempty"`
}

func plainChunk(index int, fragment string) PlainChunk {
	return PlainChunk{
		ID:     "chunk_" + strconv.Itoa(index),
		Object: chunkObject,
		Choices: []PlainChunkChoice{{
			Delta: PlainDelta{Content: &fragment},
		}},
	}
}

func plainFinalChunk() PlainChunk {
	stop := string(openai.FinishReasonStop)
	return PlainChunk{
		ID:     "final",
		Object: chunkObject,
		Choices: []PlainChunkChoice{{
			FinishReason: &stop,
		}},
	}
}
