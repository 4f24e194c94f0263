package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/rag"
)

// EinoChat adapts a stateless eino chat model into rag.ChatModel by keeping
// each conversation's message history on the client side.
type EinoChat struct {
	model     model.BaseChatModel
	name      string
	maxTokens int
	handlers  []callbacks.Handler
}

// NewEinoChat wraps m. name labels the model in traces. maxContextTokens
// bounds the replayed history; zero selects budget.DefaultMaxContextTokens.
func NewEinoChat(m model.BaseChatModel, name string, maxContextTokens int, handlers ...callbacks.Handler) *EinoChat {
	if maxContextTokens <= 0 {
		maxContextTokens = budget.DefaultMaxContextTokens
	}
	return &EinoChat{model: m, name: name, maxTokens: maxContextTokens, handlers: handlers}
}

// NewConversation starts an empty conversation. The model argument is only a
// label here: the eino model is bound at construction.
func (c *EinoChat) NewConversation(_ context.Context, modelName string) (rag.Conversation, error) {
	if modelName == "" {
		modelName = c.name
	}
	return &einoConversation{
		id:    uuid.NewString(),
		model: modelName,
		chat:  c,
	}, nil
}

// einoConversation replays its history on every Send.
type einoConversation struct {
	id    string
	model string
	chat  *EinoChat

	mu      sync.Mutex
	history []*schema.Message
}

// ID returns the conversation's uuid.
func (c *einoConversation) ID() string { return c.id }

// Send replays the budget-trimmed history plus message and returns the reply.
// The turn is committed only when the call succeeded and ctx is still live.
func (c *einoConversation) Send(ctx context.Context, message string) (string, error) {
	user := schema.UserMessage(message)

	c.mu.Lock()
	history := budget.TrimHistory([]*schema.Message{user}, c.history, c.chat.maxTokens)
	input := make([]*schema.Message, 0, len(history)+1)
	input = append(input, history...)
	input = append(input, user)
	c.mu.Unlock()

	if len(c.chat.handlers) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      c.model,
			Type:      "DocQA",
			Component: components.ComponentOfChatModel,
		}, c.chat.handlers...)
	}

	reply, err := c.chat.model.Generate(ctx, input)
	if err != nil {
		return "", fmt.Errorf("provider: generate: %w", err)
	}
	if reply == nil {
		return "", fmt.Errorf("provider: generate: empty reply")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("provider: generate: %w", err)
	}

	c.mu.Lock()
	c.history = append(c.history, user, schema.AssistantMessage(reply.Content, nil))
	c.mu.Unlock()
	return reply.Content, nil
}

// turns returns the number of committed messages.
func (c *einoConversation) turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}
