package provider

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/54b3r/docqa-go/internal/rag"
)

// GeminiChat creates native Gemini chat sessions. The provider keeps the
// history; each conversation wraps one *genai.Chat.
type GeminiChat struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiChat constructs a GeminiChat for the AI Studio API.
func NewGeminiChat(ctx context.Context, cfg *Config) (*GeminiChat, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Gemini.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Gemini.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("provider: gemini client: %w", err)
	}

	gc := &genai.GenerateContentConfig{}
	if cfg.Tuning.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(cfg.Tuning.MaxTokens)
	}
	if cfg.Tuning.Temperature > 0 {
		gc.Temperature = genai.Ptr(cfg.Tuning.Temperature)
	}

	model := cfg.Gemini.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiChat{client: client, model: model, config: gc}, nil
}

// NewConversation creates an empty chat on the named model, or on the
// configured model when modelName is empty.
func (g *GeminiChat) NewConversation(ctx context.Context, modelName string) (rag.Conversation, error) {
	if modelName == "" {
		modelName = g.model
	}
	chat, err := g.client.Chats.Create(ctx, modelName, g.config, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: gemini create chat: %w", err)
	}
	return &geminiConversation{id: uuid.NewString(), owner: g, model: modelName, chat: chat}, nil
}

// geminiConversation serializes sends on one *genai.Chat, which is not safe
// for concurrent use.
type geminiConversation struct {
	id    string
	owner *GeminiChat
	model string

	mu   sync.Mutex
	chat *genai.Chat
}

func (c *geminiConversation) ID() string { return c.id }

// Send returns the model's reply. genai records the turn as soon as a reply
// arrives, so a reply that lands after ctx is done is rolled back: the chat
// is rebuilt from the history it had before the send.
func (c *geminiConversation) Send(ctx context.Context, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := slices.Clone(c.chat.History(false))
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", fmt.Errorf("provider: gemini send: %w", err)
	}
	if err := ctx.Err(); err != nil {
		if rerr := c.restore(prev); rerr != nil {
			return "", fmt.Errorf("provider: gemini send: %w (history rollback: %v)", err, rerr)
		}
		return "", fmt.Errorf("provider: gemini send: %w", err)
	}
	return resp.Text(), nil
}

// restore replaces the chat with one holding history. Creating a chat makes
// no API call.
func (c *geminiConversation) restore(history []*genai.Content) error {
	chat, err := c.owner.client.Chats.Create(context.Background(), c.model, c.owner.config, history)
	if err != nil {
		return err
	}
	c.chat = chat
	return nil
}

// turns returns the number of recorded history entries.
func (c *geminiConversation) turns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chat.History(false))
}
