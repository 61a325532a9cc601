// Package genai wraps the OpenAI API for reply generation and text
// embeddings.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/AKillionVoice/voicepipe/internal/models"
)

// ErrNoAPIKey is returned when a client is created without an API key.
var ErrNoAPIKey = errors.New("OpenAI API key is required")

// DefaultChatModel is the model used for reply generation.
const DefaultChatModel = openai.ChatModelGPT4oMini

// DefaultEmbeddingModel is the model used for knowledge embeddings.
const DefaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small

// Opts holds configuration options for creating a Client.
type Opts struct {
	// ChatModel overrides DefaultChatModel when set.
	ChatModel openai.ChatModel
	// EmbeddingModel overrides DefaultEmbeddingModel when set.
	EmbeddingModel openai.EmbeddingModel
	// BaseURL points the client at a compatible alternate endpoint.
	BaseURL string
}

// Option configures a Client.
type Option func(*Opts)

// WithChatModel sets the chat completion model.
func WithChatModel(m openai.ChatModel) Option {
	return func(o *Opts) { o.ChatModel = m }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(m openai.EmbeddingModel) Option {
	return func(o *Opts) { o.EmbeddingModel = m }
}

// WithBaseURL sets an alternate API endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// Client talks to the OpenAI API. It is safe for concurrent use.
type Client struct {
	api            openai.Client
	chatModel      openai.ChatModel
	embeddingModel openai.EmbeddingModel
}

// NewClient creates a Client with the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	options := Opts{}
	for _, opt := range opts {
		opt(&options)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if options.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(options.BaseURL))
	}

	c := &Client{
		api:            openai.NewClient(reqOpts...),
		chatModel:      DefaultChatModel,
		embeddingModel: DefaultEmbeddingModel,
	}
	if options.ChatModel != "" {
		c.chatModel = options.ChatModel
	}
	if options.EmbeddingModel != "" {
		c.embeddingModel = options.EmbeddingModel
	}
	slog.Debug("Client.NewClient: genai client created", "chatModel", c.chatModel, "embeddingModel", c.embeddingModel)
	return c, nil
}

// API exposes the underlying OpenAI client for collaborators that drive
// other endpoints, such as speech synthesis.
func (c *Client) API() openai.Client { return c.api }

// Generate produces one reply for the conversation under the directive's
// system context, token budget, and temperature.
func (c *Client) Generate(ctx context.Context, directive models.Directive, history []models.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(directive.SystemContext))
	for _, m := range history {
		switch m.Role {
		case models.RoleCaller:
			messages = append(messages, openai.UserMessage(m.Text))
		case models.RoleAgent:
			messages = append(messages, openai.AssistantMessage(m.Text))
		case models.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.chatModel,
		Messages: messages,
	}
	if directive.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(directive.MaxTokens))
	}
	if directive.Temperature > 0 {
		params.Temperature = openai.Float(directive.Temperature)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}
