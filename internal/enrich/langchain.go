package enrich

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainConfig configures an OpenAI-compatible chat model.
type LangChainConfig struct {
	// BaseURL of an OpenAI-compatible API, e.g. "http://localhost:11434/v1".
	// Empty uses the OpenAI default.
	BaseURL     string
	Token       string
	Model       string
	Temperature float64
}

// LangChain generates descriptions through an OpenAI-compatible chat model.
type LangChain struct {
	model       llms.Model
	temperature float64
}

var _ Enhancer = (*LangChain)(nil)

// NewLangChain creates the chat client.
func NewLangChain(cfg LangChainConfig) (*LangChain, error) {
	opts := []openai.Option{openai.WithToken(cfg.Token)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create openai client")
	}
	return &LangChain{model: client, temperature: cfg.Temperature}, nil
}

// Enhance sends the product prompt as a single user message.
func (l *LangChain) Enhance(ctx context.Context, name, description, category string) (string, error) {
	text, err := llms.GenerateFromSinglePrompt(ctx, l.model, Prompt(name, description, category),
		llms.WithTemperature(l.temperature),
	)
	if err != nil {
		return "", &EnhancementError{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &EnhancementError{Err: errNoText}
	}
	return text, nil
}
