package enrich

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseSize = 1 << 20

var (
	errNoChoices = errors.New("response has no choices")
	errNoText    = errors.New("first choice has no text")
)

// CompletionConfig configures a CompletionClient.
type CompletionConfig struct {
	// URL is the completion endpoint receiving {"prompt": "..."}.
	URL string
	// Token is sent as a bearer credential.
	Token   string
	Timeout time.Duration
	// Transport overrides the base HTTP transport. Defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper
}

// CompletionClient calls a prompt-completion endpoint and returns the text of
// the first choice.
type CompletionClient struct {
	url   string
	token string
	http  *http.Client
}

var _ Enhancer = (*CompletionClient)(nil)

// NewCompletionClient returns a CompletionClient. Requests are traced through
// otelhttp.
func NewCompletionClient(cfg CompletionConfig) (*CompletionClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("completion URL is required")
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &CompletionClient{
		url:   cfg.URL,
		token: cfg.Token,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
	}, nil
}

// Enhance sends the product prompt and returns the generated text.
func (c *CompletionClient) Enhance(ctx context.Context, name, description, category string) (string, error) {
	text, err := c.complete(ctx, Prompt(name, description, category))
	if err != nil {
		return "", &EnhancementError{Err: err}
	}
	return text, nil
}

func (c *CompletionClient) complete(ctx context.Context, prompt string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(encodeRequest(prompt)))
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return decodeFirstChoice(body)
}

func encodeRequest(prompt string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("prompt")
	e.Str(prompt)
	e.ObjEnd()
	return e.Bytes()
}

// decodeFirstChoice extracts choices[0].text from a completion response.
func decodeFirstChoice(body []byte) (string, error) {
	var (
		text    string
		choices int
	)
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "choices" || d.Next() != jx.Array {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			choices++
			if choices > 1 || d.Next() != jx.Object {
				return d.Skip()
			}
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "text" || d.Next() != jx.String {
					return d.Skip()
				}
				s, err := d.Str()
				if err != nil {
					return err
				}
				text = s
				return nil
			})
		})
	}); err != nil {
		return "", errors.Wrap(err, "decode response")
	}

	if choices == 0 {
		return "", errNoChoices
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errNoText
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
