package metagen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	modelsPath          = "/v1/models"
)

// Client speaks the chat-completions JSON contract to a remote inference
// endpoint in three modes: text, vision (data-URI image part) and
// tool-augmented (declared functions, tool_choice=auto).
type Client struct {
	baseURL     string
	apiKey      string
	hc          *http.Client
	textModel   string
	visionModel string
	toolModel   string

	textTimeout   time.Duration
	visionTimeout time.Duration
	toolTimeout   time.Duration

	maxTokens   int
	temperature float64
	log         *slog.Logger
}

// NewClient builds a Client from run options.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		hc:            hc,
		textModel:     opts.TextModel,
		visionModel:   opts.VisionModel,
		toolModel:     opts.ToolModel,
		textTimeout:   opts.TextTimeout,
		visionTimeout: opts.VisionTimeout,
		toolTimeout:   opts.ToolTimeout,
		maxTokens:     opts.MaxTokens,
		temperature:   opts.Temperature,
		log:           log,
	}
}

// Wire shapes of the chat-completions contract.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

// wireMessage carries either a plain string content or a parts list for
// vision requests.
type wireMessage struct {
	Role       string `json:"role"`
	Content    any    `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Text performs a text-only completion.
func (c *Client) Text(ctx context.Context, system string, history []Message, prompt string) (string, error) {
	req := chatRequest{
		Model:       c.textModel,
		Messages:    buildMessages(system, history, wireMessage{Role: string(RoleUser), Content: prompt}),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	resp, err := c.post(ctx, req, c.textTimeout)
	if err != nil {
		return "", err
	}
	return firstContent(resp)
}

// Vision performs a completion whose user message carries a text part and the
// image embedded as a base64 data URI.
func (c *Client) Vision(ctx context.Context, system string, history []Message, prompt string, image *Part) (string, error) {
	parts := []wirePart{{Type: "text", Text: prompt}}
	if image != nil && len(image.Data) > 0 {
		uri := "data:" + image.MimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
		parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: uri}})
	}
	req := chatRequest{
		Model:       c.visionModel,
		Messages:    buildMessages(system, history, wireMessage{Role: string(RoleUser), Content: parts}),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	resp, err := c.post(ctx, req, c.visionTimeout)
	if err != nil {
		return "", err
	}
	return firstContent(resp)
}

// Tools performs a tool-augmented completion. The reply carries either plain
// content or the tool calls the model requested; executing them is the
// caller's business.
func (c *Client) Tools(ctx context.Context, system string, history []Message, question string, tools []ToolDef) (*ToolReply, error) {
	wireTools := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		wireTools = append(wireTools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	req := chatRequest{
		Model:       c.toolModel,
		Messages:    buildMessages(system, history, wireMessage{Role: string(RoleUser), Content: question}),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Tools:       wireTools,
		ToolChoice:  "auto",
	}
	resp, err := c.post(ctx, req, c.toolTimeout)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrModelUnavailable)
	}
	msg := resp.Choices[0].Message
	reply := &ToolReply{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		reply.Calls = append(reply.Calls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return reply, nil
}

// Models lists the model ids the endpoint exposes. Used as a health probe.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	if c.textTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.textTimeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	c.setHeaders(httpReq)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrModelUnavailable, resp.StatusCode)
	}

	var mr modelsResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("%w: decode models: %v", ErrModelUnavailable, err)
	}
	ids := make([]string, 0, len(mr.Data))
	for _, m := range mr.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func buildMessages(system string, history []Message, last wireMessage) []wireMessage {
	msgs := make([]wireMessage, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, wireMessage{Role: string(RoleSystem), Content: system})
	}
	for _, m := range history {
		msgs = append(msgs, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return append(msgs, last)
}

func (c *Client) post(ctx context.Context, req chatRequest, timeout time.Duration) (*chatResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrModelUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	c.setHeaders(httpReq)

	c.log.Debug("chat completion request", "model", req.Model, "messages", len(req.Messages), "tools", len(req.Tools))

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Debug("chat completion failed", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrModelUnavailable, resp.StatusCode)
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrModelUnavailable, err)
	}
	return &cr, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func firstContent(resp *chatResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrModelUnavailable)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content", ErrModelUnavailable)
	}
	return content, nil
}
