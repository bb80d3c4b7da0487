package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lorekeeper/chronicle/pkg/types"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiClient implements the Client interface for Google's Gemini models
// using the generative language REST API.
type GeminiClient struct {
	config     *LLMConfig
	httpClient *http.Client
	baseURL    string
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(config *LLMConfig) (*GeminiClient, error) {
	if config == nil {
		config = NewLLMConfig()
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini requires an API key")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	baseURL := geminiDefaultBaseURL
	if config.BaseURL != "" {
		if err := validateBaseURL(config.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid base URL: %w", err)
		}
		baseURL = strings.TrimSuffix(config.BaseURL, "/")
	}

	return &GeminiClient{
		config:     config,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float32  `json:"temperature,omitempty"`
	TopP             float32  `json:"topP,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Chat sends a chat completion request to the Gemini API.
func (c *GeminiClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	return c.generate(ctx, messages, false)
}

// ChatWithStructuredOutput sends a chat completion request asking Gemini for a
// JSON response. The schema is rendered into the conversation because the REST
// API's responseSchema support varies across model versions.
func (c *GeminiClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	if schema != nil && len(messages) > 0 {
		if schemaJSON, err := json.MarshalIndent(schema, "", "  "); err == nil {
			hint := fmt.Sprintf("\n\nRespond with a JSON object matching this structure:\n%s", string(schemaJSON))
			last := &messages[len(messages)-1]
			if last.Role == types.RoleUser {
				last.Content += hint
			}
		}
	}
	return c.generate(ctx, messages, true)
}

// GetCapabilities returns the list of capabilities supported by this client.
func (c *GeminiClient) GetCapabilities() []TaskCapability {
	return []TaskCapability{TaskTextGeneration, TaskTemporalInference}
}

// Close cleans up resources (no-op for Gemini client).
func (c *GeminiClient) Close() error {
	return nil
}

func (c *GeminiClient) generate(ctx context.Context, messages []types.Message, jsonOutput bool) (*types.Response, error) {
	req := geminiRequest{
		Contents: c.buildContents(messages),
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     c.config.Temperature,
			TopP:            c.config.TopP,
			MaxOutputTokens: c.config.MaxTokens,
			StopSequences:   c.config.Stop,
		},
	}
	if jsonOutput {
		req.GenerationConfig.ResponseMimeType = "application/json"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.config.Model, c.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gemini response: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, NewRateLimitError(string(respBody))
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response (status %d): %w", httpResp.StatusCode, err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("gemini API error %d (%s): %s", resp.Error.Code, resp.Error.Status, resp.Error.Message)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned status %d: %s", httpResp.StatusCode, string(respBody))
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, NewEmptyResponseError("no candidates returned from gemini")
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}

	response := &types.Response{
		Content:      content.String(),
		FinishReason: resp.Candidates[0].FinishReason,
		Model:        c.config.Model,
	}
	if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
		response.TokensUsed = &types.TokenUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}

	return response, nil
}

// buildContents converts messages to Gemini's content format. Gemini has no
// system role, so system messages are folded into the first user turn.
func (c *GeminiClient) buildContents(messages []types.Message) []geminiContent {
	var systemParts []string
	var contents []geminiContent

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case types.RoleAssistant:
			contents = append(contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		default:
			contents = append(contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		}
	}

	if len(systemParts) > 0 {
		prefix := strings.Join(systemParts, "\n\n")
		if len(contents) > 0 && contents[0].Role == "user" {
			contents[0].Parts[0].Text = prefix + "\n\n" + contents[0].Parts[0].Text
		} else {
			contents = append([]geminiContent{{
				Role:  "user",
				Parts: []geminiPart{{Text: prefix}},
			}}, contents...)
		}
	}

	return contents
}
