package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/buildsite/safesight/internal/domain/analysis"
	"github.com/buildsite/safesight/internal/infra/ai/prompt"
)

const maxTokens = 2048

// connectivityHost is dialed by IsAvailable; the cloud strategy requires
// connectivity and must be skipped, not attempted, when offline.
const connectivityHost = "api.openai.com:443"

// Strategy is the cloud analysis strategy backed by an OpenAI vision model.
type Strategy struct {
	mu       sync.Mutex
	client   *openai.Client
	model    string
	priority int
	dial     func(ctx context.Context) error
}

func NewStrategy(apiKey, model string, priority int) *Strategy {
	s := &Strategy{model: model, priority: priority}
	s.dial = defaultDial
	if apiKey != "" {
		s.client = openai.NewClient(apiKey)
	}
	return s
}

func defaultDial(ctx context.Context) error {
	d := net.Dialer{Timeout: 1500 * time.Millisecond}
	conn, err := d.DialContext(ctx, "tcp", connectivityHost)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (s *Strategy) Name() string  { return "cloud-vision" }
func (s *Strategy) Priority() int { return s.priority }

func (s *Strategy) Capabilities() []analysis.Capability {
	return []analysis.Capability{
		analysis.CapabilityHazardDetection,
		analysis.CapabilityPPECompliance,
		analysis.CapabilityBoundingBoxes,
	}
}

// Configure installs or replaces the API credential.
func (s *Strategy) Configure(credential string) error {
	if strings.TrimSpace(credential) == "" {
		return fmt.Errorf("%w: empty cloud credential", analysis.ErrConfiguration)
	}
	s.mu.Lock()
	s.client = openai.NewClient(credential)
	s.mu.Unlock()
	return nil
}

// IsAvailable requires a configured credential and reachable connectivity.
func (s *Strategy) IsAvailable(ctx context.Context) bool {
	s.mu.Lock()
	configured := s.client != nil
	s.mu.Unlock()
	if !configured {
		return false
	}
	return s.dial(ctx) == nil
}

func (s *Strategy) Analyze(ctx context.Context, image []byte, wt analysis.WorkType) (*analysis.SafetyAnalysis, error) {
	s.mu.Lock()
	client := s.client
	model := s.model
	s.mu.Unlock()
	if client == nil {
		return nil, analysis.ErrConfiguration
	}
	if model == "" {
		model = openai.GPT4o
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	req := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt.GetUserPrompt(wt)},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto},
					},
				},
			},
		},
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", analysis.ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("%w: %v", analysis.ErrInference, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", analysis.ErrInference)
	}
	return prompt.ParseAnalysis(resp.Choices[0].Message.Content)
}
