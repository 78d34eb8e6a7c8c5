package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/model"
	"video_quiz_backend/internal/util"
	"video_quiz_backend/pkg/monitoring"
	"video_quiz_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

type InstructionKind string

const (
	InstructionGenerateQuestions     InstructionKind = "generate_questions"
	InstructionScoreShortAnswer      InstructionKind = "score_short_answer"
	InstructionExplainAnswer         InstructionKind = "explain_answer"
	InstructionAnswerContextQuestion InstructionKind = "answer_context_question"
)

// GenerationRequest 发给生成式服务的结构化请求，由 AIService 转换为对话消息
type GenerationRequest struct {
	Kind        InstructionKind
	ContextText string
	DesiredType model.QuestionType
	Count       int
	// Strict 重试时使用更严格的输出约束
	Strict bool

	Question        string
	ReferenceAnswer string
	KeyPoints       []string
	LearnerResponse string
}

// GenerativeService 出题、判分、讲解、问答共用的大模型调用接口。
// 调用方负责通过 ctx 设置超时，失败时返回包装了 util.ErrServiceUnavailable 的错误。
type GenerativeService interface {
	Complete(ctx context.Context, req GenerationRequest) (string, error)
}

// StreamingGenerativeService 支持流式输出的实现
type StreamingGenerativeService interface {
	GenerativeService
	CompleteStream(ctx context.Context, req GenerationRequest) (<-chan string, <-chan error)
}

type AIService struct {
	config  config.AIConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewAIService(cfg config.AIConfig) *AIService {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &AIService{
		config:  cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []AIChatMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
		Delta   AIChatMessage `json:"delta"` // 流式响应
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *AIService) Complete(ctx context.Context, req GenerationRequest) (string, error) {
	ctx, span := tracing.Tracer.Start(ctx, "ai."+string(req.Kind))
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", s.config.Model),
		attribute.Bool("ai.strict", req.Strict),
	)

	start := time.Now()
	content, err := s.Chat(ctx, BuildMessages(req))
	monitoring.ObserveAIRequest(string(req.Kind), outcomeOf(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return content, nil
}

func (s *AIService) CompleteStream(ctx context.Context, req GenerationRequest) (<-chan string, <-chan error) {
	return s.ChatStream(ctx, BuildMessages(req))
}

func (s *AIService) newRequest(ctx context.Context, body ChatCompletionRequest) (*http.Request, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrServiceUnavailable, err)
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.config.BaseURL, "/")+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	return req, nil
}

func (s *AIService) Chat(ctx context.Context, messages []AIChatMessage) (string, error) {
	req, err := s.newRequest(ctx, ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    messages,
		Temperature: s.config.Temperature,
	})
	if err != nil {
		return "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", util.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: AI API error (status %d): %s", util.ErrServiceUnavailable, resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", util.ErrServiceUnavailable, err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("%w: %s", util.ErrServiceUnavailable, result.Error.Message)
	}

	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: AI returned no choices", util.ErrServiceUnavailable)
}

func (s *AIService) ChatStream(ctx context.Context, messages []AIChatMessage) (<-chan string, <-chan error) {
	out := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errChan)

		req, err := s.newRequest(ctx, ChatCompletionRequest{
			Model:       s.config.Model,
			Messages:    messages,
			Temperature: s.config.Temperature,
			Stream:      true,
		})
		if err != nil {
			errChan <- err
			return
		}

		// 流式响应可能超过 client 的整体超时，由 ctx 控制生命周期；调用方负责设置空闲超时
		client := &http.Client{Transport: s.client.Transport}
		resp, err := client.Do(req)
		if err != nil {
			errChan <- fmt.Errorf("%w: %w", util.ErrServiceUnavailable, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errChan <- fmt.Errorf("%w: AI API error (status %d): %s", util.ErrServiceUnavailable, resp.StatusCode, string(body))
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					errChan <- fmt.Errorf("%w: %w", util.ErrServiceUnavailable, err)
				}
				break
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var streamResp ChatCompletionResponse
			if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
				continue
			}

			if len(streamResp.Choices) > 0 {
				content := streamResp.Choices[0].Delta.Content
				if content == "" {
					continue
				}
				select {
				case out <- content:
				case <-ctx.Done():
					errChan <- fmt.Errorf("%w: %w", util.ErrServiceUnavailable, ctx.Err())
					return
				}
			}
		}
	}()

	return out, errChan
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
