package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"video_quiz_backend/internal/config"
	"video_quiz_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAIService(url string) *AIService {
	return NewAIService(config.AIConfig{BaseURL: url + "/", APIKey: "test-key", Model: "test-model", TimeoutSeconds: 5})
}

func TestAIServiceComplete(t *testing.T) {
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Paris"}}]}`)
	}))
	defer server.Close()

	text, err := newTestAIService(server.URL).Complete(context.Background(), GenerationRequest{
		Kind:        InstructionAnswerContextQuestion,
		ContextText: "The capital of France is Paris.",
		Question:    "What is the capital?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris", text)
	assert.Equal(t, "test-model", got.Model)
	require.NotEmpty(t, got.Messages)
	assert.Contains(t, got.Messages[len(got.Messages)-1].Content, "What is the capital?")
}

func TestAIServiceErrorsAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"api error", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"choices":[],"error":{"message":"quota exceeded"}}`)
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"choices":[]}`)
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `not json`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestAIService(server.URL).Complete(context.Background(), GenerationRequest{Kind: InstructionExplainAnswer})
			assert.ErrorIs(t, err, util.ErrServiceUnavailable)
		})
	}
}

func TestAIServiceStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	stream, errChan := newTestAIService(server.URL).CompleteStream(context.Background(), GenerationRequest{Kind: InstructionAnswerContextQuestion})
	var text string
	for chunk := range stream {
		text += chunk
	}
	assert.Equal(t, "Hello", text)
	assert.NoError(t, <-errChan)
}
