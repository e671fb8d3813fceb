package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"noti-sentry/internal/domain"
	openai "noti-sentry/internal/infra/openai"
)

type stubChatClient struct {
	content string
	err     error
	request openai.ChatCompletionRequest
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.request = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatMessage{Content: s.content}},
		},
	}, nil
}

func TestLLMSummarizeBuildsPromptWithTexts(t *testing.T) {
	client := &stubChatClient{content: "1. Chat: Alice says hi\n"}
	s := NewLLM(client, "", time.Second)

	notifications := []domain.Notification{
		{ParsedText: "[Chat] Alice\nAlice: hi"},
		{ParsedText: "[News] Breaking\nSomething"},
	}
	text, err := s.Summarize(context.Background(), notifications)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if text != "1. Chat: Alice says hi" {
		t.Fatalf("ответ должен возвращаться без хвостовых пробелов: %q", text)
	}
	prompt := client.request.Messages[0].Content
	if !strings.Contains(prompt, "[Chat] Alice\nAlice: hi") {
		t.Fatalf("промпт должен содержать тексты нотификаций")
	}
	if !strings.Contains(prompt, "numbered list") {
		t.Fatalf("промпт должен требовать нумерованный список")
	}
}

func TestLLMSummarizeEmptyInputFails(t *testing.T) {
	s := NewLLM(&stubChatClient{content: "x"}, "", time.Second)
	if _, err := s.Summarize(context.Background(), nil); err == nil {
		t.Fatalf("ожидали ошибку на пустом входе")
	}
	if _, err := s.Summarize(context.Background(), []domain.Notification{{ParsedText: "  "}}); err == nil {
		t.Fatalf("ожидали ошибку, если все тексты пустые")
	}
}

func TestLLMSummarizeTransportError(t *testing.T) {
	s := NewLLM(&stubChatClient{err: errors.New("down")}, "", time.Second)
	if _, err := s.Summarize(context.Background(), []domain.Notification{{ParsedText: "x"}}); err == nil {
		t.Fatalf("ожидали ошибку транспорта")
	}
}
