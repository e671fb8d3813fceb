package classifier

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
	content  string
	err      error
	request  openai.ChatCompletionRequest
	noChoice bool
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.request = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	if s.noChoice {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatMessage{Role: openai.RoleSystem, Content: s.content}},
		},
	}, nil
}

func TestClassifyAllowMarker(t *testing.T) {
	client := &stubChatClient{content: "The user wants this. A_2"}
	c := NewLLM(client, "", time.Second)

	decision, err := c.Classify(context.Background(), "family only", "[Messages] Mom\nMom: dinner?")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if decision != domain.DecisionAllow {
		t.Fatalf("ожидали Allow, получили %v", decision)
	}
	prompt := client.request.Messages[0].Content
	if !strings.Contains(prompt, "family only") {
		t.Fatalf("промпт должен содержать инструкцию пользователя")
	}
	if !strings.Contains(prompt, "[Messages] Mom") {
		t.Fatalf("промпт должен содержать текст нотификации")
	}
}

func TestClassifyBlockMarker(t *testing.T) {
	client := &stubChatClient{content: "Not relevant. A_1"}
	c := NewLLM(client, "", time.Second)

	decision, err := c.Classify(context.Background(), "i", "n")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if decision != domain.DecisionBlock {
		t.Fatalf("ожидали Block, получили %v", decision)
	}
}

func TestClassifyWithoutMarkerBlocks(t *testing.T) {
	client := &stubChatClient{content: "I am not sure about this one."}
	c := NewLLM(client, "", time.Second)

	decision, err := c.Classify(context.Background(), "i", "n")
	if err != nil {
		t.Fatalf("неразборчивый ответ — не ошибка: %v", err)
	}
	if decision != domain.DecisionBlock {
		t.Fatalf("без маркера ожидали Block, получили %v", decision)
	}
}

func TestClassifyTransportErrorBlocks(t *testing.T) {
	client := &stubChatClient{err: errors.New("timeout")}
	c := NewLLM(client, "", time.Second)

	decision, err := c.Classify(context.Background(), "i", "n")
	if err == nil {
		t.Fatalf("ожидали ошибку транспорта")
	}
	if decision != domain.DecisionBlock {
		t.Fatalf("при ошибке ожидали Block, получили %v", decision)
	}
}

func TestClassifyEmptyResponseBlocks(t *testing.T) {
	client := &stubChatClient{noChoice: true}
	c := NewLLM(client, "", time.Second)

	decision, err := c.Classify(context.Background(), "i", "n")
	if err == nil {
		t.Fatalf("ожидали ошибку пустого ответа")
	}
	if decision != domain.DecisionBlock {
		t.Fatalf("при пустом ответе ожидали Block, получили %v", decision)
	}
}
