package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"noti-sentry/internal/domain"
	openai "noti-sentry/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const summaryPromptTemplate = `You are an expert AI assistant designed to analyze and synthesize information from multiple notifications. Your goal is to identify distinct conversations and provide a high-level summary for each.

**Instructions:**
1.  Carefully read all the notifications listed below.
2.  Identify the main topics or conversations.
3.  Group the notifications that belong to the same conversation.
4.  For each group, create a concise, one to three sentence text that summarizes the core topic. Make sure you include all the major information present in the notification.
5.  If a notification is missing information, simply state that "<Group>: <AppName> sent a notification but further information was missing, please check the app for more details"
6.  Present the output as a clean numbered list of these headlines in the format: "1. <Group>: <Summary>" Don't use any asterisks for text.

**--- NOTIFICATIONS ---**
%s`

// LLMSummarizer строит дайджест нотификаций через Chat Completions.
type LLMSummarizer struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewLLM создаёт суммаризатор на базе LLM.
func NewLLM(client chatClient, model string, timeout time.Duration) *LLMSummarizer {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LLMSummarizer{client: client, model: model, timeout: timeout}
}

var _ domain.Summarizer = (*LLMSummarizer)(nil)

// Summarize склеивает тексты нотификаций и просит модель сгруппировать их по
// темам. Возвращает текст дайджеста как есть, без постобработки.
func (s *LLMSummarizer) Summarize(ctx context.Context, notifications []domain.Notification) (string, error) {
	joined := joinTexts(notifications)
	if joined == "" {
		return "", fmt.Errorf("суммаризация: нет текстов для дайджеста")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleUser, Content: fmt.Sprintf(summaryPromptTemplate, joined)},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: пустой ответ")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func joinTexts(notifications []domain.Notification) string {
	parts := make([]string, 0, len(notifications))
	for _, n := range notifications {
		text := strings.TrimSpace(n.ParsedText)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}
