package classifier

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

// Маркеры решения в ответе модели. Модель обязана закончить ответ одним из
// них; всё остальное трактуется как Block.
const (
	allowMarker = "A_2"
	blockMarker = "A_1"
)

// LLMClassifier решает allow/block через Chat Completions.
type LLMClassifier struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewLLM создаёт классификатор на базе LLM.
func NewLLM(client chatClient, model string, timeout time.Duration) *LLMClassifier {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMClassifier{client: client, model: model, timeout: timeout}
}

var _ domain.Classifier = (*LLMClassifier)(nil)

// Classify отправляет инструкцию пользователя и текст нотификации оракулу и
// разбирает маркер решения. Allow возвращается только при однозначном
// положительном маркере; ошибка транспорта или пустой ответ — ошибка,
// которую вызывающая сторона разрешает в Block.
func (c *LLMClassifier) Classify(ctx context.Context, instruction, notificationText string) (domain.Decision, error) {
	prompt := fmt.Sprintf(
		"Return a simple 'Allow' or 'Don't Allow' based on the following user instruction about a notification "+
			"if the user intent matches the notification. 'Allow' or 'Don't Allow' must be at the end of the "+
			"response with '%s' (if Allowed) or '%s' (if Don't Allow):\n"+
			"User Intent: %s\n"+
			"Notification: %s",
		allowMarker, blockMarker, instruction, notificationText,
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: 200,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleUser, Content: prompt},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.DecisionBlock, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.DecisionBlock, fmt.Errorf("openai completion: пустой ответ")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return domain.DecisionBlock, fmt.Errorf("openai completion: пустой текст решения")
	}
	if strings.Contains(content, allowMarker) {
		return domain.DecisionAllow, nil
	}
	return domain.DecisionBlock, nil
}
