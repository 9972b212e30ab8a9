package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Config holds OpenAI connection settings
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Advisor implements port.ExpenseAdvisor with a chat completion.
// Its note is informational and never decides an expense.
type Advisor struct {
	client  *openai.Client
	model   string
	prompts *PromptConfig
	logger  *zap.Logger
}

type advisoryResult struct {
	Note  string   `json:"note"`
	Flags []string `json:"flags"`
}

// NewAdvisor creates a new OpenAI advisor
func NewAdvisor(cfg Config, prompts *PromptConfig, logger *zap.Logger) *Advisor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}

	return &Advisor{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		prompts: prompts,
		logger:  logger,
	}
}

// Advise returns a short policy note for the expense
func (a *Advisor) Advise(ctx context.Context, e *entity.Expense) (string, error) {
	date := ""
	if e.Date != nil {
		date = e.Date.Format("2006-01-02")
	}

	prompt, err := renderTemplate(a.prompts.Advisory.UserTemplate, map[string]interface{}{
		"Category":    e.Category,
		"Amount":      e.Amount.StringFixed(2),
		"Currency":    e.Currency,
		"Date":        date,
		"Description": e.Description,
		"HasReceipt":  e.ReceiptURL != "",
	})
	if err != nil {
		return "", err
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: a.prompts.Advisory.Temperature,
		MaxTokens:   a.prompts.Advisory.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.prompts.Advisory.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		a.logger.Error("OpenAI API call failed",
			zap.String("expense_id", e.ID),
			zap.Error(err))
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	result, err := parseAdvisory(resp.Choices[0].Message.Content)
	if err != nil {
		a.logger.Error("Failed to parse OpenAI response",
			zap.String("expense_id", e.ID),
			zap.Error(err))
		return "", err
	}

	a.logger.Info("Advisory note generated",
		zap.String("expense_id", e.ID),
		zap.Int("flags", len(result.Flags)))

	return formatAdvisory(result), nil
}

func parseAdvisory(content string) (*advisoryResult, error) {
	var result advisoryResult
	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return &result, nil
	}

	// models sometimes wrap the object in prose or a code fence
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("failed to parse response: no JSON object found")
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

func formatAdvisory(r *advisoryResult) string {
	note := strings.TrimSpace(r.Note)
	if len(r.Flags) == 0 {
		return note
	}
	return fmt.Sprintf("%s [%s]", note, strings.Join(r.Flags, "; "))
}

var _ port.ExpenseAdvisor = (*Advisor)(nil)
