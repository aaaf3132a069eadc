package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const moderationSystemPrompt = `You are a comment moderator for a personal blog.
Decide whether a reader comment is safe to publish automatically.

Flag as unsafe: spam or advertising, scams, harassment or hate, sexual content,
personal data of third parties, and text that is unrelated to the post and
looks machine generated. Criticism, disagreement and off-topic small talk are safe.

Respond with JSON only: {"safe": boolean, "reason": string}.
The reason must be one short sentence.`

const summarySystemPrompt = `Write a one or two sentence summary of the blog post you are given.
Use the language the post is written in. Plain text only, no markdown.`

// 发送给模型的最大正文长度
const maxSummaryInput = 12000

type GeminiClient struct {
	client     *genai.Client
	moderator  *genai.GenerativeModel
	summarizer *genai.GenerativeModel
	logger     *zap.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string, logger *zap.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	temperature := float32(0)
	mod := client.GenerativeModel(modelName)
	mod.SystemInstruction = genai.NewUserContent(genai.Text(moderationSystemPrompt))
	mod.ResponseMIMEType = "application/json"
	mod.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"safe": {
				Type:        genai.TypeBoolean,
				Description: "Whether the comment can be published without review",
			},
			"reason": {
				Type:        genai.TypeString,
				Description: "Short explanation of the decision",
			},
		},
		Required: []string{"safe", "reason"},
	}
	mod.Temperature = &temperature

	maxTokens := int32(256)
	sum := client.GenerativeModel(modelName)
	sum.SystemInstruction = genai.NewUserContent(genai.Text(summarySystemPrompt))
	sum.ResponseMIMEType = "text/plain"
	sum.MaxOutputTokens = &maxTokens

	return &GeminiClient{
		client:     client,
		moderator:  mod,
		summarizer: sum,
		logger:     logger.Named("moderation"),
	}, nil
}

// ModerateComment 审核评论
func (c *GeminiClient) ModerateComment(ctx context.Context, in Input) (Verdict, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to marshal moderation input: %w", err)
	}

	text, err := c.generate(ctx, c.moderator, string(payload))
	if err != nil {
		return Verdict{}, err
	}

	v, err := parseVerdict(text)
	if err != nil {
		return Verdict{}, err
	}

	c.logger.Debug("Comment moderated",
		zap.Bool("safe", v.Safe),
		zap.String("reason", v.Reason))
	return v, nil
}

// Summarize 生成文章摘要
func (c *GeminiClient) Summarize(ctx context.Context, title, content string) (string, error) {
	if r := []rune(content); len(r) > maxSummaryInput {
		content = string(r[:maxSummaryInput])
	}

	text, err := c.generate(ctx, c.summarizer, "# "+title+"\n\n"+content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *GeminiClient) generate(ctx context.Context, m *genai.GenerativeModel, prompt string) (string, error) {
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	return responseText(resp)
}

// parseVerdict 解析审核结果，safe 字段缺失视为无效响应
func parseVerdict(text string) (Verdict, error) {
	var raw struct {
		Safe   *bool  `json:"safe"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrModelResponse, err)
	}
	if raw.Safe == nil {
		return Verdict{}, fmt.Errorf("%w: missing safe field", ErrModelResponse)
	}
	return Verdict{Safe: *raw.Safe, Reason: strings.TrimSpace(raw.Reason)}, nil
}

// responseText 拼接首个候选中的文本片段
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no response from model", ErrModelResponse)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty text", ErrModelResponse)
	}
	return b.String(), nil
}

// Close 关闭底层连接
func (c *GeminiClient) Close() error {
	return c.client.Close()
}
