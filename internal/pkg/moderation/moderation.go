// Package moderation 调用外部大模型对评论进行审核，并生成文章摘要。
package moderation

import (
	"context"
	"errors"
)

var (
	ErrModelResponse = errors.New("invalid model response")
	ErrNotConfigured = errors.New("moderation client not configured")
)

// PostContext 审核时参考的文章信息
type PostContext struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

type Input struct {
	Comment string      `json:"comment"`
	Post    PostContext `json:"post"`
}

// Verdict 审核结论
type Verdict struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason"`
}

type Moderator interface {
	ModerateComment(ctx context.Context, in Input) (Verdict, error)
	Summarize(ctx context.Context, title, content string) (string, error)
}

// Unconfigured 未配置 API Key 时使用，所有调用都返回错误
type Unconfigured struct{}

func (Unconfigured) ModerateComment(context.Context, Input) (Verdict, error) {
	return Verdict{}, ErrNotConfigured
}

func (Unconfigured) Summarize(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}
