package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/qs3c/inkpress/internal/pkg/queue"
	"github.com/qs3c/inkpress/internal/service"
)

const emailSendAttempts = 3

// Sender 邮件发送
type Sender interface {
	Send(to, subject, html string, extra map[string]string) error
}

type ModerationRunner interface {
	Run(ctx context.Context, instanceID string, params service.ModerationParams) error
}

type PostProcessRunner interface {
	Run(ctx context.Context, instanceID string, params service.PostProcessParams) error
}

// Processor 按消息类型分发队列消息
type Processor struct {
	mailer      Sender
	moderation  ModerationRunner
	postProcess PostProcessRunner
	logger      *zap.Logger
	newBackOff  func() backoff.BackOff
}

// NewProcessor 创建消息处理器
func NewProcessor(mailer Sender, moderation ModerationRunner, postProcess PostProcessRunner, logger *zap.Logger) *Processor {
	return &Processor{
		mailer:      mailer,
		moderation:  moderation,
		postProcess: postProcess,
		logger:      logger.Named("processor"),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(time.Second),
				backoff.WithMaxElapsedTime(0),
			)
		},
	}
}

// Process 处理一条消息。工作流失败时实例保持 failed，由补偿扫描重新投递。
func (p *Processor) Process(ctx context.Context, msg *queue.Message) error {
	switch msg.Type {
	case queue.TypeEmail:
		var payload queue.EmailPayload
		if err := msg.Decode(&payload); err != nil {
			return fmt.Errorf("failed to decode email payload: %w", err)
		}
		return p.sendEmail(ctx, &payload)

	case queue.TypeCommentModeration:
		var payload queue.WorkflowPayload
		var params service.ModerationParams
		if err := decodeWorkflow(msg, &payload, &params); err != nil {
			return err
		}
		return p.moderation.Run(ctx, payload.InstanceID, params)

	case queue.TypePostProcess:
		var payload queue.WorkflowPayload
		var params service.PostProcessParams
		if err := decodeWorkflow(msg, &payload, &params); err != nil {
			return err
		}
		return p.postProcess.Run(ctx, payload.InstanceID, params)

	default:
		return fmt.Errorf("%w: %s", queue.ErrUnknownType, msg.Type)
	}
}

func (p *Processor) sendEmail(ctx context.Context, payload *queue.EmailPayload) error {
	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), emailSendAttempts-1), ctx)
	return backoff.RetryNotify(func() error {
		return p.mailer.Send(payload.To, payload.Subject, payload.HTML, payload.Headers)
	}, b, func(err error, next time.Duration) {
		p.logger.Warn("Email send failed, retrying",
			zap.String("to", payload.To),
			zap.Duration("retryIn", next),
			zap.Error(err))
	})
}

func decodeWorkflow(msg *queue.Message, payload *queue.WorkflowPayload, params interface{}) error {
	if err := msg.Decode(payload); err != nil {
		return fmt.Errorf("failed to decode workflow payload: %w", err)
	}
	if payload.InstanceID == "" {
		return fmt.Errorf("workflow message %s without instance id", msg.Type)
	}
	if err := json.Unmarshal(payload.Params, params); err != nil {
		return fmt.Errorf("failed to decode workflow params: %w", err)
	}
	return nil
}
