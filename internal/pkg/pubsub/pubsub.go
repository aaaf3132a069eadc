package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelCommentModeration = "comment_moderation"

	EventCommentModerated = "comment_moderated"
)

// ModerationEvent 评论审核结果，推送给管理后台
type ModerationEvent struct {
	Type      string    `json:"type"`
	CommentID int64     `json:"comment_id"`
	PostID    int64     `json:"post_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher Redis 发布者
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, channel: ChannelCommentModeration}
}

// PublishModeration 发布审核事件
func (p *Publisher) PublishModeration(ctx context.Context, ev *ModerationEvent) error {
	ev.Type = EventCommentModerated
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal moderation event: %w", err)
	}

	return p.client.Publish(ctx, p.channel, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client  *redis.Client
	channel string
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client, channel: ChannelCommentModeration}
}

// Subscribe 阻塞订阅，直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ModerationEvent)) error {
	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	// 等待订阅确认，避免调用方在订阅生效前发布
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var ev ModerationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue // 忽略解析错误
			}

			handler(&ev)
		}
	}
}
