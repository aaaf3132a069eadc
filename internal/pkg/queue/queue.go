package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 消息类型
const (
	TypeEmail             = "EMAIL"
	TypeCommentModeration = "COMMENT_MODERATION"
	TypePostProcess       = "POST_PROCESS"
)

var ErrUnknownType = errors.New("unknown message type")

type Queue struct {
	client    *redis.Client
	queueName string
}

// Message 队列消息信封
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EmailPayload 待投递的邮件
type EmailPayload struct {
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
}

// WorkflowPayload 触发或恢复一个工作流实例
type WorkflowPayload struct {
	InstanceID string          `json:"instance_id"`
	Params     json.RawMessage `json:"params"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

func (q *Queue) Name() string {
	return q.queueName
}

// Enqueue 封装消息并入队
func (q *Queue) Enqueue(ctx context.Context, msgType string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return q.Push(ctx, &Message{Type: msgType, Data: raw})
}

// EnqueueWorkflow 入队工作流触发消息
func (q *Queue) EnqueueWorkflow(ctx context.Context, msgType, instanceID string, params interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow params: %w", err)
	}
	return q.Enqueue(ctx, msgType, WorkflowPayload{InstanceID: instanceID, Params: raw})
}

// Push 将消息加入队列
func (q *Queue) Push(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取消息（阻塞）
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无消息
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

// Decode 解析消息体
func (m *Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}
