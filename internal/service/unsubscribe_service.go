package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/pkg/jwt"
	"github.com/qs3c/inkpress/internal/repository"
)

var (
	ErrUnsubscribeLinkInvalid = errors.New("退订链接无效")
	ErrUnsubscribeLinkExpired = errors.New("退订链接已过期")
	ErrTokenUsed              = errors.New("退订链接已使用")
)

const usedTokenKeyPrefix = "unsubscribe:jti:"

var knownCategories = map[string]bool{
	model.EmailCategoryReplyNotification: true,
}

type UnsubscribeService struct {
	unsubRepo *repository.UnsubscriptionRepository
	redis     *redis.Client
	cfg       *config.Config
	logger    *zap.Logger
}

func NewUnsubscribeService(
	unsubRepo *repository.UnsubscriptionRepository,
	redisClient *redis.Client,
	cfg *config.Config,
	logger *zap.Logger,
) *UnsubscribeService {
	return &UnsubscribeService{
		unsubRepo: unsubRepo,
		redis:     redisClient,
		cfg:       cfg,
		logger:    logger.Named("unsubscribe"),
	}
}

// Consume 校验一次性退订令牌并记录退订，返回退订的类别
func (s *UnsubscribeService) Consume(ctx context.Context, token string) (string, error) {
	claims, err := jwt.ParseScopedToken(token, s.cfg.Email.UnsubscribeSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return "", ErrUnsubscribeLinkExpired
		}
		return "", ErrUnsubscribeLinkInvalid
	}
	if !knownCategories[claims.Category] {
		return "", ErrUnsubscribeLinkInvalid
	}

	ttl := time.Second
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > ttl {
			ttl = remaining
		}
	}

	key := usedTokenKeyPrefix + claims.ID
	claimed, err := s.redis.SetNX(ctx, key, claims.UserID, ttl).Result()
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", ErrTokenUsed
	}

	if err := s.unsubRepo.Add(claims.UserID, claims.Category); err != nil {
		// 释放令牌，允许重试
		if derr := s.redis.Del(ctx, key).Err(); derr != nil {
			s.logger.Warn("Failed to release unsubscribe token", zap.Error(derr))
		}
		return "", err
	}

	s.logger.Info("User unsubscribed",
		zap.Int64("userID", claims.UserID), zap.String("category", claims.Category))
	return claims.Category, nil
}
