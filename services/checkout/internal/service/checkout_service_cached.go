package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/domain"
	"go.uber.org/zap"
)

type cachedCheckoutService struct {
	next        CheckoutService
	redisClient *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

func NewCachedCheckoutService(next CheckoutService, redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) CheckoutService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &cachedCheckoutService{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    ttl,
		logger:      logger,
	}
}

func purchasesKey(userID int64) string {
	return fmt.Sprintf("purchases:user:%d", userID)
}

func (s *cachedCheckoutService) ListPurchases(ctx context.Context, userID int64) ([]domain.Purchase, error) {
	key := purchasesKey(userID)

	val, err := s.redisClient.Get(ctx, key).Bytes()
	if err == nil {
		var purchases []domain.Purchase
		if err := json.Unmarshal(val, &purchases); err == nil {
			return purchases, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		mylogger.Warn(ctx, s.logger, "Purchases cache read failed", zap.Error(err))
	}

	purchases, err := s.next.ListPurchases(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(purchases); err == nil {
		if err := s.redisClient.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
			mylogger.Warn(ctx, s.logger, "Purchases cache write failed", zap.Error(err))
		}
	}

	return purchases, nil
}

func (s *cachedCheckoutService) PlaceOrder(ctx context.Context, userID int64) (*domain.PlaceOrderResult, error) {
	res, err := s.next.PlaceOrder(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	return res, nil
}

func (s *cachedCheckoutService) InitiatePayment(ctx context.Context, userID int64) (*domain.PaymentStart, error) {
	return s.next.InitiatePayment(ctx, userID)
}

func (s *cachedCheckoutService) ConfirmPayment(ctx context.Context, userID int64, token string) (*ConfirmResult, error) {
	res, err := s.next.ConfirmPayment(ctx, userID, token)
	if err != nil {
		return nil, err
	}

	if res.Authorized {
		s.invalidate(ctx, userID)
	}
	return res, nil
}

func (s *cachedCheckoutService) RecordFailure(ctx context.Context, userID int64, cause error) {
	s.next.RecordFailure(ctx, userID, cause)
}

func (s *cachedCheckoutService) invalidate(ctx context.Context, userID int64) {
	if err := s.redisClient.Del(context.WithoutCancel(ctx), purchasesKey(userID)).Err(); err != nil {
		mylogger.Warn(ctx, s.logger, "Purchases cache invalidation failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
