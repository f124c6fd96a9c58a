package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	generalDomain "github.com/sakashimaa/ferreteria-checkout/pkg/domain"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/ferreteria-checkout/pkg/outbox/domain"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/domain"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/gateway/transbank"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentGateway interface {
	Create(ctx context.Context, buyOrder, sessionID string, amount int64, returnURL string) (*transbank.CreateResponse, error)
	Commit(ctx context.Context, token string) (*transbank.CommitResponse, error)
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, userID int64) (*domain.PlaceOrderResult, error)
	ListPurchases(ctx context.Context, userID int64) ([]domain.Purchase, error)
	InitiatePayment(ctx context.Context, userID int64) (*domain.PaymentStart, error)
	ConfirmPayment(ctx context.Context, userID int64, token string) (*ConfirmResult, error)
	RecordFailure(ctx context.Context, userID int64, cause error)
}

// ConfirmResult is returned for every confirmation the gateway answered.
// Authorized is false when the gateway declined; that case carries no error.
type ConfirmResult struct {
	Authorized bool
	PurchaseID int64
	Gateway    *transbank.CommitResponse
}

// OutboxWriter enqueues events inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, event *outboxDomain.OutboxEvent) error
}

type Repositories struct {
	Cart        repository.CartRepository
	Product     repository.ProductRepository
	Purchase    repository.PurchaseRepository
	User        repository.UserRepository
	Transaction repository.TransactionRepository
	Outbox      OutboxWriter
}

type Option func(*checkoutService)

func WithClock(now func() time.Time) Option {
	return func(s *checkoutService) {
		s.now = now
	}
}

const idMaxLen = 26

type checkoutService struct {
	pool     *pgxpool.Pool
	logger   *zap.Logger
	repos    Repositories
	gateway  PaymentGateway
	frontURL string
	now      func() time.Time
	tracer   trace.Tracer
}

func NewCheckoutService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	repos Repositories,
	gateway PaymentGateway,
	frontURL string,
	opts ...Option,
) CheckoutService {
	s := &checkoutService{
		pool:     pool,
		logger:   logger,
		repos:    repos,
		gateway:  gateway,
		frontURL: strings.TrimRight(frontURL, "/"),
		now:      time.Now,
		tracer:   otel.Tracer("checkout_service"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *checkoutService) rollback(ctx context.Context, tx pgx.Tx, method string) {
	cleanupCtx := context.WithoutCancel(ctx)

	err := tx.Rollback(cleanupCtx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		mylogger.Error(
			cleanupCtx,
			s.logger,
			"Failed to rollback transaction",
			zap.Error(err),
			zap.String("method_name", method),
		)
	}
}

func (s *checkoutService) PlaceOrder(ctx context.Context, userID int64) (*domain.PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.PlaceOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "PlaceOrder")

	purchase, err := s.placeOrder(ctx, tx, userID, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Failed to commit purchase",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Purchase completed",
		zap.Int64("purchase_id", purchase.ID),
		zap.Int64("user_id", userID),
		zap.String("total", purchase.Total.String()),
	)

	return &domain.PlaceOrderResult{
		Success:    true,
		PurchaseID: purchase.ID,
		Total:      purchase.Total,
	}, nil
}

type paymentRef struct {
	BuyOrder          string
	AuthorizationCode string
	Amount            int64
}

// placeOrder turns the locked cart into a purchase inside tx. It never commits.
func (s *checkoutService) placeOrder(ctx context.Context, tx pgx.Tx, userID int64, payment *paymentRef) (*domain.Purchase, error) {
	cart, err := s.repos.Cart.LockCart(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	// The cart may have changed since the charge was requested.
	if payment != nil && cart.ChargeAmount() != payment.Amount {
		return nil, fmt.Errorf("%w: cart %d, charged %d", ErrAmountMismatch, cart.ChargeAmount(), payment.Amount)
	}

	items := make([]domain.PurchaseItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if !item.InStock() {
			return nil, fmt.Errorf("%w: product %d (%s) has %d, requested %d",
				ErrInsufficientStock, item.ProductID, item.Name, item.Stock, item.Quantity)
		}

		items = append(items, domain.PurchaseItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	purchase := &domain.Purchase{
		UserID:  userID,
		Total:   cart.Total(),
		Success: true,
		Items:   items,
	}

	if err := s.repos.Purchase.CreatePurchase(ctx, tx, purchase); err != nil {
		return nil, err
	}

	for _, item := range purchase.Items {
		if err := s.repos.Product.DecreaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				return nil, fmt.Errorf("%w: product %d", ErrInsufficientStock, item.ProductID)
			}
			return nil, err
		}
	}

	if err := s.repos.Cart.ClearCart(ctx, tx, userID); err != nil {
		return nil, err
	}

	email, err := s.repos.User.GetEmail(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.enqueuePurchaseCompleted(ctx, tx, purchase, email, payment); err != nil {
		return nil, err
	}

	return purchase, nil
}

func (s *checkoutService) enqueuePurchaseCompleted(
	ctx context.Context,
	tx pgx.Tx,
	purchase *domain.Purchase,
	email string,
	payment *paymentRef,
) error {
	lines := make([]generalDomain.PurchaseLine, 0, len(purchase.Items))
	for _, item := range purchase.Items {
		lines = append(lines, generalDomain.PurchaseLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity,
		})
	}

	payload := generalDomain.PurchaseCompletedEvent{
		PurchaseID:  purchase.ID,
		UserID:      purchase.UserID,
		Email:       email,
		Total:       purchase.Total.StringFixed(2),
		Items:       lines,
		CompletedAt: purchase.CreatedAt,
	}
	if payment != nil {
		payload.BuyOrder = payment.BuyOrder
		payload.AuthorizationCode = payment.AuthorizationCode
	}

	event, err := outboxDomain.NewEvent(
		"Purchase",
		strconv.FormatInt(purchase.ID, 10),
		generalDomain.EventPurchaseCompleted,
		generalDomain.PurchaseEventsTopic,
		payload,
	)
	if err != nil {
		return err
	}

	if err := s.repos.Outbox.Enqueue(ctx, tx, event); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to save outbox event",
			zap.Error(err),
		)

		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

func (s *checkoutService) ListPurchases(ctx context.Context, userID int64) ([]domain.Purchase, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.ListPurchases")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	purchases, err := s.repos.Purchase.ListByUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return purchases, nil
}

// RecordFailure is best effort: its own errors are logged and swallowed.
func (s *checkoutService) RecordFailure(ctx context.Context, userID int64, cause error) {
	ctx = context.WithoutCancel(ctx)

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	if err := s.repos.Transaction.InsertFailure(ctx, &userID, msg); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to record failed transaction",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
