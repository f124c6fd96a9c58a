package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	generalDomain "github.com/sakashimaa/ferreteria-checkout/pkg/domain"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	outboxDomain "github.com/sakashimaa/ferreteria-checkout/pkg/outbox/domain"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/domain"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/gateway/transbank"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const returnPath = "/webpay/exito"

func (s *checkoutService) InitiatePayment(ctx context.Context, userID int64) (*domain.PaymentStart, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.InitiatePayment")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	cart, err := s.repos.Cart.GetCart(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	amount := cart.ChargeAmount()
	if cart.IsEmpty() || cart.Total().Sign() <= 0 || amount <= 0 {
		return nil, ErrEmptyCart
	}

	ms := s.now().UnixMilli()
	buyOrder := truncate(fmt.Sprintf("orden-%d", ms), idMaxLen)
	sessionID := truncate(fmt.Sprintf("sess-%d", ms), idMaxLen)

	span.SetAttributes(
		attribute.String("buy_order", buyOrder),
		attribute.Int64("amount", amount),
	)

	created, err := s.gateway.Create(ctx, buyOrder, sessionID, amount, s.frontURL+returnPath)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Webpay transaction could not be created",
			zap.String("buy_order", buyOrder),
			zap.Error(err),
		)

		return nil, fmt.Errorf("%w: %v", ErrGatewayInit, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "InitiatePayment")

	record := &domain.PaymentTransaction{
		UserID:    &userID,
		BuyOrder:  &buyOrder,
		SessionID: &sessionID,
		Token:     &created.Token,
		Amount:    amount,
	}
	if err := s.repos.Transaction.CreateInitialized(ctx, tx, record); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to commit payment intent: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Webpay transaction initialized",
		zap.Int64("user_id", userID),
		zap.String("buy_order", buyOrder),
		zap.Int64("amount", amount),
	)

	return &domain.PaymentStart{Token: created.Token, URL: created.URL}, nil
}

func (s *checkoutService) ConfirmPayment(ctx context.Context, userID int64, token string) (*ConfirmResult, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.ConfirmPayment")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx, "ConfirmPayment")

	committed, err := s.gateway.Commit(ctx, token)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Webpay commit failed",
			zap.Error(err),
		)

		rows, markErr := s.repos.Transaction.MarkGatewayFailure(ctx, tx, token)
		if markErr != nil {
			return nil, markErr
		}
		if rows == 0 {
			mylogger.Warn(ctx, s.logger, "No webpay transaction matched the token")
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit gateway failure: %w", err)
		}

		return nil, fmt.Errorf("%w: %v", ErrGatewayConfirm, err)
	}

	outcome := commitOutcome(committed)
	span.SetAttributes(
		attribute.String("buy_order", outcome.BuyOrder),
		attribute.String("status", string(outcome.Status)),
		attribute.Int("response_code", outcome.ResponseCode),
	)

	record, err := s.repos.Transaction.ApplyCommitOutcome(ctx, tx, outcome)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: buy order %q", ErrTransactionNotFound, outcome.BuyOrder)
		}
		return nil, err
	}

	result := &ConfirmResult{Gateway: committed}

	if domain.Authorized(outcome.Status, outcome.ResponseCode) {
		purchaseID, err := s.purchaseForPayment(ctx, tx, userID, record.ID, record.Amount, outcome)
		if err != nil {
			span.RecordError(err)

			mylogger.Error(
				ctx,
				s.logger,
				"Purchase creation failed after authorized payment",
				zap.Int64("transaction_id", record.ID),
				zap.Error(err),
			)

			if markErr := s.repos.Transaction.MarkPurchaseFailure(ctx, tx, record.ID); markErr != nil {
				return nil, markErr
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("failed to commit purchase failure: %w", err)
			}

			return nil, fmt.Errorf("%w: %v", ErrPurchaseFailed, err)
		}

		result.Authorized = true
		result.PurchaseID = purchaseID
	} else {
		if err := s.enqueuePaymentRejected(ctx, tx, userID, record); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Webpay transaction confirmed",
		zap.Int64("transaction_id", record.ID),
		zap.Bool("authorized", result.Authorized),
		zap.Int64("purchase_id", result.PurchaseID),
	)

	return result, nil
}

// purchaseForPayment runs the purchase inside a savepoint so a failure leaves tx usable.
// The locked cart must still add up to the amount that was charged.
func (s *checkoutService) purchaseForPayment(
	ctx context.Context,
	tx pgx.Tx,
	userID, transactionID, amount int64,
	outcome domain.CommitOutcome,
) (int64, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to open savepoint: %w", err)
	}

	purchase, err := s.placeOrder(ctx, sp, userID, &paymentRef{
		BuyOrder:          outcome.BuyOrder,
		AuthorizationCode: outcome.AuthorizationCode,
		Amount:            amount,
	})
	if err == nil {
		err = s.repos.Purchase.LinkTransaction(ctx, sp, purchase.ID, transactionID)
	}
	if err == nil {
		err = sp.Commit(ctx)
	}
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return 0, fmt.Errorf("failed to roll back savepoint: %w", rbErr)
		}
		return 0, err
	}

	return purchase.ID, nil
}

func (s *checkoutService) enqueuePaymentRejected(
	ctx context.Context,
	tx pgx.Tx,
	userID int64,
	record *domain.PaymentTransaction,
) error {
	email, err := s.repos.User.GetEmail(ctx, tx, userID)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	payload := generalDomain.PaymentRejectedEvent{
		TransactionID: record.ID,
		UserID:        userID,
		Email:         email,
		Status:        string(record.Status),
		Amount:        record.Amount,
		RejectedAt:    s.now().UTC(),
	}
	if record.BuyOrder != nil {
		payload.BuyOrder = *record.BuyOrder
	}
	if record.ResponseCode != nil {
		payload.ResponseCode = *record.ResponseCode
	}

	event, err := outboxDomain.NewEvent(
		"WebpayTransaction",
		strconv.FormatInt(record.ID, 10),
		generalDomain.EventPaymentRejected,
		generalDomain.PurchaseEventsTopic,
		payload,
	)
	if err != nil {
		return err
	}

	if err := s.repos.Outbox.Enqueue(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

// Transbank sends ISO-8601 timestamps; anything unparsable falls back to the database clock.
func commitOutcome(r *transbank.CommitResponse) domain.CommitOutcome {
	outcome := domain.CommitOutcome{
		BuyOrder:           r.BuyOrder,
		Status:             domain.StatusOrFailed(r.Status),
		AuthorizationCode:  r.AuthorizationCode,
		CardLastDigits:     r.CardDetail.CardNumber,
		PaymentTypeCode:    r.PaymentTypeCode,
		ResponseCode:       r.ResponseCode,
		InstallmentsNumber: r.InstallmentsNumber,
	}

	if r.TransactionDate != "" {
		if ts, err := time.Parse(time.RFC3339, r.TransactionDate); err == nil {
			outcome.TransactionDate = &ts
		}
	}

	return outcome
}
