package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PurchaseRepository interface {
	CreatePurchase(ctx context.Context, tx pgx.Tx, purchase *domain.Purchase) error
	LinkTransaction(ctx context.Context, tx pgx.Tx, purchaseID, transactionID int64) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Purchase, error)
}

type purchaseRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPurchaseRepository(pool *pgxpool.Pool, logger *zap.Logger) PurchaseRepository {
	return &purchaseRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("purchase_repository"),
	}
}

func (r *purchaseRepo) CreatePurchase(ctx context.Context, tx pgx.Tx, purchase *domain.Purchase) error {
	ctx, span := r.tracer.Start(ctx, "PurchaseRepository.CreatePurchase")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", purchase.UserID),
		attribute.Int("items_count", len(purchase.Items)),
	)

	queryPurchase := `
		INSERT INTO purchases (user_id, total, success)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := tx.QueryRow(
		ctx,
		queryPurchase,
		purchase.UserID,
		purchase.Total,
		purchase.Success,
	).Scan(
		&purchase.ID,
		&purchase.CreatedAt,
	); err != nil {
		span.RecordError(err)

		mylogger.Warn(
			ctx,
			r.logger,
			"Failed to insert purchase",
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert purchase: %w", err)
	}

	queryItem := `
		INSERT INTO purchase_items (purchase_id, product_id, name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`

	batch := &pgx.Batch{}
	for _, item := range purchase.Items {
		batch.Queue(queryItem, purchase.ID, item.ProductID, item.Name, item.UnitPrice, item.Quantity)
	}

	results := tx.SendBatch(ctx, batch)
	for range purchase.Items {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			span.RecordError(err)

			mylogger.Error(
				ctx,
				r.logger,
				"Failed to insert purchase item",
				zap.Int64("purchase_id", purchase.ID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert purchase item: %w", err)
		}
	}

	if err := results.Close(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to close purchase item batch: %w", err)
	}

	span.SetAttributes(attribute.Int64("purchase_id", purchase.ID))
	return nil
}

func (r *purchaseRepo) LinkTransaction(ctx context.Context, tx pgx.Tx, purchaseID, transactionID int64) error {
	ctx, span := r.tracer.Start(ctx, "PurchaseRepository.LinkTransaction")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("purchase_id", purchaseID),
		attribute.Int64("transaction_id", transactionID),
	)

	query := `
		INSERT INTO purchase_webpay_transactions (purchase_id, transaction_id)
		VALUES ($1, $2)
	`

	if _, err := tx.Exec(ctx, query, purchaseID, transactionID); err != nil {
		span.RecordError(err)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyLinked
		}

		return fmt.Errorf("failed to link purchase to transaction: %w", err)
	}

	return nil
}

// ListByUser returns the user's purchases newest first, each with its items and linked transaction.
func (r *purchaseRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Purchase, error) {
	ctx, span := r.tracer.Start(ctx, "PurchaseRepository.ListByUser")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	query := `
		SELECT p.id, p.user_id, p.total, p.success, p.created_at,
			t.id, t.buy_order, t.status, t.authorization_code, t.amount
		FROM purchases p
		LEFT JOIN purchase_webpay_transactions pwt ON pwt.purchase_id = p.id
		LEFT JOIN webpay_transactions t ON t.id = pwt.transaction_id
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC, p.id DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var (
			p        domain.Purchase
			txID     *int64
			buyOrder *string
			status   *string
			authCode *string
			txAmount *int64
		)
		if err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.Total,
			&p.Success,
			&p.CreatedAt,
			&txID,
			&buyOrder,
			&status,
			&authCode,
			&txAmount,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}

		if txID != nil {
			summary := &domain.TransactionSummary{
				ID:                *txID,
				BuyOrder:          buyOrder,
				AuthorizationCode: authCode,
			}
			if status != nil {
				summary.Status = domain.TransactionStatus(*status)
			}
			if txAmount != nil {
				summary.Amount = *txAmount
			}
			p.Transaction = summary
		}

		p.Items = make([]domain.PurchaseItem, 0)
		index[p.ID] = len(purchases)
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read purchases: %w", err)
	}

	if len(purchases) == 0 {
		return purchases, nil
	}

	itemsQuery := `
		SELECT pi.purchase_id, pi.product_id, pi.name, pi.unit_price, pi.quantity
		FROM purchase_items pi
		JOIN purchases p ON p.id = pi.purchase_id
		WHERE p.user_id = $1
		ORDER BY pi.id
	`

	itemRows, err := r.pool.Query(ctx, itemsQuery, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query purchase items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			purchaseID int64
			item       domain.PurchaseItem
		)
		if err := itemRows.Scan(
			&purchaseID,
			&item.ProductID,
			&item.Name,
			&item.UnitPrice,
			&item.Quantity,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan purchase item: %w", err)
		}

		if i, ok := index[purchaseID]; ok {
			purchases[i].Items = append(purchases[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read purchase items: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(purchases)))
	return purchases, nil
}
