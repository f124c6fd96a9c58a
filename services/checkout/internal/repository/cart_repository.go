package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakashimaa/ferreteria-checkout/services/checkout/internal/domain"
	"github.com/sakashimaa/ferreteria-checkout/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type CartRepository interface {
	GetCart(ctx context.Context, userID int64) (*domain.Cart, error)
	LockCart(ctx context.Context, tx pgx.Tx, userID int64) (*domain.Cart, error)
	ClearCart(ctx context.Context, tx pgx.Tx, userID int64) error
}

type cartRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewCartRepository(pool *pgxpool.Pool, logger *zap.Logger) CartRepository {
	return &cartRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("cart_repository"),
	}
}

const cartQuery = `
	SELECT ci.product_id, p.name, p.price, ci.quantity, p.stock
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	WHERE ci.user_id = $1
	ORDER BY ci.product_id
`

func (r *cartRepo) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.GetCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	rows, err := r.pool.Query(ctx, cartQuery, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}

	cart, err := scanCart(rows, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return cart, nil
}

// LockCart reads the cart and locks both the cart lines and their products until tx ends.
func (r *cartRepo) LockCart(ctx context.Context, tx pgx.Tx, userID int64) (*domain.Cart, error) {
	ctx, span := r.tracer.Start(ctx, "CartRepository.LockCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	rows, err := tx.Query(ctx, cartQuery+" FOR UPDATE OF ci, p", userID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to lock cart",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}

	cart, err := scanCart(rows, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("items_count", len(cart.Items)))
	return cart, nil
}

func (r *cartRepo) ClearCart(ctx context.Context, tx pgx.Tx, userID int64) error {
	ctx, span := r.tracer.Start(ctx, "CartRepository.ClearCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}

func scanCart(rows pgx.Rows, userID int64) (*domain.Cart, error) {
	defer rows.Close()

	cart := &domain.Cart{UserID: userID}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(
			&item.ProductID,
			&item.Name,
			&item.UnitPrice,
			&item.Quantity,
			&item.Stock,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}

		cart.Items = append(cart.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	return cart, nil
}
