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

type TransactionRepository interface {
	CreateInitialized(ctx context.Context, tx pgx.Tx, t *domain.PaymentTransaction) error
	MarkGatewayFailure(ctx context.Context, tx pgx.Tx, token string) (int64, error)
	ApplyCommitOutcome(ctx context.Context, tx pgx.Tx, outcome domain.CommitOutcome) (*domain.PaymentTransaction, error)
	MarkPurchaseFailure(ctx context.Context, tx pgx.Tx, transactionID int64) error
	InsertFailure(ctx context.Context, userID *int64, errMsg string) error
	GetByToken(ctx context.Context, token string) (*domain.PaymentTransaction, error)
}

type transactionRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewTransactionRepository(pool *pgxpool.Pool, logger *zap.Logger) TransactionRepository {
	return &transactionRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("transaction_repository"),
	}
}

const transactionColumns = `
	id, user_id, buy_order, session_id, token, status, amount, authorization_code,
	card_last_digits, payment_type_code, response_code, installments_number,
	transaction_date, error_message, created_at, updated_at
`

func scanTransaction(row pgx.Row) (*domain.PaymentTransaction, error) {
	var (
		t      domain.PaymentTransaction
		status string
	)
	if err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.BuyOrder,
		&t.SessionID,
		&t.Token,
		&status,
		&t.Amount,
		&t.AuthorizationCode,
		&t.CardLastDigits,
		&t.PaymentTypeCode,
		&t.ResponseCode,
		&t.InstallmentsNumber,
		&t.TransactionDate,
		&t.ErrorMessage,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.Status = domain.TransactionStatus(status)
	return &t, nil
}

func (r *transactionRepo) CreateInitialized(ctx context.Context, tx pgx.Tx, t *domain.PaymentTransaction) error {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.CreateInitialized")
	defer span.End()

	if t.BuyOrder != nil {
		span.SetAttributes(attribute.String("buy_order", *t.BuyOrder))
	}

	query := `
		INSERT INTO webpay_transactions (user_id, buy_order, session_id, token, status, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	t.Status = domain.StatusInitialized
	err := tx.QueryRow(
		ctx,
		query,
		t.UserID,
		t.BuyOrder,
		t.SessionID,
		t.Token,
		string(t.Status),
		t.Amount,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		span.RecordError(err)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateBuyOrder
		}

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert webpay transaction",
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert webpay transaction: %w", err)
	}

	return nil
}

// MarkGatewayFailure flags the row holding token as FAILED with the gateway error code.
// Only INITIALIZED rows are touched, so a replayed confirm cannot overwrite a settled payment.
// It returns the number of rows touched; zero is not an error.
func (r *transactionRepo) MarkGatewayFailure(ctx context.Context, tx pgx.Tx, token string) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.MarkGatewayFailure")
	defer span.End()

	query := `
		UPDATE webpay_transactions
		SET status = $1,
			response_code = $2,
			transaction_date = NOW(),
			updated_at = NOW()
		WHERE token = $3
			AND status = $4
	`

	tag, err := tx.Exec(
		ctx,
		query,
		string(domain.StatusFailed),
		domain.ResponseCodeGatewayError,
		token,
		string(domain.StatusInitialized),
	)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to mark gateway failure: %w", err)
	}

	span.SetAttributes(attribute.Int64("rows_affected", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// ApplyCommitOutcome settles the INITIALIZED row for the buy order. A row that was already
// settled is reported as ErrTransactionNotFound.
func (r *transactionRepo) ApplyCommitOutcome(
	ctx context.Context,
	tx pgx.Tx,
	outcome domain.CommitOutcome,
) (*domain.PaymentTransaction, error) {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.ApplyCommitOutcome")
	defer span.End()

	span.SetAttributes(
		attribute.String("buy_order", outcome.BuyOrder),
		attribute.String("status", string(outcome.Status)),
		attribute.Int("response_code", outcome.ResponseCode),
	)

	query := `
		UPDATE webpay_transactions
		SET status = $1,
			authorization_code = NULLIF($2, ''),
			card_last_digits = NULLIF($3, ''),
			payment_type_code = NULLIF($4, ''),
			response_code = $5,
			installments_number = $6,
			transaction_date = COALESCE($7, NOW()),
			updated_at = NOW()
		WHERE buy_order = $8
			AND status = $9
		RETURNING ` + transactionColumns

	t, err := scanTransaction(tx.QueryRow(
		ctx,
		query,
		string(outcome.Status),
		outcome.AuthorizationCode,
		outcome.CardLastDigits,
		outcome.PaymentTypeCode,
		outcome.ResponseCode,
		outcome.InstallmentsNumber,
		outcome.TransactionDate,
		outcome.BuyOrder,
		string(domain.StatusInitialized),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(
				ctx,
				r.logger,
				"No pending webpay transaction for buy order",
				zap.String("buy_order", outcome.BuyOrder),
			)

			return nil, ErrTransactionNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("failed to apply commit outcome: %w", err)
	}

	return t, nil
}

func (r *transactionRepo) MarkPurchaseFailure(ctx context.Context, tx pgx.Tx, transactionID int64) error {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.MarkPurchaseFailure")
	defer span.End()

	span.SetAttributes(attribute.Int64("transaction_id", transactionID))

	query := `
		UPDATE webpay_transactions
		SET status = $1,
			response_code = $2,
			updated_at = NOW()
		WHERE id = $3
	`

	tag, err := tx.Exec(ctx, query, string(domain.StatusFailed), domain.ResponseCodePurchaseError, transactionID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark purchase failure: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

// InsertFailure records a FAILED row outside any caller transaction.
func (r *transactionRepo) InsertFailure(ctx context.Context, userID *int64, errMsg string) error {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.InsertFailure")
	defer span.End()

	query := `
		INSERT INTO webpay_transactions (user_id, buy_order, session_id, status, error_message)
		VALUES ($1, NULL, NULL, $2, $3)
	`

	if _, err := r.pool.Exec(ctx, query, userID, string(domain.StatusFailed), errMsg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert failure record: %w", err)
	}

	return nil
}

func (r *transactionRepo) GetByToken(ctx context.Context, token string) (*domain.PaymentTransaction, error) {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.GetByToken")
	defer span.End()

	query := `SELECT ` + transactionColumns + ` FROM webpay_transactions WHERE token = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}

		span.RecordError(err)
		return nil, fmt.Errorf("failed to get transaction by token: %w", err)
	}

	return t, nil
}
