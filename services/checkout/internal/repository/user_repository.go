package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type UserRepository interface {
	GetEmail(ctx context.Context, tx pgx.Tx, userID int64) (string, error)
}

type userRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewUserRepository(pool *pgxpool.Pool, logger *zap.Logger) UserRepository {
	return &userRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("user_repository"),
	}
}

func (r *userRepo) GetEmail(ctx context.Context, tx pgx.Tx, userID int64) (string, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.GetEmail")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	var email string
	err := tx.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}

		span.RecordError(err)
		return "", fmt.Errorf("failed to get user email: %w", err)
	}

	return email, nil
}
