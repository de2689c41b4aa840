// Package users implements the producer side of the pipeline: the domain
// write and its outbox row commit in one transaction, so there is no path
// where a user exists without its relay obligation or vice versa.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nebulateam/nebula/internal/logging"
	"github.com/nebulateam/nebula/internal/outbox"
	"github.com/nebulateam/nebula/internal/tracing"
)

const EventUserCreated = "user.created"

var ErrInvalidName = errors.New("name must be between 3 and 50 characters")

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserCreatedEvent is the outbox payload for a new user.
type UserCreatedEvent struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

type Service struct {
	pool   *pgxpool.Pool
	outbox *outbox.Store
	logger *logging.Logger
}

func NewService(pool *pgxpool.Pool, ob *outbox.Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.New("users")
	}
	return &Service{pool: pool, outbox: ob, logger: logger}
}

// ValidateName enforces the create-user contract: required, 3 to 50
// characters. The bound is on characters, not bytes.
func ValidateName(name string) error {
	if n := utf8.RuneCountInString(name); n < 3 || n > 50 {
		return ErrInvalidName
	}
	return nil
}

// CreateUser inserts the user row and its user.created outbox row atomically.
func (s *Service) CreateUser(ctx context.Context, name string) (User, error) {
	if err := ValidateName(name); err != nil {
		return User{}, err
	}

	ctx, span := tracing.StartSpan(ctx, "users.CreateUser")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return User{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	u := User{Name: name}
	if err := tx.QueryRow(ctx, `
		INSERT INTO users(name)
		VALUES ($1)
		RETURNING id, created_at`,
		name,
	).Scan(&u.ID, &u.CreatedAt); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	payload, err := json.Marshal(UserCreatedEvent{UserID: u.ID, Name: u.Name})
	if err != nil {
		return User{}, fmt.Errorf("marshal event: %w", err)
	}
	if err := s.outbox.InsertTx(ctx, tx, EventUserCreated, payload); err != nil {
		return User{}, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, fmt.Errorf("commit: %w", err)
	}

	span.SetAttributes(attribute.Int64("user_id", u.ID))
	s.logger.WithContext(ctx).WithUser(fmt.Sprintf("%d", u.ID)).Info("user created with outbox event")
	return u, nil
}
