package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/edgerelay/internal/models"
)

type PostgresMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageRepository(pool *pgxpool.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

func (r *PostgresMessageRepository) Insert(ctx context.Context, msg *models.Message) error {
	query := `INSERT INTO messages (sender, receiver, content, file_url, created_at)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		string(msg.Sender),
		string(msg.Receiver),
		msg.Content,
		msg.FileURL,
		msg.CreatedAt,
	).Scan(&msg.ID)
	if isDataException(err) {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to insert message: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *PostgresMessageRepository) QueryBetween(ctx context.Context, a, b models.UserID) ([]*models.Message, error) {
	query := `SELECT id, sender, receiver, content, file_url, created_at
	          FROM messages
	          WHERE (sender = $1 AND receiver = $2) OR (sender = $2 AND receiver = $1)
	          ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, string(a), string(b))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query messages: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var sender, receiver string
		err := rows.Scan(
			&msg.ID,
			&sender,
			&receiver,
			&msg.Content,
			&msg.FileURL,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Sender = models.UserID(sender)
		msg.Receiver = models.UserID(receiver)
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating messages: %w", ErrStoreUnavailable, err)
	}

	return messages, nil
}
