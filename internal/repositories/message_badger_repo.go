package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prudhvinik1/edgerelay/internal/models"
)

// BadgerMessageRepository keeps messages in an embedded Badger database.
//
// Keys are "msg:{len(low)}:{low}{len(high)}:{high}:{unix_nano_padded}:{uuid}"
// where low/high are the two participants in lexical order. Both directions of a
// conversation share one prefix, the lengths keep one pair's prefix from matching
// another's whatever bytes the ids contain, and the zero padded timestamp makes a
// forward prefix scan return the conversation oldest first.
type BadgerMessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerMessageRepository(db *badger.DB, log *slog.Logger) *BadgerMessageRepository {
	return &BadgerMessageRepository{db: db, log: log}
}

func (r *BadgerMessageRepository) Insert(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	id := uuid.New()
	stored := *msg
	stored.ID = id

	value, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := conversationPrefix(msg.Sender, msg.Receiver) +
		fmt.Sprintf("%019d:%s", msg.CreatedAt.UnixNano(), id)

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to insert message: %w", ErrStoreUnavailable, err)
	}

	msg.ID = id
	return nil
}

func (r *BadgerMessageRepository) QueryBetween(ctx context.Context, a, b models.UserID) ([]*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	prefix := []byte(conversationPrefix(a, b))
	messages := make([]*models.Message, 0)

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var msg models.Message
				if err := json.Unmarshal(value, &msg); err != nil {
					return err
				}
				if !msg.Involves(a, b) {
					r.log.Warn("Skipping record outside conversation", "key", string(it.Item().Key()))
					return nil
				}
				messages = append(messages, &msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query messages: %w", ErrStoreUnavailable, err)
	}

	r.log.Debug("Conversation loaded", "a", a, "b", b, "count", len(messages))
	return messages, nil
}

func conversationPrefix(a, b models.UserID) string {
	low, high := a, b
	if high < low {
		low, high = high, low
	}
	return fmt.Sprintf("msg:%d:%s%d:%s:", len(low), low, len(high), high)
}
