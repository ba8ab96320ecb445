package repository

import (
	"context"
)

// PostgresStore binds every repository to the same pool or transaction.
type PostgresStore struct {
	db DBTX
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Users() UserRepository                 { return NewUserRepository(s.db) }
func (s *PostgresStore) Crews() CrewRepository                 { return NewCrewRepository(s.db) }
func (s *PostgresStore) Conversations() ConversationRepository { return NewConversationRepository(s.db) }
func (s *PostgresStore) Messages() MessageRepository           { return NewMessageRepository(s.db) }
func (s *PostgresStore) Outbox() OutboxRepository              { return NewOutboxRepository(s.db) }

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return WithTx(ctx, s.db, func(tx DBTX) error {
		return fn(&PostgresStore{db: tx})
	})
}
