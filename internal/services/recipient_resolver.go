package services

import (
	"context"
	"slices"

	"upforit/internal/domain/user"
	"upforit/internal/push"
	"upforit/internal/repository"
	"upforit/pkg/logger"

	"go.uber.org/zap"
)

// RecipientResolver looks recipients up in the user directory, which accepts at most
// repository.MaxDirectoryBatch ids per query.
type RecipientResolver struct {
	users repository.UserRepository
	log   *logger.Logger
}

func NewRecipientResolver(users repository.UserRepository, l *logger.Logger) *RecipientResolver {
	if l == nil {
		l = logger.NewNop()
	}
	return &RecipientResolver{users: users, log: l}
}

// Lookup returns the users that exist among ids. Duplicate and empty ids are ignored.
// A failing batch is logged and skipped.
func (r *RecipientResolver) Lookup(ctx context.Context, ids []string) []user.User {
	unique := dedupe(ids)

	var out []user.User
	for batch := range slices.Chunk(unique, repository.MaxDirectoryBatch) {
		users, err := r.users.GetUsersByIDs(ctx, batch)
		if err != nil {
			r.log.WarnCtx(ctx, "recipient batch lookup failed", zap.Strings("ids", batch), zap.Error(err))
			continue
		}
		out = append(out, users...)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// buildMessages fans recipients out to one message per distinct valid token. The
// returned map records which user owns each token.
func buildMessages(recipients []user.User, compose func(u user.User) push.Message) ([]push.Message, map[string]string) {
	owners := make(map[string]string)
	var msgs []push.Message
	for _, u := range recipients {
		for _, token := range u.PushTokens {
			if !push.ValidToken(token) {
				continue
			}
			if _, dup := owners[token]; dup {
				continue
			}
			owners[token] = u.ID
			m := compose(u)
			m.To = token
			msgs = append(msgs, m)
		}
	}
	return msgs, owners
}
