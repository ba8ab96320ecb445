package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"upforit/internal/domain/conversation"
	"upforit/internal/domain/crew"
	"upforit/internal/domain/user"
	"upforit/internal/repository"
	upforit_errors "upforit/pkg/errors"
	"upforit/pkg/logger"

	"github.com/google/uuid"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	CrewName      string
	TestUserCount int
	Date          string
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		CrewName:      "Friday Regulars",
		TestUserCount: 5,
		Date:          time.Now().UTC().Format(crew.DateLayout),
	}
}

// SeedResult holds the result of the seeding operation
type SeedResult struct {
	Users         []user.User
	Crew          crew.Crew
	Conversations []conversation.Conversation
	Messages      []conversation.Message
}

var testUsers = []struct {
	id          string
	displayName string
}{
	{"dev-alice", "Alice"},
	{"dev-bob", "Bob"},
	{"dev-charlie", "Charlie"},
	{"dev-diana", "Diana"},
	{"dev-edward", "Edward"},
	{"dev-fiona", "Fiona"},
}

// SeedDevelopment fills the store with a crew, availability and a couple of chats.
// Seeded messages bypass the outbox so no pushes go out.
func SeedDevelopment(ctx context.Context, store repository.Store, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}
	if cfg.TestUserCount < 2 {
		return nil, fmt.Errorf("need at least two test users, got %d", cfg.TestUserCount)
	}

	log := logger.L()
	log.Infof("Starting database seeding...")
	result := &SeedResult{}

	for i := 0; i < cfg.TestUserCount && i < len(testUsers); i++ {
		u := user.User{ID: testUsers[i].id, DisplayName: testUsers[i].displayName}
		if err := store.Users().Upsert(ctx, &u); err != nil {
			return nil, fmt.Errorf("failed to create test user %s: %w", u.ID, err)
		}
		result.Users = append(result.Users, u)
	}

	owner := result.Users[0]
	c := crew.Crew{ID: uuid.NewString(), Name: cfg.CrewName, OwnerID: owner.ID}
	if err := store.Crews().Create(ctx, &c); err != nil {
		return nil, fmt.Errorf("failed to create crew: %w", err)
	}
	result.Crew = c

	for i, u := range result.Users {
		if err := store.Crews().AddMember(ctx, &crew.Member{CrewID: c.ID, UserID: u.ID}); err != nil && !errors.Is(err, upforit_errors.ErrAlreadyExists) {
			return nil, err
		}
		// the first half of the crew is up for it
		if _, err := store.Crews().SetAvailability(ctx, crew.Availability{
			CrewID:  c.ID,
			Date:    cfg.Date,
			UserID:  u.ID,
			UpForIt: i < (len(result.Users)+1)/2,
		}); err != nil {
			return nil, err
		}
	}

	second := result.Users[1]
	direct := conversation.Conversation{
		ID:        conversation.DirectConversationID(owner.ID, second.ID),
		Kind:      conversation.KindDirect,
		MemberIDs: []string{owner.ID, second.ID},
	}
	if _, err := store.Conversations().CreateIfNotExists(ctx, &direct); err != nil {
		return nil, err
	}
	result.Conversations = append(result.Conversations, direct)

	var upMembers []string
	for i, u := range result.Users {
		if i < (len(result.Users)+1)/2 {
			upMembers = append(upMembers, u.ID)
		}
	}
	group := conversation.Conversation{
		ID:        conversation.GroupConversationID(c.ID, cfg.Date),
		Kind:      conversation.KindGroup,
		CrewID:    c.ID,
		Date:      cfg.Date,
		MemberIDs: upMembers,
	}
	if _, err := store.Conversations().CreateIfNotExists(ctx, &group); err != nil {
		return nil, err
	}
	result.Conversations = append(result.Conversations, group)

	lines := []struct {
		conv   string
		sender string
		text   string
	}{
		{direct.ID, owner.ID, "You out tonight?"},
		{direct.ID, second.ID, "Maybe, who else is going?"},
		{group.ID, owner.ID, "Usual place at 9?"},
	}
	for _, line := range lines {
		m := conversation.Message{ID: uuid.NewString(), ConversationID: line.conv, SenderID: line.sender, Text: line.text}
		if err := store.Messages().Create(ctx, &m); err != nil {
			return nil, fmt.Errorf("failed to seed message: %w", err)
		}
		result.Messages = append(result.Messages, m)
	}

	log.Infof("Seeded %d users, crew %s, %d conversations, %d messages",
		len(result.Users), c.ID, len(result.Conversations), len(result.Messages))
	return result, nil
}
