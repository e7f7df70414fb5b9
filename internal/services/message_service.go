// Package services – MessageService
//
// This file implements MessageService, which owns user-to-user messages and
// doubles as the notification channel of the transaction engine. Lifecycle
// events are delivered as ordinary messages from the acting user, tied to
// the transaction they concern.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include the participating user identifiers.
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
)

const (
	minMessageRunes = 2
	maxMessageRunes = 2000
)

// Notifier delivers lifecycle notifications. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, from, to uint, transactionID *uint, content string)
}

// Conversation summarizes one conversation of a user.
type Conversation struct {
	With        domain.User    `json:"with"`
	LastMessage domain.Message `json:"last_message"`
	Unread      int64          `json:"unread"`
}

// MessageService persists messages between users.
type MessageService struct {
	DB *gorm.DB
}

// Send stores a message from actor to receiverID.
func (s *MessageService) Send(ctx context.Context, actor domain.Actor, receiverID uint, content string, transactionID *uint) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.UserID)),
			attribute.Int64("receiver.id", int64(receiverID)),
		),
	)
	defer span.End()

	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	if receiverID == actor.UserID {
		return nil, ErrSelfMessage
	}
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n < minMessageRunes {
		return nil, invalid("message must have at least %d characters", minMessageRunes)
	} else if n > maxMessageRunes {
		return nil, invalid("message must have at most %d characters", maxMessageRunes)
	}
	ok, err := repo.UserExists(ctx, s.DB, receiverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	if transactionID != nil {
		t, err := repo.GetTransaction(ctx, s.DB, *transactionID)
		if err != nil {
			return nil, mapNotFound(err, ErrTransactionNotFound)
		}
		if !involves(t, actor) {
			return nil, denied("you are not a party of this transaction")
		}
	}

	m := &domain.Message{SenderID: actor.UserID, ReceiverID: receiverID, TransactionID: transactionID, Content: content}
	if err := repo.CreateMessage(ctx, s.DB, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Conversation returns the messages between actor and other, oldest first,
// and marks the ones addressed to actor as read.
func (s *MessageService) Conversation(ctx context.Context, actor domain.Actor, other uint) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Conversation",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(actor.UserID)),
			attribute.Int64("other.id", int64(other)),
		),
	)
	defer span.End()

	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	ok, err := repo.UserExists(ctx, s.DB, other)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	msgs, err := repo.ListConversation(ctx, s.DB, actor.UserID, other)
	if err != nil {
		return nil, err
	}
	if err := repo.MarkRead(ctx, s.DB, actor.UserID, other); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Conversations lists actor's counterparts, most recent first, with the last
// message and the number of unread messages of each.
func (s *MessageService) Conversations(ctx context.Context, actor domain.Actor) ([]Conversation, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Conversations",
		trace.WithAttributes(attribute.Int64("user.id", int64(actor.UserID))),
	)
	defer span.End()

	if actor.UserID == 0 {
		return nil, ErrUnauthenticated
	}
	rows, err := repo.ListConversationRows(ctx, s.DB, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []Conversation{}, nil
	}
	userIDs := make([]uint, 0, len(rows))
	msgIDs := make([]uint, 0, len(rows))
	for _, r := range rows {
		userIDs = append(userIDs, r.OtherID)
		msgIDs = append(msgIDs, r.LastID)
	}
	users, err := repo.GetUsers(ctx, s.DB, userIDs)
	if err != nil {
		return nil, err
	}
	msgs, err := repo.GetMessagesByID(ctx, s.DB, msgIDs)
	if err != nil {
		return nil, err
	}
	out := make([]Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, Conversation{With: users[r.OtherID], LastMessage: msgs[r.LastID], Unread: r.Unread})
	}
	return out, nil
}

// Notify implements Notifier. Failures are logged and swallowed.
func (s *MessageService) Notify(ctx context.Context, from, to uint, transactionID *uint, content string) {
	if from == 0 || to == 0 || from == to {
		return
	}
	m := &domain.Message{SenderID: from, ReceiverID: to, TransactionID: transactionID, Content: content, CreatedAt: time.Now().UTC()}
	if err := repo.CreateMessage(ctx, s.DB, m); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Uint("from", from).Uint("to", to).
			Msg("notification not delivered")
	}
}

func involves(t *domain.Transaction, a domain.Actor) bool {
	if t.OriginUserID == a.UserID || a.Represents(t.FoundationID) {
		return true
	}
	return t.DestinationUserID != nil && *t.DestinationUserID == a.UserID
}
