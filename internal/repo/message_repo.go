// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for user-to-user
// messages.
//
// Conversations are derived from the messages table; there is no separate
// thread entity. The (sender_id, receiver_id, created_at) index serves both
// directions of a conversation query.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

// CreateMessage inserts m.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(m).Error
}

// ListConversation returns the messages exchanged between a and b, oldest first.
func ListConversation(ctx context.Context, db *gorm.DB, a, b uint) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// MarkRead flags every message from sender to receiver as read.
func MarkRead(ctx context.Context, db *gorm.DB, receiver, sender uint) error {
	return db.WithContext(ctx).Model(&domain.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND read = ?", receiver, sender, false).
		Update("read", true).Error
}

// ConversationRow summarizes one conversation of a user.
type ConversationRow struct {
	OtherID uint
	LastID  uint
	Unread  int64
}

// ListConversationRows returns one row per counterpart of userID, most
// recent conversation first. The last message is identified by its id,
// which grows monotonically (MAX over DATETIME would come back as TEXT).
func ListConversationRows(ctx context.Context, db *gorm.DB, userID uint) ([]ConversationRow, error) {
	var out []ConversationRow
	err := db.WithContext(ctx).Model(&domain.Message{}).
		Select(`CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS other_id,
			MAX(id) AS last_id,
			SUM(CASE WHEN receiver_id = ? AND read = 0 THEN 1 ELSE 0 END) AS unread`, userID, userID).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Group("other_id").
		Order("last_id DESC").
		Scan(&out).Error
	return out, err
}

// GetMessagesByID fetches messages by id, keyed by id.
func GetMessagesByID(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]domain.Message, error) {
	out := make(map[uint]domain.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.Message
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.ID] = m
	}
	return out, nil
}
