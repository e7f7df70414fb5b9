package repo

import (
	"context"
	"testing"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

func TestConversation_ListMarkReadAndRows(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := mkUser(t, db, "ana")
	b := mkUser(t, db, "beto")
	c := mkUser(t, db, "carla")

	send := func(from, to uint, text string) *domain.Message {
		m := &domain.Message{SenderID: from, ReceiverID: to, Content: text}
		if err := CreateMessage(ctx, db, m); err != nil {
			t.Fatalf("create message: %v", err)
		}
		return m
	}
	send(b.ID, a.ID, "hola")
	send(a.ID, b.ID, "hola, ¿sigue disponible?")
	send(b.ID, a.ID, "sí")
	last := send(c.ID, a.ID, "te interesa?")

	msgs, err := ListConversation(ctx, db, a.ID, b.ID)
	if err != nil || len(msgs) != 3 || msgs[0].Content != "hola" {
		t.Fatalf("conversation: %v err=%v", msgs, err)
	}

	rows, err := ListConversationRows(ctx, db, a.ID)
	if err != nil || len(rows) != 2 {
		t.Fatalf("rows: %v err=%v", rows, err)
	}
	if rows[0].OtherID != c.ID || rows[0].LastID != last.ID || rows[0].Unread != 1 {
		t.Fatalf("first row: %+v", rows[0])
	}
	if rows[1].OtherID != b.ID || rows[1].Unread != 2 {
		t.Fatalf("second row: %+v", rows[1])
	}

	if err := MarkRead(ctx, db, a.ID, b.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	rows, _ = ListConversationRows(ctx, db, a.ID)
	if rows[1].Unread != 0 {
		t.Fatalf("unread after mark: %+v", rows[1])
	}

	byID, err := GetMessagesByID(ctx, db, []uint{last.ID})
	if err != nil || byID[last.ID].Content != "te interesa?" {
		t.Fatalf("by id: %v err=%v", byID, err)
	}

	n, latest, err := ConversationStats(ctx, db, a.ID, b.ID)
	if err != nil || n != 3 || latest == nil {
		t.Fatalf("stats: n=%d latest=%v err=%v", n, latest, err)
	}
}
