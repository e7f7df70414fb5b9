package handlers

import (
	"net/http"
	"testing"

	"github.com/tbourn/ecoprenda-backend/internal/services"
)

func TestSanitizeContent(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"crlf", "hola\r\nqué tal", "hola\nqué tal"},
		{"bare cr", "uno\rdos", "uno\ndos"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"keeps paragraphs", "a\n\nb", "a\n\nb"},
		{"trims", "  \n hola \n ", "hola"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeContent(tt.in); got != tt.want {
				t.Fatalf("sanitizeContent(%q)=%q want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSendMessage_Validation(t *testing.T) {
	s := newStack(t, nil)
	a := s.user(t, "olga")
	b := s.user(t, "pablo")

	w := s.do(t, call{method: http.MethodPost, path: "/messages", uid: a, body: SendMessageRequest{ReceiverID: a, Content: "hola"}})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = s.do(t, call{method: http.MethodPost, path: "/messages", uid: a, body: SendMessageRequest{ReceiverID: b, Content: " \r\n "}})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)

	w = s.do(t, call{method: http.MethodPost, path: "/messages", uid: a, body: SendMessageRequest{ReceiverID: 4242, Content: "hola"}})
	wantError(t, w, http.StatusNotFound, ErrCodeNotFound)

	w = s.do(t, call{method: http.MethodPost, path: "/messages", body: SendMessageRequest{ReceiverID: b, Content: "hola"}})
	wantError(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestConversation_UnreadAndETag(t *testing.T) {
	s := newStack(t, nil)
	a := s.user(t, "quique")
	b := s.user(t, "rosa")

	for _, txt := range []string{"¿Sigue disponible?", "¿Talla M?"} {
		w := s.do(t, call{method: http.MethodPost, path: "/messages", uid: a, body: SendMessageRequest{ReceiverID: b, Content: txt}})
		wantStatus(t, w, http.StatusCreated)
	}

	w := s.do(t, call{method: http.MethodGet, path: "/messages", uid: b})
	wantStatus(t, w, http.StatusOK)
	convs := decode[[]services.Conversation](t, w)
	if len(convs) != 1 || convs[0].With.ID != a || convs[0].Unread != 2 {
		t.Fatalf("unexpected conversations: %+v", convs)
	}

	path := "/messages/" + itoa(a)
	w = s.do(t, call{method: http.MethodGet, path: path, uid: b})
	wantStatus(t, w, http.StatusOK)
	conv := decode[ConversationResponse](t, w)
	if conv.With != a || len(conv.Messages) != 2 || conv.Messages[0].Content != "¿Sigue disponible?" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	w = s.do(t, call{method: http.MethodGet, path: path, uid: b, headers: map[string]string{"If-None-Match": etag}})
	wantStatus(t, w, http.StatusNotModified)

	// reading cleared the unread counter
	w = s.do(t, call{method: http.MethodGet, path: "/messages", uid: b})
	wantStatus(t, w, http.StatusOK)
	if convs := decode[[]services.Conversation](t, w); convs[0].Unread != 0 {
		t.Fatalf("unread=%d after reading", convs[0].Unread)
	}

	w = s.do(t, call{method: http.MethodPost, path: "/messages", uid: b, body: SendMessageRequest{ReceiverID: a, Content: "Sí, talla M"}})
	wantStatus(t, w, http.StatusCreated)
	w = s.do(t, call{method: http.MethodGet, path: path, uid: b, headers: map[string]string{"If-None-Match": etag}})
	wantStatus(t, w, http.StatusOK)

	w = s.do(t, call{method: http.MethodGet, path: "/messages/nope", uid: b})
	wantError(t, w, http.StatusBadRequest, ErrCodeBadRequest)
}
