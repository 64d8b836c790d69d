package services

import (
	"context"
	"errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"mentor-marketplace/internal/db"
	"strings"
)

const maxMessageLength = 4000

type ConversationView struct {
	db.Conversation
	OtherUser   *db.User    `json:"otherUser"`
	LastMessage *db.Message `json:"lastMessage,omitempty"`
}

type SendMessageInput struct {
	ReceiverID string `json:"receiverId" binding:"required"`
	Text       string `json:"text" binding:"required"`
}

type ChatService struct {
	*Deps
}

func NewChatService(d *Deps) *ChatService {
	return &ChatService{Deps: d}
}

// pair orders two user ids so each conversation has a single row.
func pair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func (s *ChatService) CreateOrGet(ctx context.Context, actor Actor, otherID string) (*db.Conversation, error) {
	if otherID == "" || otherID == actor.ID {
		return nil, Validation("a conversation needs another participant")
	}
	return s.createOrGet(s.DB.WithContext(ctx), actor.ID, otherID)
}

func (s *ChatService) createOrGet(conn *gorm.DB, userID, otherID string) (*db.Conversation, error) {
	var other db.User
	if err := conn.First(&other, "id = ?", otherID).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	a, b := pair(userID, otherID)
	conv := db.Conversation{UserAID: a, UserBID: b}
	if err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_a_id"}, {Name: "user_b_id"}},
		DoNothing: true,
	}).Create(&conv).Error; err != nil {
		return nil, err
	}
	var stored db.Conversation
	if err := conn.First(&stored, "user_a_id = ? AND user_b_id = ?", a, b).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *ChatService) ListConversations(ctx context.Context, actor Actor) ([]ConversationView, error) {
	conn := s.DB.WithContext(ctx)
	var convs []db.Conversation
	if err := conn.Where("user_a_id = ? OR user_b_id = ?", actor.ID, actor.ID).
		Order("updated_at desc").Find(&convs).Error; err != nil {
		return nil, err
	}
	out := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		view := ConversationView{Conversation: c}
		otherID := c.UserAID
		if otherID == actor.ID {
			otherID = c.UserBID
		}
		var other db.User
		if err := conn.First(&other, "id = ?", otherID).Error; err == nil {
			view.OtherUser = &other
		}
		var last db.Message
		err := conn.Where("conversation_id = ?", c.ID).Order("created_at desc").First(&last).Error
		switch {
		case err == nil:
			view.LastMessage = &last
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *ChatService) ListMessages(ctx context.Context, actor Actor, conversationID string, q PageQuery) (*Page[db.Message], error) {
	conn := s.DB.WithContext(ctx)
	var conv db.Conversation
	if err := conn.First(&conv, "id = ?", conversationID).Error; err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	if conv.UserAID != actor.ID && conv.UserBID != actor.ID {
		return nil, Forbidden("you are not part of this conversation")
	}
	q = q.normalized()
	if q.SortBy == "" {
		q.SortOrder = "asc"
	}
	query := conn.Model(&db.Message{}).Where("conversation_id = ?", conv.ID)
	return paginate[db.Message](query, q, q.order(map[string]string{"createdAt": "created_at"}, "created_at"))
}

// Send stores the message and hands it to the relay through the broker.
func (s *ChatService) Send(ctx context.Context, actor Actor, in SendMessageInput) (*db.Message, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, Validation("message text is required")
	}
	if len(text) > maxMessageLength {
		return nil, Validation("message is too long")
	}
	if in.ReceiverID == actor.ID {
		return nil, Validation("cannot message yourself")
	}
	var msg db.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conv, err := s.createOrGet(tx, actor.ID, in.ReceiverID)
		if err != nil {
			return err
		}
		msg = db.Message{ConversationID: conv.ID, SenderID: actor.ID, ReceiverID: in.ReceiverID, Text: text}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&db.Conversation{}).Where("id = ?", conv.ID).Update("updated_at", s.now()).Error
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, EventChatMessage, msg)
	return &msg, nil
}
