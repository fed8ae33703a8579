package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"graphsync/internal/core"
	"graphsync/internal/counter"
	"graphsync/internal/relation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graphsync_messages_sent_total",
		Help: "The total number of messages written to the store",
	}, []string{"msg_type"})
)

const (
	MsgTypeText  = "text"
	MsgTypeImage = "image"
)

// Service orchestrates the message-send flow: thread creation, the
// immutable message write, the symmetric chat-list summary update, and the
// recipient's unread counter. It never waits for its own writes to come
// back through a subscription; interested surfaces observe the store
// independently.
type Service struct {
	Logger   *slog.Logger
	Store    core.DocumentStore
	Relation *relation.Writer
	Counter  *counter.Maintainer
}

func (s *Service) Init(context.Context) error {
	s.Logger = s.Logger.With("component", "chat.Service")
	return nil
}

// SendMessage writes m from->to and maintains both chat-list copies. The
// returned id is the store-assigned push id of the new message.
func (s *Service) SendMessage(ctx context.Context, from, to, text, msgType string) (string, error) {
	if msgType == "" {
		msgType = MsgTypeText
	}

	roomID, err := s.Relation.EnsureThread(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	now := time.Now().UTC()
	doc, err := core.Encode(core.Message{
		From:     from,
		To:       to,
		Message:  text,
		SendTime: now,
		MsgType:  msgType,
	})
	if err != nil {
		return "", err
	}

	pushID := core.NewPushID()
	if err := s.Store.Write(ctx, core.MessagePath(roomID, pushID), doc); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	messagesSent.WithLabelValues(msgType).Inc()

	// Summary and counter updates are best-effort follow-ups: the message
	// itself is already durable, a partial failure here leaves the two
	// chat-list copies divergent until the next send realigns them.
	if err := s.Relation.TouchThread(ctx, from, to, text, now); err != nil {
		return pushID, err
	}

	active, err := s.recipientActive(ctx, to, from)
	if err != nil {
		return pushID, err
	}
	if !active {
		if _, err := s.Counter.IncrementUnread(ctx, to, from); err != nil {
			return pushID, err
		}
	}

	return pushID, nil
}

// Activate marks the owner as currently viewing the thread with other and
// clears their unread counter - the screen-focus flow.
func (s *Service) Activate(ctx context.Context, owner, other string) error {
	if _, err := s.Relation.EnsureThread(ctx, owner, other); err != nil {
		return err
	}
	if err := s.Relation.SetActive(ctx, owner, other, true); err != nil {
		return err
	}
	return s.Counter.ClearUnread(ctx, owner, other)
}

// Deactivate marks the owner as no longer viewing the thread - the
// screen-blur flow.
func (s *Service) Deactivate(ctx context.Context, owner, other string) error {
	return s.Relation.SetActive(ctx, owner, other, false)
}

func (s *Service) recipientActive(ctx context.Context, owner, other string) (bool, error) {
	raw, err := s.Store.Read(ctx, core.ChatListPath(owner, other))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	entry, err := core.Decode[core.ChatListEntry](raw)
	if err != nil {
		return false, err
	}
	return entry.UserActive, nil
}
