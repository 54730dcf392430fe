package services

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/loader"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/realtime"
	"lms-dashboard-go/internal/remote"
)

const defaultPageSize = 20

// MessagePage is one page of a conversation in ascending created_at order.
// Total counts the whole conversation.
type MessagePage struct {
	Messages []models.Message `json:"messages"`
	Total    int              `json:"total"`
}

type SendInput struct {
	ReceiverID string  `json:"receiver_id" validate:"required,max=64"`
	Content    string  `json:"content" validate:"max=10000"`
	FileURL    *string `json:"file_url" validate:"omitempty,max=2048"`
	FileName   *string `json:"file_name" validate:"omitempty,max=255"`
	FileType   *string `json:"file_type" validate:"omitempty,max=255"`
	RepliedTo  *string `json:"replied_to" validate:"omitempty,max=64"`
}

type Conversation struct {
	UserID        string         `json:"user_id"`
	FullName      string         `json:"full_name"`
	LatestMessage models.Message `json:"latest_message"`
	UnreadCount   int            `json:"unread_count"`
}

type MessageService struct {
	d        Deps
	pageSize int
	log      *logger.Logger
}

func NewMessageService(d Deps, pageSize int) *MessageService {
	d = d.withDefaults()
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &MessageService{d: d, pageSize: pageSize, log: d.Log.With("service", "MessageService")}
}

func (s *MessageService) PageSize() int {
	return s.pageSize
}

func between(a, b string) remote.Filter {
	return remote.Or(
		[]remote.Filter{remote.Eq("sender_id", a), remote.Eq("receiver_id", b)},
		[]remote.Filter{remote.Eq("sender_id", b), remote.Eq("receiver_id", a)},
	)
}

// History returns the page of the conversation with otherID that skips the
// newest offset messages.
func (s *MessageService) History(ctx context.Context, v Viewer, otherID string, offset, limit int) (MessagePage, error) {
	if otherID == "" {
		return MessagePage{}, ErrBadRequest("user id is required")
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = s.pageSize
	}
	key := cache.Key(pairKey(v.ID, otherID), strconv.Itoa(offset), strconv.Itoa(limit))
	return cache.Get(ctx, s.d.Cache, key, func(ctx context.Context) (MessagePage, error) {
		var page MessagePage
		err := loader.All(ctx,
			func(ctx context.Context) error {
				var rows []models.Message
				err := s.d.Store.Select(ctx, remote.Query{
					Table:   models.TableMessages,
					Filters: []remote.Filter{between(v.ID, otherID)},
					Order:   []remote.Order{remote.Desc("created_at"), remote.Desc("id")},
					Offset:  offset,
					Limit:   limit,
				}, &rows)
				if err != nil {
					return err
				}
				for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
					rows[i], rows[j] = rows[j], rows[i]
				}
				page.Messages = rows
				return nil
			},
			func(ctx context.Context) error {
				n, err := s.d.Store.Count(ctx, models.TableMessages, between(v.ID, otherID))
				page.Total = n
				return err
			},
		)
		if err != nil {
			s.log.Error("load conversation failed", "other_id", otherID, "error", err)
			return MessagePage{}, err
		}
		if page.Messages == nil {
			page.Messages = []models.Message{}
		}
		return page, nil
	})
}

// Send stores a message from the viewer and notifies the receiver.
func (s *MessageService) Send(ctx context.Context, v Viewer, in SendInput) (models.Message, error) {
	in.Content = strings.TrimSpace(in.Content)
	if err := Validate(in); err != nil {
		return models.Message{}, err
	}
	if in.Content == "" && (in.FileURL == nil || *in.FileURL == "") {
		return models.Message{}, ErrBadRequest("content or file is required")
	}
	if in.ReceiverID == v.ID {
		return models.Message{}, ErrBadRequest("Cannot message yourself")
	}
	if _, err := s.d.profile(ctx, in.ReceiverID); err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	err := s.d.Store.Insert(ctx, models.TableMessages, remote.Values{
		"id":          uuid.NewString(),
		"sender_id":   v.ID,
		"receiver_id": in.ReceiverID,
		"content":     in.Content,
		"file_url":    in.FileURL,
		"file_name":   in.FileName,
		"file_type":   in.FileType,
		"replied_to":  in.RepliedTo,
		"is_read":     false,
		"created_at":  s.d.now(),
	}, &msg)
	if err != nil {
		s.log.Error("send message failed", "receiver_id", in.ReceiverID, "error", err)
		return models.Message{}, err
	}
	s.d.Cache.Invalidate(messageWriteKeys(v.ID, in.ReceiverID)...)
	s.d.publish(ctx, realtime.Event{Type: realtime.EventMessage, UserID: in.ReceiverID, Data: msg})
	return msg, nil
}

// MarkRead flips every unread message from fromID to the viewer and returns how
// many rows changed.
func (s *MessageService) MarkRead(ctx context.Context, v Viewer, fromID string) (int, error) {
	var flipped []models.Message
	err := s.d.Store.Update(ctx, models.TableMessages, []remote.Filter{
		remote.Eq("sender_id", fromID),
		remote.Eq("receiver_id", v.ID),
		remote.Eq("is_read", false),
	}, remote.Values{"is_read": true}, &flipped)
	if err != nil {
		s.log.Error("mark messages read failed", "from_id", fromID, "error", err)
		return 0, err
	}
	if len(flipped) > 0 {
		s.d.Cache.Invalidate(messageWriteKeys(v.ID, fromID)...)
	}
	return len(flipped), nil
}

// Conversations lists the viewer's counterparts with the latest message of each,
// most recent first.
func (s *MessageService) Conversations(ctx context.Context, v Viewer) ([]Conversation, error) {
	return cache.Get(ctx, s.d.Cache, cache.Key(keyConversations, v.ID), func(ctx context.Context) ([]Conversation, error) {
		var rows []models.Message
		err := s.d.Store.Select(ctx, remote.Query{
			Table: models.TableMessages,
			Filters: []remote.Filter{remote.Or(
				[]remote.Filter{remote.Eq("sender_id", v.ID)},
				[]remote.Filter{remote.Eq("receiver_id", v.ID)},
			)},
			Order: []remote.Order{remote.Desc("created_at")},
		}, &rows)
		if err != nil {
			s.log.Error("list conversations failed", "error", err)
			return nil, err
		}
		byUser := map[string]*Conversation{}
		var order []string
		for _, m := range rows {
			other := m.Counterpart(v.ID)
			c, ok := byUser[other]
			if !ok {
				c = &Conversation{UserID: other, LatestMessage: m}
				byUser[other] = c
				order = append(order, other)
			}
			if m.ReceiverID == v.ID && !m.IsRead {
				c.UnreadCount++
			}
		}
		names := s.d.profileNames(ctx, order)
		out := make([]Conversation, 0, len(order))
		for _, id := range order {
			c := byUser[id]
			c.FullName = nameOr(names, id, UnknownName)
			out = append(out, *c)
		}
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LatestMessage.CreatedAt.After(out[j].LatestMessage.CreatedAt)
		})
		return out, nil
	})
}

func (s *MessageService) UnreadTotal(ctx context.Context, v Viewer) (int, error) {
	key := cache.Key(keyConversations, v.ID, "unread")
	return cache.Get(ctx, s.d.Cache, key, func(ctx context.Context) (int, error) {
		return s.d.Store.Count(ctx, models.TableMessages, remote.Eq("receiver_id", v.ID), remote.Eq("is_read", false))
	})
}

// Message returns one message the viewer sent or received.
func (s *MessageService) Message(ctx context.Context, v Viewer, id string) (models.Message, error) {
	var rows []models.Message
	err := s.d.Store.Select(ctx, remote.Query{
		Table:   models.TableMessages,
		Filters: []remote.Filter{remote.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil {
		return models.Message{}, err
	}
	if len(rows) == 0 || (rows[0].SenderID != v.ID && rows[0].ReceiverID != v.ID) {
		return models.Message{}, ErrNotFound("Message not found")
	}
	return rows[0], nil
}
