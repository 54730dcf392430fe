// Package chat keeps the state of one open conversation: a chronologically
// ordered message list that grows backwards page by page, optimistic sends, and
// read marking derived from the loaded messages.
package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/services"
)

var (
	ErrNotOpen      = errors.New("chat: no conversation open")
	ErrClosed       = errors.New("chat: conversation closed")
	ErrEmptyMessage = errors.New("chat: message is empty")
)

// Backend is the message store the window reads and writes through.
// *services.MessageService satisfies it.
type Backend interface {
	History(ctx context.Context, v services.Viewer, otherID string, offset, limit int) (services.MessagePage, error)
	Send(ctx context.Context, v services.Viewer, in services.SendInput) (models.Message, error)
	MarkRead(ctx context.Context, v services.Viewer, fromID string) (int, error)
}

type Op string

const OpSend Op = "send"

type PendingStatus string

const PendingSending PendingStatus = "sending"

// Pending marks an entry that exists only locally until its write completes.
type Pending struct {
	LocalID string        `json:"local_id"`
	Op      Op            `json:"op"`
	Status  PendingStatus `json:"status"`
}

type Entry struct {
	models.Message
	Pending *Pending `json:"pending,omitempty"`
}

type Window struct {
	backend  Backend
	me       services.Viewer
	pageSize int
	now      func() time.Time
	log      *logger.Logger

	mu      sync.Mutex
	partner string
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	entries []Entry
	ids     map[string]bool
	total   int
	draft   string
	marking bool
}

func NewWindow(backend Backend, me services.Viewer, pageSize int, log *logger.Logger) *Window {
	if pageSize <= 0 {
		pageSize = 20
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Window{
		backend:  backend,
		me:       me,
		pageSize: pageSize,
		now:      time.Now,
		log:      log.With("component", "ChatWindow", "user_id", me.ID),
		ids:      map[string]bool{},
	}
}

// Open shows the conversation with partner. Switching partners drops the loaded
// messages and cancels calls made for the previous one; reopening the current
// partner refreshes the newest page, reloading from scratch when the page no
// longer connects to what is loaded. Unread messages from partner are then
// marked read.
func (w *Window) Open(ctx context.Context, partner string) error {
	if partner == "" || partner == w.me.ID {
		return services.ErrBadRequest("invalid conversation partner")
	}
	w.mu.Lock()
	if partner != w.partner || w.ctx == nil {
		w.resetLocked()
		w.partner = partner
		w.ctx, w.cancel = context.WithCancel(ctx)
	}
	gen, octx := w.gen, w.ctx
	w.mu.Unlock()

	page, err := w.backend.History(octx, w.me, partner, 0, w.pageSize)
	if err != nil {
		w.log.Warn("load conversation failed", "partner", partner, "error", err)
		return err
	}
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return ErrClosed
	}
	// A refreshed page that shares nothing with the loaded messages leaves a
	// gap between them, so start over from this page.
	if len(w.ids) > 0 && !w.overlapsLocked(page) {
		w.dropConfirmedLocked()
	}
	w.mergeLocked(page)
	w.mu.Unlock()
	return w.markRead()
}

func (w *Window) overlapsLocked(page services.MessagePage) bool {
	for _, m := range page.Messages {
		if w.ids[m.ID] {
			return true
		}
	}
	return false
}

// dropConfirmedLocked forgets loaded messages but keeps pending sends.
func (w *Window) dropConfirmedLocked() {
	kept := w.entries[:0]
	for _, e := range w.entries {
		if e.Pending != nil {
			kept = append(kept, e)
		}
	}
	w.entries = kept
	w.ids = map[string]bool{}
	w.total = 0
}

// Close cancels in-flight calls and forgets the conversation.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
	w.partner = ""
}

func (w *Window) resetLocked() {
	if w.cancel != nil {
		w.cancel()
	}
	w.gen++
	w.ctx, w.cancel = nil, nil
	w.entries = nil
	w.ids = map[string]bool{}
	w.total = 0
	w.draft = ""
	w.marking = false
}

// LoadOlder prepends the page preceding the loaded messages and returns how
// many new messages it added.
func (w *Window) LoadOlder() (int, error) {
	w.mu.Lock()
	if w.ctx == nil {
		w.mu.Unlock()
		return 0, ErrNotOpen
	}
	gen, octx, partner, offset := w.gen, w.ctx, w.partner, len(w.ids)
	w.mu.Unlock()

	page, err := w.backend.History(octx, w.me, partner, offset, w.pageSize)
	if err != nil {
		w.log.Warn("load older messages failed", "partner", partner, "offset", offset, "error", err)
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		return 0, ErrClosed
	}
	return w.mergeLocked(page), nil
}

// mergeLocked adds messages not yet present and keeps entries ordered by
// created_at.
func (w *Window) mergeLocked(page services.MessagePage) int {
	added := 0
	for _, m := range page.Messages {
		if w.ids[m.ID] {
			w.replaceLocked(m)
			continue
		}
		w.ids[m.ID] = true
		w.entries = append(w.entries, Entry{Message: m})
		added++
	}
	w.total = max(page.Total, len(w.ids))
	w.sortLocked()
	return added
}

func (w *Window) replaceLocked(m models.Message) {
	for i := range w.entries {
		if w.entries[i].Pending == nil && w.entries[i].ID == m.ID {
			w.entries[i].Message = m
			return
		}
	}
}

// sortLocked orders confirmed messages by created_at; pending sends stay last.
func (w *Window) sortLocked() {
	sort.SliceStable(w.entries, func(i, j int) bool {
		a, b := w.entries[i], w.entries[j]
		if (a.Pending == nil) != (b.Pending == nil) {
			return a.Pending == nil
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// HasMore reports whether older messages remain on the server.
func (w *Window) HasMore() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx != nil && len(w.ids) < w.total
}

// Send shows content immediately and writes it. On failure the optimistic entry
// is removed and content becomes the draft again.
func (w *Window) Send(content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}
	w.mu.Lock()
	if w.ctx == nil {
		w.mu.Unlock()
		return models.Message{}, ErrNotOpen
	}
	pending := &Pending{LocalID: "local-" + uuid.NewString(), Op: OpSend, Status: PendingSending}
	w.entries = append(w.entries, Entry{
		Message: models.Message{
			ID:         pending.LocalID,
			SenderID:   w.me.ID,
			ReceiverID: w.partner,
			Content:    content,
			CreatedAt:  w.now().UTC(),
		},
		Pending: pending,
	})
	w.draft = ""
	gen, octx, partner := w.gen, w.ctx, w.partner
	w.mu.Unlock()

	msg, err := w.backend.Send(octx, w.me, services.SendInput{ReceiverID: partner, Content: content})

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		if err != nil {
			return models.Message{}, err
		}
		return msg, ErrClosed
	}
	i := w.pendingIndexLocked(pending.LocalID)
	if err != nil {
		if i >= 0 {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
		}
		w.draft = content
		w.log.Warn("send failed, rolled back", "partner", partner, "error", err)
		return models.Message{}, err
	}
	switch {
	case w.ids[msg.ID] && i >= 0:
		w.entries = append(w.entries[:i], w.entries[i+1:]...)
	case i >= 0:
		w.entries[i] = Entry{Message: msg}
		w.ids[msg.ID] = true
		w.total++
	}
	w.sortLocked()
	return msg, nil
}

func (w *Window) pendingIndexLocked(localID string) int {
	for i, e := range w.entries {
		if e.Pending != nil && e.Pending.LocalID == localID {
			return i
		}
	}
	return -1
}

// Receive merges a realtime message. Messages of other conversations are
// ignored. A new unread message from the partner is marked read.
func (w *Window) Receive(m models.Message) error {
	w.mu.Lock()
	if w.ctx == nil || m.Counterpart(w.me.ID) != w.partner || (m.SenderID != w.me.ID && m.ReceiverID != w.me.ID) {
		w.mu.Unlock()
		return nil
	}
	if w.ids[m.ID] {
		w.replaceLocked(m)
		w.mu.Unlock()
		return nil
	}
	w.ids[m.ID] = true
	w.entries = append(w.entries, Entry{Message: m})
	w.total++
	w.sortLocked()
	w.mu.Unlock()
	return w.markRead()
}

// markRead writes once per batch of unread partner messages. Calls while a mark
// is in flight or with nothing unread are no-ops.
func (w *Window) markRead() error {
	w.mu.Lock()
	if w.ctx == nil || w.marking {
		w.mu.Unlock()
		return nil
	}
	unread := w.unreadLocked()
	if len(unread) == 0 {
		w.mu.Unlock()
		return nil
	}
	w.marking = true
	gen, octx, partner := w.gen, w.ctx, w.partner
	w.mu.Unlock()

	_, err := w.backend.MarkRead(octx, w.me, partner)

	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return ErrClosed
	}
	w.marking = false
	if err != nil {
		w.mu.Unlock()
		w.log.Warn("mark read failed", "partner", partner, "error", err)
		return err
	}
	for i := range w.entries {
		if unread[w.entries[i].ID] {
			w.entries[i].IsRead = true
		}
	}
	again := len(w.unreadLocked()) > 0
	w.mu.Unlock()
	if again {
		return w.markRead()
	}
	return nil
}

func (w *Window) unreadLocked() map[string]bool {
	out := map[string]bool{}
	for _, e := range w.entries {
		if e.Pending == nil && e.SenderID == w.partner && e.ReceiverID == w.me.ID && !e.IsRead {
			out[e.ID] = true
		}
	}
	return out
}

// Messages returns a copy of the entries in display order.
func (w *Window) Messages() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Entry, len(w.entries))
	copy(out, w.entries)
	return out
}

func (w *Window) Draft() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

func (w *Window) SetDraft(s string) {
	w.mu.Lock()
	w.draft = s
	w.mu.Unlock()
}

func (w *Window) Partner() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.partner
}
