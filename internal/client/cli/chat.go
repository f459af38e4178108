package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/agrolink/agrolink/internal/client/client"
	"github.com/agrolink/agrolink/internal/client/models"
	"github.com/agrolink/agrolink/internal/client/services"
	"github.com/agrolink/agrolink/internal/filex"
)

var errNotLoggedIn = errors.New("not logged in")
var errNoOpenChat = errors.New("no conversation open, use 'open <n>' or 'chat <user>'")

// openChat is the conversation currently shown in the REPL. Subscription
// callbacks append to messages while commands index into it.
type openChat struct {
	id     string
	typing *services.TypingIndicator
	unsubs []services.Unsubscribe

	mu       sync.Mutex
	messages []*models.Message
}

// add stores m and returns its 1-based number. A message already shown
// keeps its number and is replaced.
func (c *openChat) add(m *models.Message) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.messages {
		if existing.ID == m.ID {
			c.messages[i] = m
			return i + 1, false
		}
	}
	c.messages = append(c.messages, m)
	return len(c.messages), true
}

func (c *openChat) at(n int) (*models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 || n > len(c.messages) {
		return nil, false
	}
	return c.messages[n-1], true
}

func (a *App) requireSession() (*services.Session, error) {
	sess := a.currentSession()
	if sess == nil {
		a.printf("Please 'login' first\n")
		return nil, errNotLoggedIn
	}
	return sess, nil
}

func (a *App) currentChat() (*openChat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.chat == nil {
		return nil, errNoOpenChat
	}
	return a.chat, nil
}

// List prints the user's conversations with the other participants and
// unread counts. Rows are numbered for 'open <n>'.
func (a *App) List(ctx context.Context) error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	convs, err := a.messaging.ListConversations(ctx, sess.UserID)
	if err != nil {
		return a.fail(ctx, "list", err)
	}
	if len(convs) == 0 {
		a.printf("No conversations yet, start one with 'chat <user id>'\n")
		a.setListed(nil)
		return nil
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	others, err := a.messaging.GetConversationsParticipants(ctx, ids, sess.UserID)
	if err != nil {
		return a.fail(ctx, "list", err)
	}
	unread, err := a.messaging.GetUnreadCountByConversation(ctx, sess.UserID)
	if err != nil {
		return a.fail(ctx, "list", err)
	}

	for i, c := range convs {
		line := fmt.Sprintf("%3d. %s  with %s", i+1, shortID(c.ID), strings.Join(others[c.ID], ", "))
		if n := unread[c.ID]; n > 0 {
			line += fmt.Sprintf("  [%d unread]", n)
		}
		if c.LastMessageAt != nil {
			line += "  last " + c.LastMessageAt.Local().Format("2006-01-02 15:04")
		}
		a.printf("%s\n", line)
	}
	a.setListed(ids)
	return nil
}

func (a *App) setListed(ids []string) {
	a.mu.Lock()
	a.listed = ids
	a.mu.Unlock()
}

// resolveConversation accepts a row number from the last 'list' or a
// conversation id (or a unique prefix of one listed).
func (a *App) resolveConversation(ref string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(a.listed) {
		return a.listed[n-1]
	}
	match := ""
	for _, id := range a.listed {
		if strings.HasPrefix(id, ref) {
			if match != "" {
				return ref
			}
			match = id
		}
	}
	if match != "" {
		return match
	}
	return ref
}

// Chat opens the direct conversation with another user, creating it on first
// contact.
func (a *App) Chat(ctx context.Context, args []string) error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		a.printf("Usage: chat <user id>\n")
		return nil
	}
	conv, err := a.messaging.EnsureConversationWith(ctx, sess.UserID, args[0])
	if err != nil {
		return a.fail(ctx, "chat", err)
	}
	return a.open(ctx, sess, conv.ID)
}

// Open shows a conversation and follows it live until another one is opened
// or 'close' is typed.
func (a *App) Open(ctx context.Context, args []string) error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		a.printf("Usage: open <n | conversation id>\n")
		return nil
	}
	return a.open(ctx, sess, a.resolveConversation(args[0]))
}

func (a *App) open(ctx context.Context, sess *services.Session, convID string) error {
	msgs, err := a.messaging.LoadMessages(ctx, sess.UserID, convID)
	if err != nil {
		return a.fail(ctx, "open", err)
	}

	a.closeChat()
	chat := &openChat{id: convID}
	chat.typing = services.NewTypingIndicator(services.DefaultTypingTimeout, func(users []string) {
		if len(users) > 0 {
			a.printf("  ... %s typing\n", strings.Join(users, ", "))
		}
	})

	a.printf("--- conversation %s ---\n", convID)
	var unread []string
	for _, m := range msgs {
		n, _ := chat.add(m)
		a.printf("%s\n", formatMessage(n, m, sess.UserID))
		if m.SenderID != sess.UserID {
			unread = append(unread, m.ID)
		}
	}
	a.markRead(ctx, unread)

	if sess.Online {
		a.follow(ctx, sess, chat)
	} else {
		a.printf("(offline: live updates resume after an online login)\n")
	}

	a.mu.Lock()
	a.chat = chat
	a.mu.Unlock()
	return nil
}

func (a *App) follow(ctx context.Context, sess *services.Session, chat *openChat) {
	unsub, err := a.messaging.SubscribeMessages(ctx, chat.id, func(m *models.Message) {
		n, isNew := chat.add(m)
		if !isNew {
			return
		}
		a.printf("%s\n", formatMessage(n, m, sess.UserID))
		if m.SenderID != sess.UserID {
			a.markRead(ctx, []string{m.ID})
		}
	})
	if err != nil {
		a.logger.Warn(ctx, "live messages unavailable", "conversation_id", chat.id, "error", err)
		return
	}
	chat.unsubs = append(chat.unsubs, unsub)

	if unsub, err := a.messaging.SubscribeTyping(ctx, chat.id, func(ev models.TypingEvent) {
		chat.typing.Observe(ev.UserID)
	}); err == nil {
		chat.unsubs = append(chat.unsubs, unsub)
	}

	if unsub, err := a.messaging.SubscribeReceipts(ctx, chat.id, func(r *models.Receipt) {
		if r.UserID == sess.UserID {
			return
		}
		state := "delivered to"
		if r.ReadAt != nil {
			state = "read by"
		}
		a.printf("  (%s %s %s)\n", shortID(r.MessageID), state, r.UserID)
	}); err == nil {
		chat.unsubs = append(chat.unsubs, unsub)
	}
}

func (a *App) markRead(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if _, err := a.messaging.MarkRead(ctx, ids); err != nil && !errors.Is(err, client.ErrUnavailable) {
		a.logger.Warn(ctx, "mark read failed", "count", len(ids), "error", err)
	}
}

// closeChat stops the live subscriptions of the open conversation.
func (a *App) closeChat() {
	a.mu.Lock()
	chat := a.chat
	a.chat = nil
	a.mu.Unlock()
	if chat == nil {
		return
	}
	for _, u := range chat.unsubs {
		u()
	}
	chat.typing.Stop()
}

// Leave closes the open conversation.
func (a *App) Leave(ctx context.Context) error {
	if _, err := a.currentChat(); err != nil {
		a.printf("%v\n", err)
		return nil
	}
	a.closeChat()
	return nil
}

// Send encrypts and sends text to the open conversation, or queues it while
// the server is unreachable. Without arguments the message is read as
// multiple lines.
func (a *App) Send(ctx context.Context, args []string) error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	chat, err := a.currentChat()
	if err != nil {
		a.printf("%v\n", err)
		return err
	}

	text := strings.Join(args, " ")
	if text == "" {
		if text, err = GetMultiline(a.reader, "Message", a.out); err != nil {
			return err
		}
	}
	if text == "" {
		return nil
	}

	msg, item, err := a.messaging.SendOrQueue(ctx, chat.id, sess.UserID, text, "")
	if err != nil {
		return a.fail(ctx, "send", err)
	}
	if item != nil {
		a.printf("(queued %s, will retry)\n", shortID(item.ID))
		return nil
	}
	if n, isNew := chat.add(msg); isNew {
		a.printf("%s\n", formatMessage(n, msg, sess.UserID))
	}
	return nil
}

// Typing tells the other participants the user is typing.
func (a *App) Typing(ctx context.Context) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	chat, err := a.currentChat()
	if err != nil {
		a.printf("%v\n", err)
		return err
	}
	if err := a.messaging.SendTyping(ctx, chat.id); err != nil {
		return a.fail(ctx, "typing", err)
	}
	return nil
}

// Hide removes message n of the open conversation from this user's view.
func (a *App) Hide(ctx context.Context, args []string) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	m, err := a.messageArg(args, "hide <n>")
	if err != nil || m == nil {
		return err
	}
	if err := a.messaging.HideMessage(ctx, m.ID); err != nil {
		return a.fail(ctx, "hide", err)
	}
	a.printf("Hidden\n")
	return nil
}

func (a *App) messageArg(args []string, usage string) (*models.Message, error) {
	chat, err := a.currentChat()
	if err != nil {
		a.printf("%v\n", err)
		return nil, err
	}
	if len(args) < 1 {
		a.printf("Usage: %s\n", usage)
		return nil, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		a.printf("Usage: %s\n", usage)
		return nil, nil
	}
	m, ok := chat.at(n)
	if !ok {
		a.printf("No message %d\n", n)
		return nil, nil
	}
	return m, nil
}

// Archive hides the open (or given) conversation from this user's list.
func (a *App) Archive(ctx context.Context, args []string) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	var convID string
	if len(args) > 0 {
		convID = a.resolveConversation(args[0])
	} else if chat, err := a.currentChat(); err == nil {
		convID = chat.id
	} else {
		a.printf("Usage: archive [n | conversation id]\n")
		return nil
	}
	if err := a.messaging.ArchiveConversation(ctx, convID); err != nil {
		return a.fail(ctx, "archive", err)
	}
	if chat, err := a.currentChat(); err == nil && chat.id == convID {
		a.closeChat()
	}
	a.printf("Archived %s\n", shortID(convID))
	return nil
}

// AddParticipant adds a user to the open conversation and shares its key
// with them.
func (a *App) AddParticipant(ctx context.Context, args []string) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	chat, err := a.currentChat()
	if err != nil {
		a.printf("%v\n", err)
		return err
	}
	if len(args) != 1 {
		a.printf("Usage: add <user id>\n")
		return nil
	}
	item, err := a.messaging.AddParticipant(ctx, chat.id, args[0])
	if err != nil {
		return a.fail(ctx, "add", err)
	}
	if item != nil {
		a.printf("(queued adding %s, will retry)\n", args[0])
		return nil
	}
	a.printf("Added %s\n", args[0])
	return nil
}

// Attach uploads an encrypted file and sends it to the open conversation.
func (a *App) Attach(ctx context.Context, args []string) error {
	sess, err := a.requireSession()
	if err != nil {
		return err
	}
	chat, err := a.currentChat()
	if err != nil {
		a.printf("%v\n", err)
		return err
	}
	if len(args) != 1 {
		a.printf("Usage: attach <path>\n")
		return nil
	}

	att, err := a.messaging.UploadAttachment(ctx, chat.id, args[0])
	if err != nil {
		return a.fail(ctx, "attach", err)
	}
	msg, err := a.messaging.SendAttachment(ctx, chat.id, sess.UserID, att)
	if err != nil {
		return a.fail(ctx, "attach", err)
	}
	if n, isNew := chat.add(msg); isNew {
		a.printf("%s\n", formatMessage(n, msg, sess.UserID))
	}
	a.metric("attachment_sent", float64(att.Size), map[string]string{"mime": att.MimeType})
	return nil
}

// Save decrypts the attachment of message n into a local file. The target
// defaults to the original file name in the current directory.
func (a *App) Save(ctx context.Context, args []string) error {
	if _, err := a.requireSession(); err != nil {
		return err
	}
	m, err := a.messageArg(args, "save <n> [path]")
	if err != nil || m == nil {
		return err
	}
	att, ok := services.AttachmentFromMessage(m)
	if !ok {
		a.printf("Message %s has no attachment\n", args[0])
		return nil
	}

	data, err := a.messaging.OpenAttachment(ctx, m.ConversationID, att)
	if err != nil {
		return a.fail(ctx, "save", err)
	}
	target := filepath.Base(att.FileName)
	if len(args) > 1 {
		target = args[1]
	}
	if err := filex.WriteFileAtomic(target, data); err != nil {
		return a.fail(ctx, "save", err)
	}
	a.printf("Saved %d bytes to %s\n", len(data), target)
	return nil
}

// Queue inspects or acts on the offline queue: 'queue', 'queue flush',
// 'queue purge'.
func (a *App) Queue(ctx context.Context, args []string) error {
	sub := "stats"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "stats":
		st := a.queue.Stats()
		a.printf("messages:     %d pending, %d abandoned\n", st.PendingMessages, st.AbandonedMessages)
		a.printf("participants: %d pending, %d abandoned\n", st.PendingParticipants, st.AbandonedParticipants)

	case "flush":
		sess, err := a.requireSession()
		if err != nil {
			return err
		}
		if !sess.Online {
			a.printf("Offline session: 'login' while the server is reachable to flush\n")
			return nil
		}
		before := a.queue.Stats()
		err = a.messaging.FlushQueue(ctx)
		after := a.queue.Stats()
		sent := (before.TotalMessages + before.TotalParticipants) - (after.TotalMessages + after.TotalParticipants)
		a.printf("Flushed %d item(s)\n", sent)
		a.metric("queue_flushed", float64(sent), nil)
		if err != nil {
			return a.fail(ctx, "queue flush", err)
		}

	case "purge":
		n := a.queue.PurgeAbandoned(ctx)
		a.printf("Purged %d abandoned item(s)\n", n)

	default:
		a.printf("Usage: queue [stats|flush|purge]\n")
	}
	return nil
}

func formatMessage(n int, m *models.Message, self string) string {
	who := m.SenderID
	if who == self {
		who = "me"
	}
	body := m.Text
	if att, ok := services.AttachmentFromMessage(m); ok {
		body = fmt.Sprintf("[attachment %s, %s, %d bytes] ('save %d' to download)", att.FileName, att.MimeType, att.Size, n)
	}
	line := fmt.Sprintf("%3d %s %s: %s", n, m.CreatedAt.Local().Format("15:04"), who, body)
	if m.SenderID == self && m.Status != "" {
		line += "  [" + string(m.Status) + "]"
	}
	return line
}
