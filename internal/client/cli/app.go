package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/agrolink/agrolink/internal/client/apiclient"
	"github.com/agrolink/agrolink/internal/client/client"
	"github.com/agrolink/agrolink/internal/client/config"
	"github.com/agrolink/agrolink/internal/client/models"
	"github.com/agrolink/agrolink/internal/client/offline"
	"github.com/agrolink/agrolink/internal/client/repositories/keys"
	"github.com/agrolink/agrolink/internal/client/repositories/queue"
	"github.com/agrolink/agrolink/internal/client/services"
	"github.com/agrolink/agrolink/internal/logging"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

// messenger is the part of services.MessagingService the REPL drives.
type messenger interface {
	SetSession(sess *services.Session)
	EnsureConversationWith(ctx context.Context, userID, otherUserID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	GetConversationsParticipants(ctx context.Context, conversationIDs []string, currentUserID string) (map[string][]string, error)
	GetUnreadCountByConversation(ctx context.Context, userID string) (map[string]int64, error)
	LoadMessages(ctx context.Context, userID, conversationID string) ([]*models.Message, error)
	SendOrQueue(ctx context.Context, conversationID, senderID, text, mimeType string) (*models.Message, *models.QueuedItem, error)
	MarkRead(ctx context.Context, messageIDs []string) ([]*models.Receipt, error)
	HideMessage(ctx context.Context, messageID string) error
	SendTyping(ctx context.Context, conversationID string) error
	ArchiveConversation(ctx context.Context, conversationID string) error
	AddParticipant(ctx context.Context, conversationID, userID string) (*models.QueuedItem, error)
	UploadAttachment(ctx context.Context, conversationID, path string) (*models.Attachment, error)
	SendAttachment(ctx context.Context, conversationID, senderID string, att *models.Attachment) (*models.Message, error)
	OpenAttachment(ctx context.Context, conversationID string, att *models.Attachment) ([]byte, error)
	SubscribeMessages(ctx context.Context, conversationID string, cb func(*models.Message)) (services.Unsubscribe, error)
	SubscribeTyping(ctx context.Context, conversationID string, cb func(models.TypingEvent)) (services.Unsubscribe, error)
	SubscribeReceipts(ctx context.Context, conversationID string, cb func(*models.Receipt)) (services.Unsubscribe, error)
	FlushQueue(ctx context.Context) error
}

type offlineQueue interface {
	Stats() offline.Stats
	PurgeAbandoned(ctx context.Context) int
	StartRetry(ctx context.Context, fn offline.RetryFunc)
	StopRetry()
}

// reporter forwards failures and counters to the backend REST API.
type reporter interface {
	ReportError(ctx context.Context, err error, details map[string]any) error
	ReportMetric(ctx context.Context, name string, value float64, tags map[string]string) error
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	authService services.AuthService
	messaging   messenger
	queue       offlineQueue
	reporter    reporter
	reader      *bufio.Reader
	out         io.Writer
	closers     []func() error

	outMu sync.Mutex

	mu      sync.Mutex
	mode    Mode
	session *services.Session
	chat    *openChat
	// listed holds conversation ids in the order of the last 'list'.
	listed []string
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLoggerTo(os.Stderr, c.LogLevel)

	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, c.RequestTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	q := offline.New(queue.NewSQLiteRepository(db), logger, c.RetryInterval)
	if err := q.Load(ctx); err != nil {
		logger.Warn(ctx, "failed to load offline queue", "error", err)
	}

	ms := services.NewMessagingService(apiClient, keys.NewSQLiteRepository(db), q, logger, services.MessagingConfig{
		AttachmentDir: c.AttachmentDir,
		HTTPClient:    &http.Client{Timeout: 2 * c.RequestTimeout},
	})

	app := &App{
		config:      c,
		logger:      logger,
		authService: services.NewAuthService(apiClient, db),
		messaging:   ms,
		queue:       q,
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		closers:     []func() error{db.Close},
	}

	if c.BackendURL != "" {
		api, err := apiclient.New(apiclient.Config{
			BaseURL:  c.BackendURL,
			ProxyURL: c.ProxyURL,
			Timeout:  c.RequestTimeout,
		}, logger)
		if err != nil {
			logger.Warn(ctx, "REST reporting disabled", "error", err)
		} else {
			app.reporter = api
		}
	}
	return app, nil
}

// Run blocks in the REPL until the user exits or ctx is done.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		a.closeChat()
		a.queue.StopRetry()
		_ = a.authService.Close(context.Background())
		for _, c := range a.closers {
			_ = c()
		}
	}()

	a.printf("Welcome to AgroLink (type 'help' for commands)\n")
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	scanner := bufio.NewScanner(a.reader)
	runREPL(ctx, a, a.getStatus, scanner)
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := ""
	if a.session != nil {
		s = a.session.UserName + " "
	}
	if a.mode != "" {
		s += string(a.mode)
	}
	if a.chat != nil {
		s += " #" + shortID(a.chat.id)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()
	if changed {
		a.logger.Info(context.Background(), "connectivity changed", "mode", mode)
		a.printf("Switched to %s mode\n", mode)
	}
}

func (a *App) currentMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil
}

func (a *App) currentSession() *services.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// StartOnlineStatusWatcher pings the backend every interval and flips the
// mode. Coming back online flushes the offline queue.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.authService.Ping(pctx)
			cancel()

			switch {
			case err != nil && a.currentMode() == ModeOnline:
				a.setMode(ModeOffline)
			case err == nil && a.currentMode() != ModeOnline:
				a.setMode(ModeOnline)
				if sess := a.currentSession(); sess != nil {
					if sess.Online {
						go a.flush(ctx)
					} else {
						a.printf("Server reachable again: 'login' to send queued messages\n")
					}
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

func (a *App) flush(ctx context.Context) {
	if err := a.messaging.FlushQueue(ctx); err != nil {
		a.logger.Warn(ctx, "queue flush incomplete", "error", err)
	}
}

// fail prints err and reports it to the backend in the background.
// Connectivity errors are expected offline and are not reported.
func (a *App) fail(ctx context.Context, op string, err error) error {
	a.printf("Error: %v\n", err)
	a.logger.Debug(ctx, "command failed", "op", op, "error", err)
	if a.reporter != nil && !errors.Is(err, client.ErrUnavailable) {
		go func() {
			rctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if rerr := a.reporter.ReportError(rctx, err, map[string]any{"op": op}); rerr != nil {
				a.logger.Debug(rctx, "error report not delivered", "error", rerr)
			}
		}()
	}
	return err
}

func (a *App) metric(name string, value float64, tags map[string]string) {
	if a.reporter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.reporter.ReportMetric(ctx, name, value, tags); err != nil {
			a.logger.Debug(ctx, "metric not delivered", "name", name, "error", err)
		}
	}()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
