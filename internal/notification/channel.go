package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/vdavid/vmail/desktop/internal/desktop"
	"github.com/vdavid/vmail/desktop/internal/locale"
	"github.com/vdavid/vmail/desktop/internal/mailbox"
	"github.com/vdavid/vmail/desktop/internal/models"
	"github.com/vdavid/vmail/desktop/internal/state"
)

const (
	dialTimeout  = 10 * time.Second
	alertTimeout = 5 * time.Second

	defaultDialAttempts   = 5
	defaultDialRetryDelay = 500 * time.Millisecond
)

// ErrNoServer is returned by Initialize before the backend address is known.
var ErrNoServer = errors.New("server address is not set")

// State is the lifecycle state of a Channel.
type State int

const (
	StateUninitialized State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// ContentFetcher fetches the full content of one email.
type ContentFetcher interface {
	GetEmailContent(ctx context.Context, account, folder, uid string) (*models.EmailContent, error)
}

// Deps are the collaborators shared by every channel.
type Deps struct {
	State      *state.State
	Fetcher    ContentFetcher
	Authorizer desktop.Authorizer
	Sender     desktop.Sender
	// Language returns the language for default alert text. Nil means the default language.
	Language func() models.Language
	Dialer   *websocket.Dialer
	// DialAttempts and DialRetryDelay bound the fixed-delay retry of a failed open.
	DialAttempts   int
	DialRetryDelay time.Duration
	Logger         *logrus.Logger
}

// Payload maps account addresses to the summaries of their new emails.
type Payload map[string][]models.Email

// Channel is the push connection for one account.
//
// Lifecycle calls (Initialize, Terminate, Reinitialize, SetAccount) are
// serialized by mu. Every successful Initialize starts a new generation;
// content fetches started in an older generation are canceled on Terminate
// and their results are discarded if they still complete.
type Channel struct {
	deps Deps

	mu        sync.Mutex
	account   models.Account
	state     State
	conn      *websocket.Conn
	done      chan struct{}
	cancel    context.CancelFunc
	sessionID string

	generation atomic.Uint64
	permission atomic.Int32
	fetches    sync.WaitGroup
}

// NewChannel creates an uninitialized channel for account.
func NewChannel(account models.Account, deps Deps) *Channel {
	if deps.Dialer == nil {
		deps.Dialer = &websocket.Dialer{HandshakeTimeout: dialTimeout}
	}
	if deps.DialAttempts <= 0 {
		deps.DialAttempts = defaultDialAttempts
	}
	if deps.DialRetryDelay <= 0 {
		deps.DialRetryDelay = defaultDialRetryDelay
	}
	return &Channel{deps: deps, account: account}
}

// PushURL derives the push endpoint for account from the backend base URL by
// switching http(s) to ws(s) and appending /notifications/{account}.
func PushURL(server, account string) string {
	base := strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/notifications/" + url.PathEscape(account)
}

func (c *Channel) Account() models.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Permission returns the desktop notification permission seen by this channel.
func (c *Channel) Permission() desktop.Permission {
	return desktop.Permission(c.permission.Load())
}

// AreNotificationsAllowed reports whether desktop alerts may be shown.
func (c *Channel) AreNotificationsAllowed() bool {
	return c.Permission() == desktop.PermissionGranted
}

func (c *Channel) logger() *logrus.Entry {
	return c.deps.Logger.WithFields(logrus.Fields{
		"account": c.account.EmailAddress,
		"session": c.sessionID,
	})
}

// Initialize opens the push connection. It is a no-op when already open.
// A failed dial is retried with a fixed delay; once the attempts run out the
// channel stays out of the open state and the last error is returned.
func (c *Channel) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Channel) initializeLocked(ctx context.Context) error {
	if c.state == StateOpen {
		return nil
	}

	server := c.deps.State.Server()
	if server == "" {
		return ErrNoServer
	}

	target := PushURL(server, c.account.EmailAddress)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.deps.DialRetryDelay), uint64(c.deps.DialAttempts-1)),
		ctx,
	)

	var conn *websocket.Conn
	err := backoff.RetryNotify(
		func() error {
			var err error
			conn, err = c.dial(ctx, target)
			return err
		},
		policy,
		func(err error, next time.Duration) {
			c.deps.Logger.WithError(err).WithField("account", c.account.EmailAddress).WithField("retry_in", next).
				Debug("NotificationChannel: push connection not ready")
		},
	)
	if err != nil {
		c.deps.Logger.WithError(err).WithField("account", c.account.EmailAddress).
			WithField("attempts", c.deps.DialAttempts).Warn("NotificationChannel: failed to open push connection")
		return fmt.Errorf("failed to open push connection for %s: %w", c.account.EmailAddress, err)
	}

	gen := c.generation.Add(1)
	fetchCtx, cancel := context.WithCancel(context.Background())

	c.conn = conn
	c.cancel = cancel
	c.done = make(chan struct{})
	c.sessionID = uuid.NewString()
	c.state = StateOpen

	c.onOpen(ctx)
	c.logger().Info("NotificationChannel: push connection open")

	go c.readLoop(conn, gen, fetchCtx, c.done)
	return nil
}

func (c *Channel) dial(ctx context.Context, target string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, resp, err := c.deps.Dialer.DialContext(dialCtx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func (c *Channel) onOpen(ctx context.Context) {
	if c.Permission() == desktop.PermissionUnknown {
		permission := desktop.PermissionDenied
		if c.deps.Authorizer != nil {
			if c.deps.Authorizer.IsGranted(ctx) {
				permission = desktop.PermissionGranted
			} else {
				permission = c.deps.Authorizer.Request(ctx)
			}
		}
		c.permission.Store(int32(permission))
	}
	c.deps.State.EnsureRecentEmails(c.account.EmailAddress)
}

// Terminate closes the push connection. It is idempotent.
func (c *Channel) Terminate() {
	c.mu.Lock()
	done := c.terminateLocked()
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (c *Channel) terminateLocked() chan struct{} {
	if c.conn == nil {
		if c.state == StateOpen {
			c.state = StateClosed
		}
		return nil
	}

	c.generation.Add(1)
	c.cancel()

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	_ = c.conn.Close()

	done := c.done
	c.conn = nil
	c.cancel = nil
	c.done = nil
	c.state = StateClosed
	c.logger().Info("NotificationChannel: push connection closed")
	return done
}

// Reinitialize closes the connection if needed and opens a fresh one.
func (c *Channel) Reinitialize(ctx context.Context) error {
	c.mu.Lock()
	done := c.terminateLocked()
	c.mu.Unlock()
	if done != nil {
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateUninitialized
	return c.initializeLocked(ctx)
}

// SetAccount replaces the channel's account and reopens the connection.
func (c *Channel) SetAccount(ctx context.Context, account models.Account) error {
	c.mu.Lock()
	c.account = account
	c.mu.Unlock()
	return c.Reinitialize(ctx)
}

// PushDesktopNotification shows a desktop alert when permission is granted.
// Empty title or body fall back to the localized defaults. Failures are logged, never returned.
func (c *Channel) PushDesktopNotification(title, body string) {
	if !c.AreNotificationsAllowed() || c.deps.Sender == nil {
		return
	}

	lang := locale.DefaultLanguage
	if c.deps.Language != nil {
		lang = locale.Resolve(c.deps.Language())
	}
	if title == "" {
		title = locale.Get(locale.NewEmailReceivedTitle, lang)
	}
	if body == "" {
		body = locale.Get(locale.NewEmailReceivedBody, lang)
	}

	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()
	if err := c.deps.Sender.Send(ctx, title, body); err != nil {
		c.deps.Logger.WithError(err).Debug("NotificationChannel: failed to show desktop alert")
	}
}

// WaitForFetches blocks until every started content fetch has finished.
func (c *Channel) WaitForFetches() {
	c.fetches.Wait()
}

func (c *Channel) readLoop(conn *websocket.Conn, gen uint64, fetchCtx context.Context, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, gen, err)
			return
		}
		c.handleMessage(fetchCtx, gen, data)
	}
}

func (c *Channel) handleClose(conn *websocket.Conn, gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && strings.Contains(strings.ToLower(closeErr.Text), "error") {
		c.logger().WithField("reason", closeErr.Text).Error("NotificationChannel: server closed push connection")
	}

	// Terminate already cleaned up when the generation moved on.
	if c.conn != conn || c.generation.Load() != gen {
		return
	}
	_ = conn.Close()
	c.cancel()
	c.generation.Add(1)
	c.conn = nil
	c.cancel = nil
	c.done = nil
	c.state = StateClosed
	c.logger().WithError(err).Info("NotificationChannel: push connection lost")
}

func (c *Channel) handleMessage(ctx context.Context, gen uint64, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.deps.Logger.WithField("panic", r).Error("NotificationChannel: payload handler panicked")
		}
	}()

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.deps.Logger.WithError(err).Warn("NotificationChannel: failed to decode payload")
		return
	}

	c.handlePayload(ctx, gen, payload)
}

// handlePayload applies one push payload: one desktop alert, then for each
// account in address order the inbox merge and the content fan-out.
func (c *Channel) handlePayload(ctx context.Context, gen uint64, payload Payload) {
	c.PushDesktopNotification("", "")

	accounts := make([]string, 0, len(payload))
	for account := range payload {
		accounts = append(accounts, account)
	}
	slices.Sort(accounts)

	for _, account := range accounts {
		emails := payload[account]
		c.addToInbox(account, emails)
		c.addToRecentEmails(ctx, gen, account, emails)
	}
}

func (c *Channel) addToInbox(account string, emails []models.Email) {
	c.deps.State.UpdateMailbox(account, func(mb *models.Mailbox) {
		if !models.IsStandardFolder(mb.Folder, models.FolderInbox) {
			return
		}
		mailbox.PrependToWindow(&mb.Emails, emails)
		mb.Total += len(emails)
	})
}

func (c *Channel) addToRecentEmails(ctx context.Context, gen uint64, account string, emails []models.Email) {
	if !c.deps.State.HasRecentEmails(account) || c.deps.Fetcher == nil {
		return
	}
	if _, ok := c.deps.State.AccountByAddress(account); !ok {
		return
	}

	for _, email := range emails {
		c.fetches.Add(1)
		go func(uid string) {
			defer c.fetches.Done()
			c.fetchContent(ctx, gen, account, uid)
		}(email.UID)
	}
}

func (c *Channel) fetchContent(ctx context.Context, gen uint64, account, uid string) {
	content, err := c.deps.Fetcher.GetEmailContent(ctx, account, string(models.FolderInbox), uid)
	if err != nil {
		c.deps.Logger.WithError(err).WithField("account", account).WithField("uid", uid).
			Debug("NotificationChannel: failed to fetch email content")
		return
	}
	if c.generation.Load() != gen {
		return
	}
	c.deps.State.AppendRecentEmail(account, *content)
}
