package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vdavid/vmail/desktop/internal/api"
	"github.com/vdavid/vmail/desktop/internal/models"
	ws "github.com/vdavid/vmail/desktop/internal/websocket"
)

// Backend is an in-memory stand-in for the local mail backend: the JSON
// endpoints the client reads from plus the per-account push socket.
type Backend struct {
	Hub *ws.Hub

	mu             sync.Mutex
	logger         *logrus.Logger
	connected      []models.Account
	failed         []models.Account
	folders        map[string]string
	inboxes        map[string][]models.Email // newest first
	contents       map[string]models.EmailContent
	failingMailbox map[string]bool
	helloFailures  int
	pushFailures   int
	pushAttempts   int
	helloCalls     int
	mailboxCalls   int
	contentCalls   int
	contentGate    chan struct{}
}

// NewBackend creates an empty Backend.
func NewBackend(logger *logrus.Logger) *Backend {
	return &Backend{
		Hub:            ws.NewHub(10, logger),
		logger:         logger,
		folders:        make(map[string]string),
		inboxes:        make(map[string][]models.Email),
		contents:       make(map[string]models.EmailContent),
		failingMailbox: make(map[string]bool),
	}
}

// StartBackend runs a Backend on an httptest server that is closed when the test ends.
func StartBackend(t testing.TB) (*Backend, *httptest.Server) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(testWriter{t})
	logger.SetLevel(logrus.DebugLevel)

	backend := NewBackend(logger)
	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)
	return backend, server
}

type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// Handler returns the HTTP routes of the backend.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+api.RouteHello, b.handleHello)
	mux.HandleFunc("GET "+api.RouteGetAccounts, b.handleGetAccounts)
	mux.HandleFunc("GET "+api.RouteGetMailbox+"/{account}", b.handleGetMailbox)
	mux.HandleFunc("GET "+api.RouteGetEmailContent+"/{account}/{folder}/{uid}", b.handleGetEmailContent)
	mux.HandleFunc("GET /notifications/{account}", b.handleNotifications)
	return mux
}

// SetAccounts replaces the accounts reported by /get-accounts.
func (b *Backend) SetAccounts(connected, failed []models.Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = connected
	b.failed = failed
}

// SetInbox replaces account's inbox. Emails are ordered newest first.
func (b *Backend) SetInbox(account, folder string, emails []models.Email) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.folders[account] = folder
	b.inboxes[account] = append([]models.Email(nil), emails...)
}

// Deliver prepends emails to account's inbox, as a newly arrived batch would.
func (b *Backend) Deliver(account string, emails ...models.Email) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inboxes[account] = append(append([]models.Email(nil), emails...), b.inboxes[account]...)
}

// SetContent stores the full content returned for (account, content.UID).
func (b *Backend) SetContent(account string, content models.EmailContent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contents[contentKey(account, content.UID)] = content
}

// FailMailbox makes /get-mailbox fail for account.
func (b *Backend) FailMailbox(account string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failingMailbox[account] = true
}

// FailHello makes the next n calls to /hello fail.
func (b *Backend) FailHello(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.helloFailures = n
}

// FailPush makes the next n push connection attempts fail with 503.
func (b *Backend) FailPush(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushFailures = n
}

// PushAttempts returns how many push connections were requested.
func (b *Backend) PushAttempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pushAttempts
}

// HoldContent blocks content requests until the returned release func is called.
func (b *Backend) HoldContent() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.contentGate = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.contentGate = nil
			b.mu.Unlock()
			close(gate)
		})
	}
}

func (b *Backend) HelloCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.helloCalls
}

func (b *Backend) MailboxCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mailboxCalls
}

func (b *Backend) ContentCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contentCalls
}

// Push sends payload to account's push connections.
func (b *Backend) Push(account string, payload map[string][]models.Email) error {
	return b.Hub.Push(account, payload)
}

// WaitForConnections polls until account has n push connections or timeout passes.
func (b *Backend) WaitForConnections(account string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.Hub.ActiveConnections(account) == n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return b.Hub.ActiveConnections(account) == n
}

func (b *Backend) handleNotifications(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.pushAttempts++
	fail := b.pushFailures > 0
	if fail {
		b.pushFailures--
	}
	b.mu.Unlock()

	if fail {
		http.Error(w, "push unavailable", http.StatusServiceUnavailable)
		return
	}
	b.Hub.ServeAccount(w, r, r.PathValue("account"))
}

func (b *Backend) handleHello(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	b.helloCalls++
	fail := b.helloFailures > 0
	if fail {
		b.helloFailures--
	}
	b.mu.Unlock()

	if fail {
		writeEnvelope[struct{}](w, http.StatusServiceUnavailable, false, "starting up", nil)
		return
	}
	writeEnvelope[struct{}](w, http.StatusOK, true, "hello", nil)
}

func (b *Backend) handleGetAccounts(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	result := models.AccountsResult{
		Connected: append([]models.Account{}, b.connected...),
		Failed:    append([]models.Account{}, b.failed...),
	}
	b.mu.Unlock()

	writeEnvelope(w, http.StatusOK, true, "", &result)
}

func (b *Backend) handleGetMailbox(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	start, errStart := strconv.Atoi(r.URL.Query().Get("offset_start"))
	end, errEnd := strconv.Atoi(r.URL.Query().Get("offset_end"))
	if errStart != nil || errEnd != nil || start < 1 || end < start {
		writeEnvelope[struct{}](w, http.StatusBadRequest, false, "invalid offsets", nil)
		return
	}

	b.mu.Lock()
	b.mailboxCalls++
	failing := b.failingMailbox[account]
	inbox, ok := b.inboxes[account]
	folder := b.folders[account]
	b.mu.Unlock()

	if failing || !ok {
		writeEnvelope[struct{}](w, http.StatusInternalServerError, false, fmt.Sprintf("mailbox unavailable for %s", account), nil)
		return
	}

	from := min(start-1, len(inbox))
	to := min(end, len(inbox))
	data := map[string]models.RawMailbox{
		account: {
			Folder: folder,
			Emails: append([]models.Email{}, inbox[from:to]...),
			Total:  len(inbox),
		},
	}
	writeEnvelope(w, http.StatusOK, true, "", &data)
}

func (b *Backend) handleGetEmailContent(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	uid := r.PathValue("uid")

	b.mu.Lock()
	b.contentCalls++
	gate := b.contentGate
	content, ok := b.contents[contentKey(account, uid)]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		writeEnvelope[struct{}](w, http.StatusNotFound, false, "email not found", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, true, "", &content)
}

func writeEnvelope[T any](w http.ResponseWriter, status int, success bool, message string, data *T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Response[T]{Success: success, Message: message, Data: data})
}

func contentKey(account, uid string) string {
	return account + "\x00" + uid
}
