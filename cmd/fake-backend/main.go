// Command fake-backend serves an in-memory mail backend for running the
// client locally. It seeds a couple of accounts and delivers a new email to
// each of them at a fixed interval over the push socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vdavid/vmail/desktop/internal/logging"
	"github.com/vdavid/vmail/desktop/internal/models"
	"github.com/vdavid/vmail/desktop/internal/testutil"
)

var seedAccounts = []models.Account{
	{EmailAddress: "alice@example.com", Fullname: "Alice Example"},
	{EmailAddress: "bob@example.com", Fullname: "Bob Example"},
}

func main() {
	logger := logging.New(getEnvOrDefault("LOG_LEVEL", "info"))

	interval, err := time.ParseDuration(getEnvOrDefault("VMAIL_FAKE_DELIVERY_INTERVAL", "30s"))
	if err != nil {
		logger.WithError(err).Fatal("FakeBackend: invalid delivery interval")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := testutil.NewBackend(logger)
	seedTestData(backend)

	srv := &http.Server{
		Addr:              getEnvOrDefault("VMAIL_FAKE_ADDR", "127.0.0.1:8000"),
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("FakeBackend: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go deliverPeriodically(ctx, backend, logger, interval)

	select {
	case <-ctx.Done():
		logger.Info("FakeBackend: shutting down")
	case err := <-serverErr:
		logger.WithError(err).Fatal("FakeBackend: server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// seedTestData gives every seed account an inbox of ten emails with content.
func seedTestData(backend *testutil.Backend) {
	backend.SetAccounts(seedAccounts, nil)
	for _, acc := range seedAccounts {
		emails := make([]models.Email, 0, 10)
		for i := 10; i >= 1; i-- {
			email := testEmail(acc, i, time.Now().Add(-time.Duration(11-i)*time.Hour))
			emails = append(emails, email)
			backend.SetContent(acc.EmailAddress, testContent(email))
		}
		backend.SetInbox(acc.EmailAddress, "INBOX", emails)
	}
}

// deliverPeriodically adds one email per account each tick and pushes the
// batch to every account's push connections.
func deliverPeriodically(ctx context.Context, backend *testutil.Backend, logger *logrus.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	next := 11
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			payload := make(map[string][]models.Email, len(seedAccounts))
			for _, acc := range seedAccounts {
				email := testEmail(acc, next, now)
				backend.SetContent(acc.EmailAddress, testContent(email))
				backend.Deliver(acc.EmailAddress, email)
				payload[acc.EmailAddress] = []models.Email{email}
			}
			next++

			for _, acc := range seedAccounts {
				if err := backend.Push(acc.EmailAddress, payload); err != nil {
					logger.WithError(err).WithField("account", acc.EmailAddress).Warn("FakeBackend: push failed")
				}
			}
		}
	}
}

func testEmail(acc models.Account, n int, date time.Time) models.Email {
	return models.Email{
		MessageID: fmt.Sprintf("<%d.%s>", n, acc.EmailAddress),
		UID:       fmt.Sprint(n),
		Sender:    "Test Sender <sender@example.com>",
		Receivers: fmt.Sprintf("%s <%s>", acc.Fullname, acc.EmailAddress),
		Date:      date.UTC().Format(time.RFC1123Z),
		Subject:   fmt.Sprintf("Test message %d", n),
	}
}

func testContent(email models.Email) models.EmailContent {
	return models.EmailContent{
		Email: email,
		Body:  fmt.Sprintf("<p>This is %s.</p>", email.Subject),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
