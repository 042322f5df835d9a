package mailbox

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vdavid/vmail/desktop/internal/models"
	"github.com/vdavid/vmail/desktop/internal/state"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentLoads bounds parallel mailbox requests against the local backend.
const maxConcurrentLoads = 4

// Fetcher loads a range of a folder from the backend. Offsets are 1-based and inclusive.
type Fetcher interface {
	GetMailbox(ctx context.Context, account, folder string, offsetStart, offsetEnd int) (*models.RawMailbox, error)
}

// Controller loads mailbox windows for every connected account into the shared state.
type Controller struct {
	fetcher Fetcher
	state   *state.State
	logger  *logrus.Logger
}

func NewController(fetcher Fetcher, st *state.State, logger *logrus.Logger) *Controller {
	return &Controller{fetcher: fetcher, state: st, logger: logger}
}

// Init loads the inbox of every connected account with the given page length.
// Each window holds one page in Current and one page of look-ahead in Next.
// Accounts that fail are recorded in the state's failed accounts and do not
// abort the others. Init returns an error only when every account failed.
func (c *Controller) Init(ctx context.Context, pageLength int) error {
	accounts := c.state.Accounts()
	if len(accounts) == 0 {
		return nil
	}

	failures := make([]error, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)

	for i, acc := range accounts {
		g.Go(func() error {
			failures[i] = c.load(gctx, acc, string(models.FolderInbox), pageLength)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range failures {
		if err == nil {
			continue
		}
		failed++
		c.logger.WithError(err).WithField("account", accounts[i].EmailAddress).
			Warn("MailboxController: failed to load mailbox")
		c.state.AddFailedAccount(accounts[i])
	}

	if failed == len(accounts) {
		return fmt.Errorf("failed to load mailboxes for all %d accounts", failed)
	}
	return nil
}

func (c *Controller) load(ctx context.Context, acc models.Account, folder string, pageLength int) error {
	raw, err := c.fetcher.GetMailbox(ctx, acc.EmailAddress, folder, 1, 2*pageLength)
	if err != nil {
		return err
	}

	c.state.SetMailbox(acc.EmailAddress, models.Mailbox{
		Folder: raw.Folder,
		Emails: Split(raw.Emails, pageLength),
		Total:  raw.Total,
	})
	return nil
}
