// Package avatar resolves display identities for email addresses and keeps a
// bounded, insertion-ordered cache of them.
package avatar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/vdavid/vmail/desktop/internal/models"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultCeiling     = 100
	DefaultFloor       = 10
	DefaultGravatarURL = "https://www.gravatar.com/avatar"

	lookupTimeout = 10 * time.Second
)

type colorPair struct {
	bg string
	fg string
}

var colors = []colorPair{
	{"#e583ce", "#471033"},
	{"#c8daf5", "#20284b"},
	{"#f4ff77", "#4c2500"},
	{"#dde8a0", "#372b11"},
	{"#99f6f0", "#042b2f"},
	{"#f0dfd8", "#362119"},
	{"#e8dfef", "#2d1c36"},
	{"#b4fee1", "#003322"},
	{"#9ef1da", "#062d29"},
	{"#b2d7ff", "#09175d"},
	{"#f8d2e2", "#4b0c1b"},
	{"#dad3ff", "#290a6b"},
	{"#fcd6cc", "#43180c"},
}

var (
	fullnamePattern = regexp.MustCompile(`^(.*?)<.*@.*>$`)
	addressPattern  = regexp.MustCompile(`<(.+@.+)>`)
)

type Options struct {
	// Ceiling is the size above which the cache evicts.
	Ceiling int
	// Floor is the size eviction never goes below, normally the mailbox page length.
	Floor       int
	GravatarURL string
	// RPS limits remote lookups per second. Zero means unlimited.
	RPS        float64
	HTTPClient *http.Client
}

// Cache maps normalized addresses to identities.
type Cache struct {
	mu      sync.Mutex
	entries map[string]models.Identity
	order   []string
	ceiling int
	floor   int

	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
	logger  *logrus.Logger
}

func New(opts Options, logger *logrus.Logger) *Cache {
	if opts.Ceiling <= 0 {
		opts.Ceiling = DefaultCeiling
	}
	if opts.Floor < 0 {
		opts.Floor = 0
	}
	if opts.GravatarURL == "" {
		opts.GravatarURL = DefaultGravatarURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}

	return &Cache{
		entries: make(map[string]models.Identity),
		ceiling: opts.Ceiling,
		floor:   opts.Floor,
		baseURL: strings.TrimRight(opts.GravatarURL, "/"),
		client:  opts.HTTPClient,
		limiter: limiter,
		logger:  logger,
	}
}

// SetFloor changes the eviction floor, e.g. after the mailbox length changes.
func (c *Cache) SetFloor(floor int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.floor = max(0, floor)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Get returns the cached identity for address.
func (c *Cache) Get(address string) (models.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	identity, ok := c.entries[Normalize(address)]
	return identity, ok
}

// CreateAvatarData returns the identity for address, resolving and caching it
// on first use. address may be a bare address or a "Name <address>" sender.
// Concurrent calls for one address share a single remote lookup.
func (c *Cache) CreateAvatarData(ctx context.Context, address, name string) models.Identity {
	key := Normalize(address)
	if identity, ok := c.Get(key); ok {
		return identity
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		if identity, ok := c.Get(key); ok {
			return identity, nil
		}

		fullname := name
		if fullname == "" {
			fullname = extractFullname(address)
		}

		// The lookup is shared by every waiting caller, so it must not die with the first one.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		var identity models.Identity
		if hash, found := c.lookup(lookupCtx, key); found {
			identity = models.Identity{Gravatar: &models.Gravatar{Hash: hash, Fullname: fullname}}
		} else {
			identity = LocalIdentity(key, fullname)
		}

		c.store(key, identity)
		return identity, nil
	})
	return v.(models.Identity)
}

func (c *Cache) store(key string, identity models.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = identity
	c.evictLocked()
}

// evictLocked brings the cache back to its ceiling, oldest first, without
// going below the floor.
func (c *Cache) evictLocked() {
	size := len(c.order)
	if size <= c.ceiling {
		return
	}
	n := min(size-c.ceiling, size-c.floor)
	if n <= 0 {
		return
	}
	for _, key := range c.order[:n] {
		delete(c.entries, key)
	}
	c.order = append([]string(nil), c.order[n:]...)
}

// lookup asks the remote service for a hash-based avatar. Any failure counts as not found.
func (c *Cache) lookup(ctx context.Context, address string) (string, bool) {
	hash := Hash(address)
	if address == "" {
		return hash, false
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return hash, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s?d=404", c.baseURL, hash), nil)
	if err != nil {
		return hash, false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).Debug("Avatar: remote lookup failed")
		return hash, false
	}
	_ = resp.Body.Close()

	return hash, resp.StatusCode == http.StatusOK
}

// Normalize extracts the address from a sender string, trimmed and lower-cased.
func Normalize(sender string) string {
	address := strings.TrimSpace(sender)
	if m := addressPattern.FindStringSubmatch(sender); m != nil {
		address = strings.TrimSpace(m[1])
	}
	return strings.ToLower(address)
}

// Hash is the hex SHA-256 of the normalized address.
func Hash(address string) string {
	sum := sha256.Sum256([]byte(Normalize(address)))
	return hex.EncodeToString(sum[:])
}

// Initials returns the upper-cased first letter of the name's first word, or
// of the address local part when name is empty.
func Initials(address, name string) string {
	source := strings.TrimSpace(name)
	if source == "" {
		source, _, _ = strings.Cut(Normalize(address), "@")
	}
	source = strings.TrimLeftFunc(source, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	if source == "" {
		return "?"
	}
	r, _ := utf8.DecodeRuneInString(source)
	return string(unicode.ToUpper(r))
}

// LocalIdentity builds the placeholder identity. The colour pair is derived
// from the address hash so the same address always gets the same colours.
func LocalIdentity(address, name string) models.Identity {
	sum := sha256.Sum256([]byte(Normalize(address)))
	pair := colors[int(sum[0])%len(colors)]
	return models.Identity{Local: &models.LocalAvatar{
		BG:       pair.bg,
		FG:       pair.fg,
		Initials: Initials(address, name),
	}}
}

func extractFullname(sender string) string {
	if m := fullnamePattern.FindStringSubmatch(sender); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), `"`)
	}
	return ""
}
