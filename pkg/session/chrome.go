package session

import (
	"context"
	"math/rand"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"rental-scraper/pkg/config"
	"rental-scraper/pkg/utils"
)

// challengeMarkers are body-text fragments indicating an anti-bot
// interstitial is still in front of the real page.
var challengeMarkers = []string{"cloudflare", "verify you are human"}

// ChromeSession renders pages in one headless Chrome instance. One instance
// serves a whole batch, amortizing browser startup over many items.
type ChromeSession struct {
	cfg config.SessionConfig
	log *logrus.Entry

	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	browserCtx    context.Context

	closeOnce sync.Once
	closed    bool
}

// NewChrome starts a browser and returns a Session backed by it. The browser
// is launched eagerly so a machine without Chrome fails at batch start
// (batch-level fatal) instead of on the first item.
func NewChrome(ctx context.Context, cfg config.SessionConfig, log *logrus.Entry) (*ChromeSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.IsHeadless()),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if bin := findChromeBinary(cfg.ChromePath); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)

	// Suppress chromedp log noise; session errors surface through Open/Close.
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Run with no actions forces the browser process to start now.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, utils.WrapErrorf(utils.ErrSessionCreate, "starting chrome: %v", err)
	}

	log.Debug("Chrome session started")
	return &ChromeSession{
		cfg:           cfg,
		log:           log,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		browserCtx:    browserCtx,
	}, nil
}

// Open navigates to url in a fresh tab, waits out the settle delay and any
// anti-bot challenge, and returns the rendered document.
func (s *ChromeSession) Open(ctx context.Context, url string) (*goquery.Document, error) {
	if s.closed {
		return nil, utils.ErrSessionClosed
	}

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, s.cfg.NavTimeout)
	defer cancelTimeout()

	// chromedp contexts chain from the browser, not the caller; propagate the
	// caller's cancellation into the tab.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(s.settleDelay()),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrNavigation, "navigate '%s': %v", url, err)
	}

	// Challenge interstitials usually clear themselves after a few seconds;
	// re-check a bounded number of times before giving up on the item.
	for check := 0; challengePresent(html) && check < s.cfg.ChallengeChecks; check++ {
		s.log.WithFields(logrus.Fields{"url": url, "check": check + 1}).
			Debug("Anti-bot challenge detected, waiting for it to clear")
		err := chromedp.Run(tabCtx,
			chromedp.Sleep(s.cfg.ChallengeWait),
			chromedp.OuterHTML("html", &html),
		)
		if err != nil {
			return nil, utils.WrapErrorf(utils.ErrNavigation, "re-checking '%s' after challenge wait: %v", url, err)
		}
	}
	if challengePresent(html) {
		return nil, utils.WrapErrorf(utils.ErrChallengeTimeout, "'%s' after %d checks", url, s.cfg.ChallengeChecks)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "parsing HTML from '%s': %v", url, err)
	}
	return doc, nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *ChromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		s.cancelBrowser()
		s.cancelAlloc()
		s.log.Debug("Chrome session closed")
	})
	return nil
}

// settleDelay picks a randomized post-load wait in [min, max] so worker
// traffic does not look machine-regular.
func (s *ChromeSession) settleDelay() time.Duration {
	min, max := s.cfg.SettleDelayMin, s.cfg.SettleDelayMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func challengePresent(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ChromeFactory returns a Factory that starts one browser per worker, each
// logging under its worker ID.
func ChromeFactory(cfg config.SessionConfig, log *logrus.Entry) Factory {
	return func(ctx context.Context, workerID int) (Session, error) {
		return NewChrome(ctx, cfg, log.WithField("worker_id", workerID))
	}
}

// findChromeBinary resolves the browser binary: explicit config first, then
// CHROME_BIN, then well-known names and paths. Empty means let chromedp
// auto-detect.
func findChromeBinary(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
