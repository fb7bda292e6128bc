package session

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// Session is one long-lived browser/client instance able to fetch and render
// a sequence of listing pages. A session is owned by exactly one batch
// worker for the lifetime of its batch and is never shared or pooled.
//
// Open may internally wait and retry through anti-bot challenges; callers
// see only the rendered document or an error. Close releases the underlying
// resources and must be safe to call once the batch ends, however it ends.
type Session interface {
	Open(ctx context.Context, url string) (*goquery.Document, error)
	Close() error
}

// Factory creates a fresh Session for a worker. The extraction core depends
// only on this contract; tests inject fakes, production wires ChromeFactory.
type Factory func(ctx context.Context, workerID int) (Session, error)
