package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"rental-scraper/pkg/config"
	"rental-scraper/pkg/fetch"
	"rental-scraper/pkg/models"
	"rental-scraper/pkg/utils"
)

// Discoverer produces the backlog of listing refs by paging through the
// site's search API. The API is plain JSON, so this path uses the HTTP
// fetcher, not a browser session.
type Discoverer struct {
	fetcher *fetch.Fetcher
	limiter *fetch.RateLimiter
	cfg     config.DiscoveryConfig
	log     *logrus.Entry
}

// NewDiscoverer wires a Discoverer from the shared fetcher and rate limiter.
func NewDiscoverer(fetcher *fetch.Fetcher, limiter *fetch.RateLimiter, cfg config.DiscoveryConfig, log *logrus.Entry) *Discoverer {
	return &Discoverer{fetcher: fetcher, limiter: limiter, cfg: cfg, log: log}
}

// flexID tolerates the API emitting ref_id as either a JSON string or a
// number; both appear in the wild.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type apiListing struct {
	RefID flexID `json:"ref_id"`
	Link  string `json:"link"`
	City  string `json:"city"`
}

type apiResponse struct {
	Listings []apiListing `json:"listings"`
	Total    int          `json:"total"`
}

// Run pages through the API for every configured city (or once with no city
// filter) and returns the deduplicated backlog. Refs are deduplicated by
// ref_id across pages and cities; first occurrence wins.
func (d *Discoverer) Run(ctx context.Context) ([]models.ListingRef, error) {
	base, err := url.Parse(d.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing discovery base URL '%s': %w", utils.ErrParsing, d.cfg.BaseURL, err)
	}

	cities := d.cfg.Cities
	if len(cities) == 0 {
		cities = []string{""}
	}

	seen := make(map[string]bool)
	var refs []models.ListingRef
	for _, city := range cities {
		cityRefs, err := d.discoverCity(ctx, base, city, seen)
		if err != nil {
			return refs, err
		}
		refs = append(refs, cityRefs...)
	}

	d.log.WithField("refs", len(refs)).Info("Discovery complete")
	return refs, nil
}

// discoverCity pages one city's results. The first page reports the total
// result count; pages after that run until the estimate is exhausted, a page
// comes back empty, or MaxPages is hit.
func (d *Discoverer) discoverCity(ctx context.Context, base *url.URL, city string, seen map[string]bool) ([]models.ListingRef, error) {
	clog := d.log.WithField("city", city)

	var refs []models.ListingRef
	estimatedPages := 1
	duplicates := 0

	for page := 0; page < estimatedPages; page++ {
		if d.cfg.MaxPages > 0 && page >= d.cfg.MaxPages {
			clog.Warnf("Stopping at configured page cap (%d)", d.cfg.MaxPages)
			break
		}

		if page > 0 {
			d.limiter.ApplyDelay(ctx, base.Host, d.cfg.PageDelay)
		}
		select {
		case <-ctx.Done():
			return refs, ctx.Err()
		default:
		}

		resp, err := d.fetchPage(ctx, base, city, page)
		if err != nil {
			return refs, err
		}

		if page == 0 {
			pageSize := len(resp.Listings)
			if resp.Total > 0 && pageSize > 0 {
				estimatedPages = (resp.Total + pageSize - 1) / pageSize
			}
			clog.WithFields(logrus.Fields{"total": resp.Total, "page_size": pageSize, "pages": estimatedPages}).Info("First page fetched")
		}

		if len(resp.Listings) == 0 {
			clog.WithField("page", page).Debug("Empty page, stopping early")
			break
		}

		for _, raw := range resp.Listings {
			refID := string(raw.RefID)
			if refID == "" || seen[refID] {
				duplicates++
				continue
			}
			seen[refID] = true
			refs = append(refs, models.ListingRef{
				RefID: refID,
				Link:  d.normalizeLink(base, raw.Link),
				City:  raw.City,
			})
		}
	}

	clog.WithFields(logrus.Fields{"unique": len(refs), "duplicates": duplicates}).Info("City discovery finished")
	return refs, nil
}

// fetchPage requests one API page (cur_page is 0-indexed) and decodes it.
func (d *Discoverer) fetchPage(ctx context.Context, base *url.URL, city string, page int) (*apiResponse, error) {
	pageURL := *base
	q := pageURL.Query()
	if city != "" {
		q.Set("city", city)
	}
	q.Set("cur_page", strconv.Itoa(page))
	pageURL.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for '%s': %w", utils.ErrRequestCreation, pageURL.String(), err)
	}
	req.Header.Set("Accept", "application/json")
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}

	resp, err := d.fetcher.FetchWithRetry(req, ctx)
	d.limiter.UpdateLastRequestTime(base.Host)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", utils.ErrResponseBodyRead, page, err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding JSON for page %d: %w", utils.ErrParsing, page, err)
	}
	return &decoded, nil
}

// normalizeLink prepends the API's scheme+host to relative listing links.
func (d *Discoverer) normalizeLink(base *url.URL, link string) string {
	if link == "" || strings.HasPrefix(link, "http") {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return base.Scheme + "://" + base.Host + link
}

// WriteBacklog saves the discovered refs as the backlog JSON consumed by the
// scrape command.
func WriteBacklog(path string, refs []models.ListingRef, log *logrus.Entry) error {
	if refs == nil {
		refs = []models.ListingRef{}
	}
	data, err := json.MarshalIndent(refs, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling %d refs: %w", utils.ErrParsing, len(refs), err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: creating backlog dir '%s': %w", utils.ErrFilesystem, dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: writing backlog '%s': %w", utils.ErrFilesystem, path, err)
	}
	log.WithFields(logrus.Fields{"path": path, "refs": len(refs)}).Info("Backlog written")
	return nil
}

// LoadBacklog reads a backlog JSON file.
func LoadBacklog(path string) ([]models.ListingRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading backlog '%s': %w", utils.ErrFilesystem, path, err)
	}
	var refs []models.ListingRef
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("%w: decoding backlog JSON '%s': %w", utils.ErrParsing, path, err)
	}
	return refs, nil
}
