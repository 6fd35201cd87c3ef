package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultHost      = "https://pricing.us-east-1.amazonaws.com"
	regionIndexPath  = "/offers/v1.0/aws/%s/current/region_index.json"
	maxErrorBodySize = 512
)

// Source yields the current version document of a single offer and region.
type Source interface {
	Current(ctx context.Context) (*VersionDocument, error)
}

// FetchError is returned when a catalog document cannot be retrieved or decoded.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Fetcher reads the public price list files: first the region index of an
// offer, then the version document the index points to for one region.
type Fetcher struct {
	client    *http.Client
	host      *url.URL
	offerCode string
	region    string
}

// NewFetcher returns a Fetcher for the given pricing host. The client must carry
// a timeout; a nil client gets a default one.
func NewFetcher(host, offerCode, region string, client *http.Client) (*Fetcher, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid pricing host %q: %w", host, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("pricing host %q is not an absolute url", host)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		client:    client,
		host:      u,
		offerCode: offerCode,
		region:    region,
	}, nil
}

// FetchJSON issues a GET against rawURL and decodes the JSON body into v.
func (f *Fetcher) FetchJSON(ctx context.Context, rawURL string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &FetchError{URL: rawURL, Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return &FetchError{URL: rawURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &FetchError{URL: rawURL, Cause: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &FetchError{URL: rawURL, Cause: fmt.Errorf("malformed document: %w", err)}
	}
	log.Debugf("fetched catalog document [url=%s, duration=%s]", rawURL, time.Since(start))
	return nil
}

// RegionIndex fetches the region index of the configured offer.
func (f *Fetcher) RegionIndex(ctx context.Context) (*RegionIndex, error) {
	u := f.resolve(fmt.Sprintf(regionIndexPath, url.PathEscape(f.offerCode)))
	var idx RegionIndex
	if err := f.FetchJSON(ctx, u, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// VersionDocument fetches the document at locator, a path relative to the
// pricing host as found in the region index.
func (f *Fetcher) VersionDocument(ctx context.Context, locator string) (*VersionDocument, error) {
	var doc VersionDocument
	if err := f.FetchJSON(ctx, f.resolve(locator), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Current resolves the configured region through the region index and fetches
// its version document. The two requests cannot overlap.
func (f *Fetcher) Current(ctx context.Context) (*VersionDocument, error) {
	idx, err := f.RegionIndex(ctx)
	if err != nil {
		return nil, err
	}

	entry, ok := idx.Regions[f.region]
	if !ok || entry.CurrentVersionURL == "" {
		return nil, &FetchError{
			URL:   f.resolve(fmt.Sprintf(regionIndexPath, url.PathEscape(f.offerCode))),
			Cause: fmt.Errorf("region %q has no current version in the region index", f.region),
		}
	}
	log.Debugf("resolved version document [offer=%s, region=%s, locator=%s]", f.offerCode, f.region, entry.CurrentVersionURL)

	return f.VersionDocument(ctx, entry.CurrentVersionURL)
}

func (f *Fetcher) resolve(locator string) string {
	ref, err := url.Parse(locator)
	if err != nil {
		return f.host.String() + locator
	}
	return f.host.ResolveReference(ref).String()
}
