package gallery

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	errs "eaafetch/pkg/errors"
	"eaafetch/pkg/logger"

	"github.com/PuerkitoBio/goquery"
)

// Selectors of the fixed page contract
const (
	ListingContentSelector = ".view-content"
	ListingAnchorSelector  = ".view-content a[href]"
	NextPageSelector       = ".pager__item--next a[href], .pager-next a[href], a[rel='next'][href]"
	LandingActionSelector  = ".btn-hallow"
	DownloadButtonSelector = `input[type="button"]`
	DownloadActionAttr     = "onclick"
)

const (
	locationPrefix = "window.location='"
	locationQuote  = "'"
)

// PageFetcher retrieves a URL as a queryable document
type PageFetcher interface {
	Document(ctx context.Context, url string) (*goquery.Document, error)
}

// Resolver walks the listing → landing → download page chain
type Resolver struct {
	fetcher     PageFetcher
	baseURL     string
	galleryPath string
	maxPages    int
	logger      logger.Logger
}

// NewResolver creates a resolver for the gallery rooted at baseURL
func NewResolver(fetcher PageFetcher, baseURL, galleryPath string, maxPages int, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Resolver{
		fetcher:     fetcher,
		baseURL:     strings.TrimRight(baseURL, "/"),
		galleryPath: galleryPath,
		maxPages:    maxPages,
		logger:      log,
	}
}

// CollectionURL composes the listing URL of a collection
func CollectionURL(baseURL, galleryPath string, collectionID int) string {
	return strings.TrimRight(baseURL, "/") + galleryPath + "-" + strconv.Itoa(collectionID)
}

// CollectionURL returns the listing URL of a collection
func (r *Resolver) CollectionURL(collectionID int) string {
	return CollectionURL(r.baseURL, r.galleryPath, collectionID)
}

// ListImageLandingRefs returns the landing page URL of every image in a
// collection, in listing order, following the pager until it runs out.
func (r *Resolver) ListImageLandingRefs(ctx context.Context, collectionID int) ([]string, error) {
	pageURL := r.CollectionURL(collectionID)
	visited := make(map[string]bool)
	seen := make(map[string]bool)
	var refs []string

	for page := 1; pageURL != "" && page <= r.maxPages; page++ {
		if visited[pageURL] {
			break
		}
		visited[pageURL] = true

		doc, err := r.fetcher.Document(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("listing collection %d page %d: %w", collectionID, page, err)
		}

		if doc.Find(ListingContentSelector).Length() == 0 {
			if page == 1 {
				return nil, errs.NewParseError(pageURL, "listing has no %s region", ListingContentSelector)
			}
			// A later page without content ends the listing
			break
		}

		doc.Find(ListingAnchorSelector).Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			ref, err := resolveRef(pageURL, href)
			if err != nil || seen[ref] {
				return
			}
			seen[ref] = true
			refs = append(refs, ref)
		})
		logger.LogCollectionProgress(r.logger, collectionID, page, len(refs))

		current := documentURL(doc, pageURL)
		pageURL = ""
		if next, ok := doc.Find(NextPageSelector).First().Attr("href"); ok {
			if resolved, err := resolveRef(current, next); err == nil {
				pageURL = resolved
			}
		}
	}

	if pageURL != "" && !visited[pageURL] {
		r.logger.WarnWithFields("Listing truncated at page limit", map[string]interface{}{
			"collection": collectionID,
			"max_pages":  r.maxPages,
		})
	}

	return refs, nil
}

// ResolveDownloadPageRef reads the call-to-action link of a landing page
func (r *Resolver) ResolveDownloadPageRef(ctx context.Context, landingRef string) (string, error) {
	doc, err := r.fetcher.Document(ctx, landingRef)
	if err != nil {
		return "", fmt.Errorf("fetching landing page: %w", err)
	}

	control := doc.Find(LandingActionSelector).First()
	if control.Length() == 0 {
		return "", errs.NewParseError(landingRef, "landing page has no %s control", LandingActionSelector)
	}
	href, ok := control.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", errs.NewParseError(landingRef, "%s control has no href", LandingActionSelector)
	}

	ref, err := resolveRef(landingRef, href)
	if err != nil {
		return "", errs.NewParseError(landingRef, "invalid download page href %q", href)
	}
	return ref, nil
}

// ResolveDirectDownloadURL extracts the binary URL from the download page trigger
func (r *Resolver) ResolveDirectDownloadURL(ctx context.Context, downloadPageRef string) (string, error) {
	doc, err := r.fetcher.Document(ctx, downloadPageRef)
	if err != nil {
		return "", fmt.Errorf("fetching download page: %w", err)
	}

	button := doc.Find(DownloadButtonSelector).First()
	if button.Length() == 0 {
		return "", errs.NewParseError(downloadPageRef, "download page has no %s", DownloadButtonSelector)
	}
	action, ok := button.Attr(DownloadActionAttr)
	if !ok {
		return "", errs.NewParseError(downloadPageRef, "download button has no %s attribute", DownloadActionAttr)
	}

	direct, err := ParseLocationAssignment(action)
	if err != nil {
		return "", errs.NewParseError(downloadPageRef, "%v", err)
	}
	resolved, err := resolveRef(downloadPageRef, direct)
	if err != nil {
		return "", errs.NewParseError(downloadPageRef, "invalid direct download URL %q", direct)
	}
	return resolved, nil
}

// ParseLocationAssignment extracts URL from an inline handler containing
// window.location='URL'. Statements around the assignment are ignored; a
// missing token, a missing closing quote or an empty URL is an error.
func ParseLocationAssignment(attr string) (string, error) {
	start := strings.Index(attr, locationPrefix)
	if start < 0 {
		return "", fmt.Errorf("action %q has no %s...' assignment", attr, locationPrefix)
	}

	rest := attr[start+len(locationPrefix):]
	end := strings.Index(rest, locationQuote)
	if end < 0 {
		return "", fmt.Errorf("action %q has no closing quote", attr)
	}

	u := strings.TrimSpace(rest[:end])
	if u == "" {
		return "", fmt.Errorf("action %q assigns an empty URL", attr)
	}
	return u, nil
}

// ArchiveName derives the archive name from the path segment that precedes
// the final component of a download page URL.
func ArchiveName(downloadPageRef string) (string, error) {
	u, err := url.Parse(downloadPageRef)
	if err != nil {
		return "", errs.NewParseError(downloadPageRef, "invalid download page URL")
	}

	segments := strings.Split(u.Path, "/")
	if len(segments) < 2 {
		return "", errs.NewParseError(downloadPageRef, "download page URL has no parent segment")
	}
	name := path.Base(segments[len(segments)-2])
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", errs.NewParseError(downloadPageRef, "download page URL has no parent segment")
	}
	return name, nil
}

// documentURL is the final URL of doc after redirects, or fallback
func documentURL(doc *goquery.Document, fallback string) string {
	if doc.Url != nil {
		return doc.Url.String()
	}
	return fallback
}

// resolveRef resolves href against the page it was found on
func resolveRef(pageURL, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", fmt.Errorf("not a navigable href: %q", href)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
