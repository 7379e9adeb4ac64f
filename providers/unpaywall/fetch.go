package unpaywall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"oa-workflow/config"
	"oa-workflow/providers/httpclient"
)

// ErrNotFound is returned when Unpaywall does not know the DOI.
var ErrNotFound = errors.New("doi not found in unpaywall")

// Getter is satisfied by *httpclient.Client.
type Getter interface {
	Get(ctx context.Context, rawURL string, opts ...httpclient.RequestOption) (string, error)
}

// Fetcher kapselt die Logik für Unpaywall.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	HTTP   Getter
}

// NewFetcher erstellt einen neuen Unpaywall-Fetcher.
func NewFetcher(cfg *config.Config, http Getter, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger, HTTP: http}
}

// Fetch holt die Unpaywall-Metadaten zu einer DOI.
func (f *Fetcher) Fetch(ctx context.Context, doi string) (*Response, error) {
	if f.Config.UnpaywallEmail == "" {
		return nil, fmt.Errorf("unpaywall email ist nicht konfiguriert")
	}

	path := (&url.URL{Path: strings.TrimSpace(doi)}).EscapedPath()
	reqURL := fmt.Sprintf("%s/%s?email=%s", strings.TrimRight(f.Config.UnpaywallBaseURL, "/"), path, url.QueryEscape(f.Config.UnpaywallEmail))
	log := f.Logger.With(zap.String("doi", doi), zap.String("url", reqURL))
	log.Debug("Rufe Unpaywall API auf.")

	body, err := f.HTTP.Get(ctx, reqURL)
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("unpaywall request: %w", err)
	}

	var ur Response
	if err := json.Unmarshal([]byte(body), &ur); err != nil {
		return nil, fmt.Errorf("decode unpaywall response: %w", err)
	}
	return &ur, nil
}

// Search sucht per Titel und liefert die Treffer in der Reihenfolge von Unpaywall.
func (f *Fetcher) Search(ctx context.Context, title string) ([]Response, error) {
	if f.Config.UnpaywallEmail == "" {
		return nil, fmt.Errorf("unpaywall email ist nicht konfiguriert")
	}

	query := url.Values{}
	query.Set("query", title)
	query.Set("email", f.Config.UnpaywallEmail)
	reqURL := fmt.Sprintf("%s/search?%s", strings.TrimRight(f.Config.UnpaywallBaseURL, "/"), query.Encode())
	f.Logger.Debug("Suche bei Unpaywall per Titel.", zap.String("title", title))

	body, err := f.HTTP.Get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("unpaywall search: %w", err)
	}

	var sr searchResponse
	if err := json.Unmarshal([]byte(body), &sr); err != nil {
		return nil, fmt.Errorf("decode unpaywall search response: %w", err)
	}

	results := make([]Response, 0, len(sr.Results))
	for _, r := range sr.Results {
		results = append(results, r.Response)
	}
	return results, nil
}
