package scholarsphere

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"oa-workflow/config"
	"oa-workflow/providers/httpclient"
)

// Getter is satisfied by *httpclient.Client.
type Getter interface {
	Get(ctx context.Context, rawURL string, opts ...httpclient.RequestOption) (string, error)
}

type doiResult struct {
	URL string `json:"url"`
}

// Lookup fragt ScholarSphere nach Deposits zu einer DOI.
type Lookup struct {
	baseURL string
	http    Getter
	logger  *zap.Logger
}

// NewLookup erstellt einen neuen ScholarSphere-Lookup.
func NewLookup(cfg *config.Config, http Getter, logger *zap.Logger) *Lookup {
	return &Lookup{
		baseURL: strings.TrimRight(cfg.ScholarsphereBaseURL, "/"),
		http:    http,
		logger:  logger,
	}
}

// WorkURLs returns absolute URLs of ScholarSphere works carrying doi. An unknown DOI
// yields an empty list.
func (l *Lookup) WorkURLs(ctx context.Context, doi string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/api/v1/dois/%s", l.baseURL, url.PathEscape(doi))

	body, err := l.http.Get(ctx, reqURL)
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scholarsphere doi lookup: %w", err)
	}

	var results []doiResult
	if err := json.Unmarshal([]byte(body), &results); err != nil {
		return nil, fmt.Errorf("decode scholarsphere response: %w", err)
	}

	urls := make([]string, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if strings.HasPrefix(r.URL, "/") {
			urls = append(urls, l.baseURL+r.URL)
		} else {
			urls = append(urls, r.URL)
		}
	}
	l.logger.Debug("ScholarSphere-Lookup abgeschlossen", zap.String("doi", doi), zap.Int("works", len(urls)))
	return urls, nil
}
