// Package permissions enthält die gemeinsamen Typen der Permission-APIs
// (OpenAccessButton und OA.Works liefern dasselbe Antwortformat).
package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"oa-workflow/models"
	"oa-workflow/providers/httpclient"
)

// ErrInvalidVersion is returned when a lookup is filtered by anything other than
// acceptedVersion or publishedVersion.
var ErrInvalidVersion = errors.New("invalid version")

// Record is one provider's deposit permission for one manuscript version.
// The zero value is the empty record: nothing known, deposit not allowed.
type Record struct {
	Version          models.FileVersion `json:"version,omitempty"`
	License          string             `json:"license,omitempty"`
	EmbargoEnd       string             `json:"embargo_end,omitempty"`
	DepositStatement string             `json:"deposit_statement,omitempty"`
	CanDeposit       bool               `json:"can_deposit"`
}

// Set is everything one provider reported for a DOI, taken from a single response.
type Set struct {
	Accepted       Record
	AcceptedFound  bool
	Published      Record
	PublishedFound bool
	Best           *Record
}

// HasData reports whether the provider had a permission for either version.
func (s *Set) HasData() bool {
	return s.AcceptedFound || s.PublishedFound
}

// Source is a permission provider.
type Source interface {
	Name() string
	// Fetch makes one request and returns both versions and best_permission. A nil Set
	// means the provider had no data; an error means the provider could not be asked.
	Fetch(ctx context.Context, doi string) (*Set, error)
	// FetchByVersion returns the permission for one version. found is false when the
	// provider had no data; the record is then empty.
	FetchByVersion(ctx context.Context, doi string, version models.FileVersion) (rec Record, found bool, err error)
	// FetchBest returns the provider's best_permission.
	FetchBest(ctx context.Context, doi string) (rec Record, found bool)
}

// Response ist die JSON-Antwort der Permission-API.
type Response struct {
	AllPermissions []Permission `json:"all_permissions"`
	BestPermission *Permission  `json:"best_permission"`
}

// Permission ist ein Eintrag in all_permissions bzw. best_permission.
type Permission struct {
	Version          string         `json:"version"`
	CanArchive       bool           `json:"can_archive"`
	Licence          string         `json:"licence"`
	Licences         []licenceEntry `json:"licences"`
	EmbargoEnd       string         `json:"embargo_end"`
	DepositStatement string         `json:"deposit_statement"`
}

// Ältere Antworten liefern die Lizenz nur als Liste.
type licenceEntry struct {
	Type string `json:"type"`
}

// Record converts the API entry.
func (p *Permission) Record() Record {
	licence := p.Licence
	if licence == "" && len(p.Licences) > 0 {
		licence = p.Licences[0].Type
	}
	return Record{
		Version:          models.FileVersion(p.Version),
		License:          strings.TrimSpace(licence),
		EmbargoEnd:       strings.TrimSpace(p.EmbargoEnd),
		DepositStatement: p.DepositStatement,
		CanDeposit:       p.CanArchive,
	}
}

// ForVersion filters all_permissions by version.
func (r *Response) ForVersion(version models.FileVersion) (Record, bool) {
	for i := range r.AllPermissions {
		if models.FileVersion(r.AllPermissions[i].Version) == version {
			return r.AllPermissions[i].Record(), true
		}
	}
	return Record{}, false
}

// Set filters the response for both versions and best_permission.
func (r *Response) Set() Set {
	var set Set
	set.Accepted, set.AcceptedFound = r.ForVersion(models.FileVersionAccepted)
	set.Published, set.PublishedFound = r.ForVersion(models.FileVersionPublished)
	if r.BestPermission != nil {
		best := r.BestPermission.Record()
		set.Best = &best
	}
	return set
}

// Getter is satisfied by *httpclient.Client.
type Getter interface {
	Get(ctx context.Context, rawURL string, opts ...httpclient.RequestOption) (string, error)
}

// Fetcher implementiert Source für eine API mit dem Permission-Format.
type Fetcher struct {
	name    string
	baseURL string
	http    Getter
	logger  *zap.Logger
}

var _ Source = (*Fetcher)(nil)

// NewFetcher erstellt einen Fetcher für baseURL; die DOI wird URL-kodiert angehängt.
func NewFetcher(name, baseURL string, http Getter, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http,
		logger:  logger.With(zap.String("provider", name)),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return f.name
}

// URL builds the lookup URL for doi.
func (f *Fetcher) URL(doi string) string {
	return fmt.Sprintf("%s/%s", f.baseURL, url.PathEscape(doi))
}

// FetchByVersion implements Source.
func (f *Fetcher) FetchByVersion(ctx context.Context, doi string, version models.FileVersion) (Record, bool, error) {
	if !version.Valid() {
		return Record{}, false, fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	resp, ok := f.Lookup(ctx, doi)
	if !ok {
		return Record{}, false, nil
	}
	rec, found := resp.ForVersion(version)
	return rec, found, nil
}

// FetchBest implements Source.
func (f *Fetcher) FetchBest(ctx context.Context, doi string) (Record, bool) {
	resp, ok := f.Lookup(ctx, doi)
	if !ok || resp.BestPermission == nil {
		return Record{}, false
	}
	return resp.BestPermission.Record(), true
}

// Fetch implements Source. A 404 and an undecodable body count as no data; transport
// failures and other non-2xx responses are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, doi string) (*Set, error) {
	resp, err := f.response(ctx, doi)
	if err != nil || resp == nil {
		return nil, err
	}
	set := resp.Set()
	return &set, nil
}

// Lookup fetches and decodes the permissions for doi. Every failure is logged and
// reported as absent.
func (f *Fetcher) Lookup(ctx context.Context, doi string) (*Response, bool) {
	resp, err := f.response(ctx, doi)
	if err != nil {
		f.logger.Warn("Permission-Abfrage fehlgeschlagen", zap.String("doi", doi), zap.Error(err))
		return nil, false
	}
	return resp, resp != nil
}

func (f *Fetcher) response(ctx context.Context, doi string) (*Response, error) {
	log := f.logger.With(zap.String("doi", doi))

	body, err := f.http.Get(ctx, f.URL(doi))
	if err != nil {
		if httpclient.IsNotFound(err) {
			log.Debug("Provider kennt die DOI nicht")
			return nil, nil
		}
		return nil, fmt.Errorf("%s permissions for %s: %w", f.name, doi, err)
	}

	var resp Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		log.Warn("Permission-Antwort ist kein gültiges JSON", zap.Error(err))
		return nil, nil
	}
	return &resp, nil
}
