package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"oa-workflow/models"
	"oa-workflow/providers/httpclient"
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrUnreachableURL is returned when a HEAD request does not answer with 2xx or 3xx.
	ErrUnreachableURL = errors.New("url is not reachable")
)

// LocationStore ist der Teil des Stores, den der LocationService braucht.
type LocationStore interface {
	GetPublication(ctx context.Context, id uint) (*models.Publication, error)
	PublicationsWithLegacyURLs(ctx context.Context) ([]models.Publication, error)
	FindOrCreateLocation(ctx context.Context, loc *models.OpenAccessLocation) (bool, error)
	DeleteLocations(ctx context.Context, source models.LocationSource, url string) (int64, error)
}

// URLChecker is satisfied by *httpclient.Client.
type URLChecker interface {
	Head(ctx context.Context, rawURL string, opts ...httpclient.RequestOption) (int, error)
}

// BackfillSummary zählt die Ergebnisse eines Backfills.
type BackfillSummary struct {
	Publications int `json:"publications"`
	Created      int `json:"created"`
	Existing     int `json:"existing"`
}

// LocationService verwaltet die Open-Access-Locations.
type LocationService struct {
	Store  LocationStore
	HTTP   URLChecker
	Logger *zap.Logger
}

// NewLocationService erstellt einen neuen LocationService.
func NewLocationService(store LocationStore, http URLChecker, logger *zap.Logger) *LocationService {
	return &LocationService{Store: store, HTTP: http, Logger: logger}
}

func legacyLocations(pub *models.Publication) []*models.OpenAccessLocation {
	var locs []*models.OpenAccessLocation
	add := func(source models.LocationSource, raw string) {
		if u := strings.TrimSpace(raw); u != "" {
			locs = append(locs, &models.OpenAccessLocation{PublicationID: pub.ID, Source: source, URL: u})
		}
	}
	add(models.LocationSourceUnpaywall, pub.OpenAccessURL)
	add(models.LocationSourceUser, pub.UserSubmittedOpenAccessURL)
	add(models.LocationSourceScholarSphere, pub.ScholarsphereOpenAccessURL)
	return locs
}

// Backfill copies the legacy URL columns into locations. Running it twice creates nothing new.
func (s *LocationService) Backfill(ctx context.Context) (BackfillSummary, error) {
	var summary BackfillSummary

	pubs, err := s.Store.PublicationsWithLegacyURLs(ctx)
	if err != nil {
		return summary, fmt.Errorf("select publications with legacy urls: %w", err)
	}

	var errs []error
	for i := range pubs {
		summary.Publications++
		for _, loc := range legacyLocations(&pubs[i]) {
			created, err := s.Store.FindOrCreateLocation(ctx, loc)
			if err != nil {
				errs = append(errs, fmt.Errorf("publication %d: %w", pubs[i].ID, err))
				continue
			}
			if created {
				summary.Created++
			} else {
				summary.Existing++
			}
		}
	}

	s.Logger.Info("Location-Backfill beendet",
		zap.Int("publications", summary.Publications),
		zap.Int("created", summary.Created),
		zap.Int("existing", summary.Existing))
	return summary, errors.Join(errs...)
}

// AddUserLocation validates rawURL with a HEAD request and stores it as a user location.
func (s *LocationService) AddUserLocation(ctx context.Context, publicationID uint, rawURL string) (*models.OpenAccessLocation, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if _, err := s.Store.GetPublication(ctx, publicationID); err != nil {
		return nil, err
	}

	status, err := s.HTTP.Head(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachableURL, err)
	}
	if status < 200 || status >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachableURL, status)
	}

	loc := &models.OpenAccessLocation{
		PublicationID: publicationID,
		Source:        models.LocationSourceUser,
		URL:           rawURL,
	}
	if _, err := s.Store.FindOrCreateLocation(ctx, loc); err != nil {
		return nil, fmt.Errorf("store user location: %w", err)
	}
	return loc, nil
}

// RemoveScholarsphereLocations deletes ScholarSphere locations pointing at rawURL.
func (s *LocationService) RemoveScholarsphereLocations(ctx context.Context, rawURL string) (int64, error) {
	n, err := s.Store.DeleteLocations(ctx, models.LocationSourceScholarSphere, rawURL)
	if err != nil {
		return 0, fmt.Errorf("delete scholarsphere locations: %w", err)
	}
	s.Logger.Info("ScholarSphere-Locations entfernt", zap.String("url", rawURL), zap.Int64("deleted", n))
	return n, nil
}
