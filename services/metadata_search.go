package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"oa-workflow/mappers"
	"oa-workflow/models"
	"oa-workflow/providers/unpaywall"
)

// MetadataSearchStore ist der Teil des Stores, den die OA-Suche braucht.
type MetadataSearchStore interface {
	GetPublication(ctx context.Context, id uint) (*models.Publication, error)
	FindOrCreateLocation(ctx context.Context, loc *models.OpenAccessLocation) (bool, error)
	RecordOAMetadata(ctx context.Context, id uint, status models.OAStatus, checkedAt time.Time, final models.WorkflowState) error
}

// ScholarsphereLookup is satisfied by *scholarsphere.Lookup.
type ScholarsphereLookup interface {
	WorkURLs(ctx context.Context, doi string) ([]string, error)
}

// OAMetadataSearch sucht Open-Access-Kopien bei Unpaywall und ScholarSphere.
type OAMetadataSearch struct {
	Store         MetadataSearchStore
	Unpaywall     UnpaywallClient
	Scholarsphere ScholarsphereLookup
	Logger        *zap.Logger
	Now           func() time.Time
}

// NewOAMetadataSearch erstellt eine neue OAMetadataSearch.
func NewOAMetadataSearch(store MetadataSearchStore, unpaywall UnpaywallClient, scholarsphere ScholarsphereLookup, logger *zap.Logger) *OAMetadataSearch {
	return &OAMetadataSearch{
		Store:         store,
		Unpaywall:     unpaywall,
		Scholarsphere: scholarsphere,
		Logger:        logger,
		Now:           time.Now,
	}
}

func unpaywallLocation(publicationID uint, loc unpaywall.Location) *models.OpenAccessLocation {
	url := loc.URL
	if url == "" {
		url = loc.URLForPDF
	}
	if url == "" {
		url = loc.URLForLandingPage
	}
	if url == "" {
		return nil
	}
	return &models.OpenAccessLocation{
		PublicationID:  publicationID,
		Source:         models.LocationSourceUnpaywall,
		URL:            url,
		LandingPageURL: loc.URLForLandingPage,
		PDFURL:         loc.URLForPDF,
		HostType:       loc.HostType,
		Version:        loc.Version,
		License:        loc.License,
	}
}

// Search records locations, OA status and the final workflow state of a publication.
// A DOI unknown to Unpaywall is a valid "no data" outcome.
func (s *OAMetadataSearch) Search(ctx context.Context, publicationID uint) error {
	pub, err := s.Store.GetPublication(ctx, publicationID)
	if err != nil {
		return fmt.Errorf("load publication %d: %w", publicationID, err)
	}
	log := s.Logger.With(zap.Uint("publication_id", pub.ID), zap.String("doi", pub.DOI))

	status := pub.OpenAccessStatus
	if status == "" {
		status = models.OAStatusUnknown
	}
	locations := len(pub.OpenAccessLocations)

	if doi := strings.TrimSpace(pub.DOI); doi != "" {
		resp, err := s.Unpaywall.Fetch(ctx, doi)
		switch {
		case errors.Is(err, unpaywall.ErrNotFound):
			log.Info("DOI ist Unpaywall unbekannt")
		case err != nil:
			return fmt.Errorf("unpaywall lookup for publication %d: %w", pub.ID, err)
		default:
			status = mappers.OAStatus(resp.OAStatus)
			for _, l := range resp.OALocations {
				loc := unpaywallLocation(pub.ID, l)
				if loc == nil {
					continue
				}
				created, err := s.Store.FindOrCreateLocation(ctx, loc)
				if err != nil {
					return fmt.Errorf("store unpaywall location: %w", err)
				}
				if created {
					locations++
				}
			}
		}

		created, err := s.scholarsphereLocations(ctx, pub.ID, doi)
		if err != nil {
			log.Warn("ScholarSphere-Abfrage fehlgeschlagen", zap.Error(err))
		}
		locations += created
	}

	final := models.WorkflowStateNone
	if locations == 0 && !status.OpenlyAvailable() {
		final = models.WorkflowStateNoOADataFound
	}
	if err := s.Store.RecordOAMetadata(ctx, pub.ID, status, s.Now(), final); err != nil {
		return fmt.Errorf("record oa metadata for publication %d: %w", pub.ID, err)
	}

	log.Info("OA-Suche abgeschlossen",
		zap.String("oa_status", string(status)),
		zap.Int("locations", locations),
		zap.String("state", string(final)))
	return nil
}

func (s *OAMetadataSearch) scholarsphereLocations(ctx context.Context, publicationID uint, doi string) (int, error) {
	if s.Scholarsphere == nil {
		return 0, nil
	}
	urls, err := s.Scholarsphere.WorkURLs(ctx, doi)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, u := range urls {
		ok, err := s.Store.FindOrCreateLocation(ctx, &models.OpenAccessLocation{
			PublicationID: publicationID,
			Source:        models.LocationSourceScholarSphere,
			URL:           u,
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}
