package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"oa-workflow/mappers"
	"oa-workflow/models"
	"oa-workflow/providers/permissions"
)

const embargoLayout = "2006-01-02"

// PreferredVersion applies the deposit precedence: both versions, then published, then accepted.
func PreferredVersion(accepted, published permissions.Record) models.PreferredVersion {
	switch {
	case accepted.CanDeposit && published.CanDeposit:
		return models.PreferredVersionPublishedOrAccepted
	case published.CanDeposit:
		return models.PreferredVersionPublished
	case accepted.CanDeposit:
		return models.PreferredVersionAccepted
	default:
		return models.PreferredVersionNone
	}
}

// ParseEmbargo liest ein ISO-Datum; leer oder ungültig ergibt nil.
func ParseEmbargo(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if len(raw) > len(embargoLayout) {
		raw = raw[:len(embargoLayout)]
	}
	t, err := time.Parse(embargoLayout, raw)
	if err != nil {
		return nil
	}
	return &t
}

// PermissionsResult is the reconciled outcome for one DOI.
type PermissionsResult struct {
	// Source is the provider that supplied the data, empty when none had any.
	Source         string              `json:"source,omitempty"`
	Accepted       permissions.Record  `json:"accepted"`
	AcceptedFound  bool                `json:"accepted_found"`
	Published      permissions.Record  `json:"published"`
	PublishedFound bool                `json:"published_found"`
	Best           *permissions.Record `json:"best,omitempty"`

	PreferredVersion models.PreferredVersion `json:"preferred_version"`
	Licence          string                  `json:"licence,omitempty"`
	EmbargoDate      *time.Time              `json:"embargo_date,omitempty"`
	SetStatement     string                  `json:"set_statement,omitempty"`
}

// Found reports whether any provider had data for either version.
func (r *PermissionsResult) Found() bool {
	return r.AcceptedFound || r.PublishedFound
}

// RecordFor returns the record for a manuscript version.
func (r *PermissionsResult) RecordFor(version models.FileVersion) (permissions.Record, bool) {
	switch version {
	case models.FileVersionAccepted:
		return r.Accepted, r.AcceptedFound
	case models.FileVersionPublished:
		return r.Published, r.PublishedFound
	}
	return permissions.Record{}, false
}

func (r *PermissionsResult) preferredRecord() (permissions.Record, bool) {
	switch r.PreferredVersion {
	case models.PreferredVersionPublished, models.PreferredVersionPublishedOrAccepted:
		return r.Published, true
	case models.PreferredVersionAccepted:
		return r.Accepted, true
	}
	return permissions.Record{}, false
}

// PermissionsStore ist der Teil des Stores, den die Permission-Prüfung braucht.
type PermissionsStore interface {
	GetFile(ctx context.Context, id uint) (*models.ActivityInsightOAFile, error)
	SavePublicationPermissions(ctx context.Context, pub *models.Publication) error
	SaveFilePermissions(ctx context.Context, file *models.ActivityInsightOAFile) error
}

// PermissionsChecker fragt die Permission-Quellen in Prioritätsreihenfolge ab.
type PermissionsChecker struct {
	Store   PermissionsStore
	Sources []permissions.Source
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewPermissionsChecker erstellt einen neuen PermissionsChecker.
func NewPermissionsChecker(store PermissionsStore, sources []permissions.Source, logger *zap.Logger) *PermissionsChecker {
	return &PermissionsChecker{Store: store, Sources: sources, Logger: logger, Now: time.Now}
}

// ErrPermissionsUnavailable is returned when no source had data and at least one source
// could not be asked. Nothing is persisted in that case.
var ErrPermissionsUnavailable = errors.New("permission sources unavailable")

// Reconcile uses the first source that has data for either version. A source that fails
// is skipped; when no later source has data either, the check fails with
// ErrPermissionsUnavailable. When every source answered without data the result has
// PreferredVersion None and no secondary fields.
func (c *PermissionsChecker) Reconcile(ctx context.Context, doi string) (PermissionsResult, error) {
	var (
		result PermissionsResult
		failed []error
	)
	for _, src := range c.Sources {
		set, err := src.Fetch(ctx, doi)
		if err != nil {
			c.Logger.Warn("Permission-Quelle nicht erreichbar", zap.String("source", src.Name()), zap.String("doi", doi), zap.Error(err))
			failed = append(failed, err)
			continue
		}
		if set != nil && set.HasData() {
			result = PermissionsResult{
				Source:         src.Name(),
				Accepted:       set.Accepted,
				AcceptedFound:  set.AcceptedFound,
				Published:      set.Published,
				PublishedFound: set.PublishedFound,
				Best:           set.Best,
			}
			break
		}
		c.Logger.Debug("Keine Permission-Daten bei Quelle", zap.String("source", src.Name()), zap.String("doi", doi))
	}

	if !result.Found() && len(failed) > 0 {
		return PermissionsResult{}, fmt.Errorf("%w: %w", ErrPermissionsUnavailable, errors.Join(failed...))
	}

	result.PreferredVersion = PreferredVersion(result.Accepted, result.Published)
	if rec, ok := result.preferredRecord(); ok {
		result.Licence = mappers.MapLicense(rec.License)
		result.EmbargoDate = ParseEmbargo(rec.EmbargoEnd)
		result.SetStatement = strings.TrimSpace(rec.DepositStatement)
	}
	return result, nil
}

// CheckFile runs the permission check for a file and its publication and persists both.
func (c *PermissionsChecker) CheckFile(ctx context.Context, fileID uint) error {
	file, err := c.Store.GetFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load file %d: %w", fileID, err)
	}
	pub := file.Publication
	if pub == nil {
		return fmt.Errorf("file %d has no publication", fileID)
	}
	log := c.Logger.With(zap.Uint("file_id", file.ID), zap.Uint("publication_id", pub.ID), zap.String("doi", pub.DOI))

	if strings.TrimSpace(pub.DOI) == "" {
		log.Info("Publikation hat keine DOI, Permission-Prüfung übersprungen")
		return nil
	}

	result, err := c.Reconcile(ctx, pub.DOI)
	if err != nil {
		return err
	}

	now := c.Now()
	pub.PreferredVersion = result.PreferredVersion
	pub.Licence = result.Licence
	pub.EmbargoDate = result.EmbargoDate
	pub.SetStatement = result.SetStatement
	pub.PermissionsLastCheckedAt = &now
	if err := c.Store.SavePublicationPermissions(ctx, pub); err != nil {
		return fmt.Errorf("save publication permissions: %w", err)
	}

	rec, found := result.RecordFor(file.Version)
	if !file.Version.Valid() && result.Best != nil {
		rec, found = *result.Best, true
	}
	if found {
		file.License = mappers.MapLicense(rec.License)
		file.EmbargoDate = ParseEmbargo(rec.EmbargoEnd)
		file.SetStatement = strings.TrimSpace(rec.DepositStatement)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode permissions response: %w", err)
	}
	file.PermissionsResponse = datatypes.JSON(raw)
	if err := c.Store.SaveFilePermissions(ctx, file); err != nil {
		return fmt.Errorf("save file permissions: %w", err)
	}

	log.Info("Permission-Prüfung abgeschlossen",
		zap.String("source", result.Source),
		zap.String("preferred_version", string(result.PreferredVersion)))
	return nil
}
