package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"oa-workflow/config"
	"oa-workflow/models"
)

// Open verbindet sich mit der PostgreSQL-Datenbank.
func Open(cfg *config.Config) (*gorm.DB, error) {
	return OpenDSN(cfg.DSN())
}

// OpenDSN verbindet sich über einen fertigen DSN oder eine postgres:// URL.
func OpenDSN(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Store ist die gorm-Implementierung aller Persistenz-Interfaces der Services.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore erstellt einen neuen Store.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// AutoMigrate legt Tabellen und den Unique-Index der Locations an.
func (s *Store) AutoMigrate(ctx context.Context) error {
	s.logger.Info("Running database auto-migration...")
	return s.db.WithContext(ctx).AutoMigrate(
		&models.Publication{},
		&models.OpenAccessLocation{},
		&models.ActivityInsightOAFile{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}

func (s *Store) publications(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.Publication{}).
		Preload("OpenAccessLocations").
		Preload("ActivityInsightOAFiles").
		Order("publications.id")
}

// GetPublication lädt eine Publikation samt Locations und Dateien.
func (s *Store) GetPublication(ctx context.Context, id uint) (*models.Publication, error) {
	var pub models.Publication
	if err := s.publications(ctx).First(&pub, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &pub, nil
}

// GetFile lädt eine Datei samt Publikation und deren Locations.
func (s *Store) GetFile(ctx context.Context, id uint) (*models.ActivityInsightOAFile, error) {
	var file models.ActivityInsightOAFile
	err := s.db.WithContext(ctx).
		Preload("Publication").
		Preload("Publication.OpenAccessLocations").
		First(&file, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &file, nil
}

// PublicationsNeedingDOIVerification: noch nie geprüft, kein aktiver Workflow und kein
// Unpaywall-Fehltreffer nach missedBefore.
func (s *Store) PublicationsNeedingDOIVerification(ctx context.Context, missedBefore time.Time) ([]models.Publication, error) {
	var pubs []models.Publication
	err := s.publications(ctx).
		Where("doi_verified IS NULL AND oa_workflow_state IS NULL").
		Where("doi_lookup_missed_at IS NULL OR doi_lookup_missed_at < ?", missedBefore).
		Find(&pubs).Error
	return pubs, err
}

// PublicationsNeedingMetadataSearch: DOI bestätigt, aber noch keine OA-Suche.
func (s *Store) PublicationsNeedingMetadataSearch(ctx context.Context) ([]models.Publication, error) {
	var pubs []models.Publication
	err := s.publications(ctx).
		Where("doi_verified = ? AND oa_workflow_state IS NULL AND oa_status_last_checked_at IS NULL", true).
		Find(&pubs).Error
	return pubs, err
}

// PublicationsByPostprintStatus returns publications with the given postprint status.
// For the empty status only publications with at least one file are returned.
func (s *Store) PublicationsByPostprintStatus(ctx context.Context, status models.PostprintStatus) ([]models.Publication, error) {
	q := s.publications(ctx)
	if status == models.PostprintStatusNone {
		q = q.Where("activity_insight_postprint_status IS NULL").
			Where("EXISTS (SELECT 1 FROM activity_insight_oa_files f WHERE f.publication_id = publications.id)")
	} else {
		q = q.Where("activity_insight_postprint_status = ?", string(status))
	}
	var pubs []models.Publication
	err := q.Find(&pubs).Error
	return pubs, err
}

// PublicationsWithLegacyURLs returns publications that still carry URLs in the old columns.
func (s *Store) PublicationsWithLegacyURLs(ctx context.Context) ([]models.Publication, error) {
	var pubs []models.Publication
	err := s.publications(ctx).
		Where("COALESCE(open_access_url, '') <> '' OR COALESCE(user_submitted_open_access_url, '') <> '' OR COALESCE(scholarsphere_open_access_url, '') <> ''").
		Find(&pubs).Error
	return pubs, err
}

// TransitionWorkflowState is a conditional update: it only writes when the publication is
// still in from. claimed is false when another worker got there first.
func (s *Store) TransitionWorkflowState(ctx context.Context, id uint, from, to models.WorkflowState) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("%w: %q -> %q", models.ErrInvalidTransition, from, to)
	}

	q := s.db.WithContext(ctx).Model(&models.Publication{}).Where("id = ?", id)
	if from == models.WorkflowStateNone {
		q = q.Where("oa_workflow_state IS NULL")
	} else {
		q = q.Where("oa_workflow_state = ?", string(from))
	}

	res := q.Update("oa_workflow_state", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordDOIVerification schreibt das Ergebnis der DOI-Prüfung und gibt einen
// "DOI verification pending"-Claim frei. Ein leerer doi lässt die DOI unverändert.
func (s *Store) RecordDOIVerification(ctx context.Context, id uint, doi string, verified bool) error {
	updates := map[string]any{
		"doi_verified": verified,
		"oa_workflow_state": gorm.Expr("CASE WHEN oa_workflow_state = ? THEN NULL ELSE oa_workflow_state END",
			string(models.WorkflowStateDOIVerificationPending)),
	}
	if doi != "" {
		updates["doi"] = doi
	}
	res := s.db.WithContext(ctx).Model(&models.Publication{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordDOILookupMiss merkt sich, dass Unpaywall die DOI nicht kennt, und gibt einen
// offenen DOI-Claim frei. doi_verified bleibt unverändert.
func (s *Store) RecordDOILookupMiss(ctx context.Context, id uint, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Publication{}).Where("id = ?", id).Updates(map[string]any{
		"doi_lookup_missed_at": at,
		"oa_workflow_state": gorm.Expr("CASE WHEN oa_workflow_state = ? THEN NULL ELSE oa_workflow_state END",
			string(models.WorkflowStateDOIVerificationPending)),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordOAMetadata stores the outcome of a metadata search. The workflow state moves from
// "metadata search pending" to final; any other state is left alone.
func (s *Store) RecordOAMetadata(ctx context.Context, id uint, status models.OAStatus, checkedAt time.Time, final models.WorkflowState) error {
	pending := string(models.WorkflowStateMetadataSearchPending)
	var stateExpr clause.Expr
	if final == models.WorkflowStateNone {
		stateExpr = gorm.Expr("CASE WHEN oa_workflow_state = ? THEN NULL ELSE oa_workflow_state END", pending)
	} else {
		stateExpr = gorm.Expr("CASE WHEN oa_workflow_state = ? THEN ? ELSE oa_workflow_state END", pending, string(final))
	}

	res := s.db.WithContext(ctx).Model(&models.Publication{}).Where("id = ?", id).Updates(map[string]any{
		"open_access_status":        status,
		"oa_status_last_checked_at": checkedAt,
		"oa_workflow_state":         stateExpr,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SavePublicationPermissions schreibt nur die Felder der Permission-Prüfung.
func (s *Store) SavePublicationPermissions(ctx context.Context, pub *models.Publication) error {
	return s.db.WithContext(ctx).Model(pub).
		Select("preferred_version", "licence", "embargo_date", "set_statement", "permissions_last_checked_at").
		Updates(pub).Error
}

// SaveFilePermissions schreibt Lizenz, Embargo, Set-Statement und die Rohantwort einer Datei.
func (s *Store) SaveFilePermissions(ctx context.Context, file *models.ActivityInsightOAFile) error {
	return s.db.WithContext(ctx).Model(file).
		Select("license", "embargo_date", "set_statement", "permissions_response").
		Updates(file).Error
}

// SaveFileDownload records where a file was stored and which version it is.
func (s *Store) SaveFileDownload(ctx context.Context, file *models.ActivityInsightOAFile) error {
	return s.db.WithContext(ctx).Model(file).
		Select("file_download_location", "downloaded_at", "version").
		Updates(file).Error
}

// MarkFileExported setzt die Export-Flags nach erfolgreichem Export.
func (s *Store) MarkFileExported(ctx context.Context, fileID uint, status models.PostprintStatus) error {
	return s.db.WithContext(ctx).Model(&models.ActivityInsightOAFile{}).Where("id = ?", fileID).
		Updates(map[string]any{
			"exported_oa_status_to_activity_insight": true,
			"exported_postprint_status":              status,
		}).Error
}

// SetPostprintStatus überschreibt den Postprint-Status; leer wird NULL.
func (s *Store) SetPostprintStatus(ctx context.Context, id uint, status models.PostprintStatus) error {
	return s.db.WithContext(ctx).Model(&models.Publication{}).Where("id = ?", id).
		Update("activity_insight_postprint_status", status).Error
}

// FindOrCreateLocation schreibt eine Location nur, wenn (publication, source, url) noch fehlt.
// loc is filled with the stored row either way.
func (s *Store) FindOrCreateLocation(ctx context.Context, loc *models.OpenAccessLocation) (bool, error) {
	db := s.db.WithContext(ctx)
	key := db.Where("publication_id = ? AND source = ? AND url = ?", loc.PublicationID, loc.Source, loc.URL)

	var existing models.OpenAccessLocation
	res := key.Session(&gorm.Session{}).Limit(1).Find(&existing)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		*loc = existing
		return false, nil
	}

	res = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "publication_id"}, {Name: "source"}, {Name: "url"}},
		DoNothing: true,
	}).Create(loc)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// paralleler Insert
		return false, key.Session(&gorm.Session{}).First(loc).Error
	}
	return true, nil
}

// DeleteLocations entfernt alle Locations einer Quelle mit exakt dieser URL.
func (s *Store) DeleteLocations(ctx context.Context, source models.LocationSource, url string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("source = ? AND url = ?", source, url).
		Delete(&models.OpenAccessLocation{})
	return res.RowsAffected, res.Error
}
