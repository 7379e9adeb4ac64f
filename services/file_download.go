package services

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"time"

	"go.uber.org/zap"

	"oa-workflow/jobs"
	"oa-workflow/models"
)

// FileStore ist der Teil des Stores, den Download und Export brauchen.
type FileStore interface {
	GetFile(ctx context.Context, id uint) (*models.ActivityInsightOAFile, error)
	SaveFileDownload(ctx context.Context, file *models.ActivityInsightOAFile) error
	MarkFileExported(ctx context.Context, fileID uint, status models.PostprintStatus) error
}

// ActivityInsightClient is satisfied by *activityinsight.Client.
type ActivityInsightClient interface {
	DownloadFile(ctx context.Context, location string) ([]byte, error)
	ExportPostprintStatus(ctx context.Context, file *models.ActivityInsightOAFile, status models.PostprintStatus) error
}

// BlobStore is satisfied by *storage.BlobStore.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// VersionDetector is satisfied by *PDFVersionChecker.
type VersionDetector interface {
	Detect(data []byte) models.FileVersion
}

// FileDownloader holt Manuskripte aus Activity Insight und legt sie in S3 ab.
type FileDownloader struct {
	Store           FileStore
	ActivityInsight ActivityInsightClient
	Blobs           BlobStore
	Versions        VersionDetector
	Jobs            jobs.Enqueuer
	Logger          *zap.Logger
	Now             func() time.Time
}

// NewFileDownloader erstellt einen neuen FileDownloader.
func NewFileDownloader(store FileStore, ai ActivityInsightClient, blobs BlobStore, versions VersionDetector, queue jobs.Enqueuer, logger *zap.Logger) *FileDownloader {
	return &FileDownloader{
		Store:           store,
		ActivityInsight: ai,
		Blobs:           blobs,
		Versions:        versions,
		Jobs:            queue,
		Logger:          logger,
		Now:             time.Now,
	}
}

// BlobKey is the object key of a downloaded file.
func BlobKey(file *models.ActivityInsightOAFile) string {
	return fmt.Sprintf("activity_insight_oa_files/%d/%s", file.ID, path.Base(file.Location))
}

// Download stores the file, detects its version and enqueues the permission check.
// Already downloaded files only get the permission check enqueued again.
func (d *FileDownloader) Download(ctx context.Context, fileID uint) error {
	file, err := d.Store.GetFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load file %d: %w", fileID, err)
	}
	log := d.Logger.With(zap.Uint("file_id", file.ID), zap.Uint("publication_id", file.PublicationID))

	if !file.Deposited() {
		data, err := d.ActivityInsight.DownloadFile(ctx, file.Location)
		if err != nil {
			return fmt.Errorf("file %d: %w", file.ID, err)
		}

		link, err := d.Blobs.Put(ctx, BlobKey(file), http.DetectContentType(data), data)
		if err != nil {
			return fmt.Errorf("file %d: %w", file.ID, err)
		}

		now := d.Now()
		file.FileDownloadLocation = link
		file.DownloadedAt = &now
		if v := d.Versions.Detect(data); v != models.FileVersionUnknown {
			file.Version = v
		}
		if err := d.Store.SaveFileDownload(ctx, file); err != nil {
			return fmt.Errorf("file %d: save download: %w", file.ID, err)
		}
		log.Info("Datei abgelegt", zap.String("location", link), zap.String("version", string(file.Version)))
	}

	if err := d.Jobs.Enqueue(ctx, jobs.PermissionsCheck(file.ID)); err != nil {
		return fmt.Errorf("file %d: enqueue permissions check: %w", file.ID, err)
	}
	return nil
}

// Export writes status to Activity Insight and marks the file as exported.
func (d *FileDownloader) Export(ctx context.Context, fileID uint, status models.PostprintStatus) error {
	file, err := d.Store.GetFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load file %d: %w", fileID, err)
	}
	if err := d.ActivityInsight.ExportPostprintStatus(ctx, file, status); err != nil {
		return err
	}
	if err := d.Store.MarkFileExported(ctx, file.ID, status); err != nil {
		return fmt.Errorf("file %d: mark exported: %w", file.ID, err)
	}
	return nil
}
