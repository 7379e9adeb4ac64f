package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"oa-workflow/jobs"
	"oa-workflow/metrics"
	"oa-workflow/models"
)

// PostprintStore ist der Teil des Stores, den der Synchronizer braucht.
type PostprintStore interface {
	PublicationsByPostprintStatus(ctx context.Context, status models.PostprintStatus) ([]models.Publication, error)
	SetPostprintStatus(ctx context.Context, id uint, status models.PostprintStatus) error
}

// SyncSummary zählt die Änderungen eines Synchronisationslaufs.
type SyncSummary struct {
	MarkedOpenlyAvailable int `json:"marked_openly_available"`
	MarkedInProgress      int `json:"marked_in_progress"`
	Cleared               int `json:"cleared"`
	ExportsEnqueued       int `json:"exports_enqueued"`
	DownloadsEnqueued     int `json:"downloads_enqueued"`
}

// PostprintSync gleicht den Activity-Insight-Postprint-Status mit dem OA-Zustand ab.
type PostprintSync struct {
	Store  PostprintStore
	Jobs   jobs.Enqueuer
	Policy EligibilityPolicy
	Logger *zap.Logger
}

// NewPostprintSync erstellt einen neuen Synchronizer.
func NewPostprintSync(store PostprintStore, queue jobs.Enqueuer, policy EligibilityPolicy, logger *zap.Logger) *PostprintSync {
	return &PostprintSync{Store: store, Jobs: queue, Policy: policy, Logger: logger}
}

// Run makes the three passes in order. A publication changed by the first two passes is
// never cleared by the third one in the same run.
func (s *PostprintSync) Run(ctx context.Context) (SyncSummary, error) {
	var (
		summary SyncSummary
		errs    []error
		touched = make(map[uint]struct{})
	)

	// 1: In Progress, inzwischen frei verfügbar
	inProgress, err := s.Store.PublicationsByPostprintStatus(ctx, models.PostprintStatusInProgress)
	if err != nil {
		return summary, fmt.Errorf("select in-progress publications: %w", err)
	}
	for i := range inProgress {
		pub := &inProgress[i]
		if !pub.AlreadyOpenlyAvailable() {
			continue
		}
		changed, err := s.markOpenlyAvailable(ctx, pub, &summary)
		if changed {
			touched[pub.ID] = struct{}{}
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	// 2: noch ohne Status, mit mindestens einer Datei
	unset, err := s.Store.PublicationsByPostprintStatus(ctx, models.PostprintStatusNone)
	if err != nil {
		errs = append(errs, fmt.Errorf("select publications without postprint status: %w", err))
		return summary, errors.Join(errs...)
	}
	for i := range unset {
		pub := &unset[i]
		if len(pub.ActivityInsightOAFiles) == 0 {
			continue
		}
		var (
			changed bool
			err     error
		)
		switch {
		case pub.AlreadyOpenlyAvailable():
			changed, err = s.markOpenlyAvailable(ctx, pub, &summary)
		case s.Policy.IsOAPublication(pub):
			changed, err = s.markInProgress(ctx, pub, &summary)
		}
		if changed {
			touched[pub.ID] = struct{}{}
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	// 3: In Progress ohne abgelegte Datei zurücksetzen
	inProgress, err = s.Store.PublicationsByPostprintStatus(ctx, models.PostprintStatusInProgress)
	if err != nil {
		errs = append(errs, fmt.Errorf("reselect in-progress publications: %w", err))
		return summary, errors.Join(errs...)
	}
	for i := range inProgress {
		pub := &inProgress[i]
		if _, ok := touched[pub.ID]; ok || anyDeposited(pub.ActivityInsightOAFiles) {
			continue
		}
		if err := s.Store.SetPostprintStatus(ctx, pub.ID, models.PostprintStatusNone); err != nil {
			errs = append(errs, fmt.Errorf("publication %d: clear postprint status: %w", pub.ID, err))
			continue
		}
		metrics.PostprintStatusChangesTotal.WithLabelValues("cleared").Inc()
		summary.Cleared++
	}

	s.Logger.Info("Postprint-Synchronisation beendet",
		zap.Int("openly_available", summary.MarkedOpenlyAvailable),
		zap.Int("in_progress", summary.MarkedInProgress),
		zap.Int("cleared", summary.Cleared),
		zap.Int("exports", summary.ExportsEnqueued),
		zap.Int("downloads", summary.DownloadsEnqueued))
	return summary, errors.Join(errs...)
}

func anyDeposited(files []models.ActivityInsightOAFile) bool {
	for i := range files {
		if files[i].Deposited() {
			return true
		}
	}
	return false
}

func (s *PostprintSync) setStatus(ctx context.Context, pub *models.Publication, status models.PostprintStatus) error {
	if err := s.Store.SetPostprintStatus(ctx, pub.ID, status); err != nil {
		return fmt.Errorf("publication %d: set postprint status %q: %w", pub.ID, status, err)
	}
	pub.ActivityInsightPostprintStatus = status
	metrics.PostprintStatusChangesTotal.WithLabelValues(string(status)).Inc()
	return nil
}

func (s *PostprintSync) exportAll(ctx context.Context, pub *models.Publication, status models.PostprintStatus, summary *SyncSummary) error {
	var errs []error
	for _, f := range pub.ActivityInsightOAFiles {
		if err := s.Jobs.Enqueue(ctx, jobs.PostprintStatusExport(f.ID, status)); err != nil {
			errs = append(errs, fmt.Errorf("file %d: enqueue export: %w", f.ID, err))
			continue
		}
		summary.ExportsEnqueued++
	}
	return errors.Join(errs...)
}

func (s *PostprintSync) markOpenlyAvailable(ctx context.Context, pub *models.Publication, summary *SyncSummary) (bool, error) {
	if err := s.setStatus(ctx, pub, models.PostprintStatusAlreadyOpenlyAvailable); err != nil {
		return false, err
	}
	summary.MarkedOpenlyAvailable++
	return true, s.exportAll(ctx, pub, models.PostprintStatusAlreadyOpenlyAvailable, summary)
}

func (s *PostprintSync) markInProgress(ctx context.Context, pub *models.Publication, summary *SyncSummary) (bool, error) {
	if err := s.setStatus(ctx, pub, models.PostprintStatusInProgress); err != nil {
		return false, err
	}
	summary.MarkedInProgress++

	errs := []error{s.exportAll(ctx, pub, models.PostprintStatusInProgress, summary)}
	for _, f := range pub.ActivityInsightOAFiles {
		if f.Deposited() {
			continue
		}
		if err := s.Jobs.Enqueue(ctx, jobs.FileDownload(f.ID)); err != nil {
			errs = append(errs, fmt.Errorf("file %d: enqueue download: %w", f.ID, err))
			continue
		}
		summary.DownloadsEnqueued++
	}
	return true, errors.Join(errs...)
}
