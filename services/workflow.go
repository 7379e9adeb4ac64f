package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"oa-workflow/jobs"
	"oa-workflow/metrics"
	"oa-workflow/models"
)

// WorkflowStore ist der Teil des Stores, den der Orchestrator braucht.
type WorkflowStore interface {
	PublicationsNeedingDOIVerification(ctx context.Context, missedBefore time.Time) ([]models.Publication, error)
	PublicationsNeedingMetadataSearch(ctx context.Context) ([]models.Publication, error)
	TransitionWorkflowState(ctx context.Context, id uint, from, to models.WorkflowState) (bool, error)
	RecordDOIVerification(ctx context.Context, id uint, doi string, verified bool) error
}

// MetadataSearcher is satisfied by *OAMetadataSearch.
type MetadataSearcher interface {
	Search(ctx context.Context, publicationID uint) error
}

// RunLocker is satisfied by *storage.RedisLock.
type RunLocker interface {
	Acquire(ctx context.Context, name string) (func(context.Context) error, error)
}

// RunSummary zählt, was ein Durchlauf getan hat.
type RunSummary struct {
	DOIVerificationsEnqueued int `json:"doi_verifications_enqueued"`
	MetadataSearches         int `json:"metadata_searches"`
	AlreadyClaimed           int `json:"already_claimed"`
	Failed                   int `json:"failed"`
}

// OAWorkflow treibt Publikationen durch die Workflow-Zustände.
type OAWorkflow struct {
	Store         WorkflowStore
	Jobs          jobs.Enqueuer
	Search        MetadataSearcher
	Policy        EligibilityPolicy
	// Lock ist optional; ohne Lock können sich parallele Läufe nur über die Claims abstimmen.
	Lock          RunLocker
	// DOIRetryAfter hält Publikationen, deren DOI Unpaywall nicht kannte, so lange zurück.
	DOIRetryAfter time.Duration
	Now           func() time.Time
	Logger        *zap.Logger
}

// NewOAWorkflow erstellt einen neuen Orchestrator.
func NewOAWorkflow(store WorkflowStore, queue jobs.Enqueuer, search MetadataSearcher, policy EligibilityPolicy, lock RunLocker, logger *zap.Logger) *OAWorkflow {
	return &OAWorkflow{
		Store:  store,
		Jobs:   queue,
		Search: search,
		Policy: policy,
		Lock:   lock,
		Now:    time.Now,
		Logger: logger,
	}
}

// Run makes one pass. Failures of single publications are logged and joined into the
// returned error; the pass always visits every candidate.
func (w *OAWorkflow) Run(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	if w.Lock != nil {
		release, err := w.Lock.Acquire(ctx, "oa-workflow")
		if err != nil {
			return summary, fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				w.Logger.Warn("Run-Lock konnte nicht freigegeben werden", zap.Error(err))
			}
		}()
	}

	var errs []error

	pending, err := w.Store.PublicationsNeedingDOIVerification(ctx, w.now().Add(-w.DOIRetryAfter))
	if err != nil {
		return summary, fmt.Errorf("select publications for doi verification: %w", err)
	}
	for i := range pending {
		pub := &pending[i]
		if !w.Policy.IsOAPublication(pub) {
			continue
		}
		claimed, err := w.startDOIVerification(ctx, pub)
		switch {
		case err != nil:
			summary.Failed++
			errs = append(errs, err)
		case claimed:
			summary.DOIVerificationsEnqueued++
		default:
			summary.AlreadyClaimed++
		}
	}

	searchable, err := w.Store.PublicationsNeedingMetadataSearch(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("select publications for metadata search: %w", err))
		return summary, errors.Join(errs...)
	}
	for i := range searchable {
		pub := &searchable[i]
		if !w.Policy.IsOAPublication(pub) {
			continue
		}
		claimed, err := w.runMetadataSearch(ctx, pub)
		switch {
		case err != nil:
			summary.Failed++
			errs = append(errs, err)
		case claimed:
			summary.MetadataSearches++
		default:
			summary.AlreadyClaimed++
		}
	}

	w.Logger.Info("OA-Workflow-Durchlauf beendet",
		zap.Int("doi_verifications_enqueued", summary.DOIVerificationsEnqueued),
		zap.Int("metadata_searches", summary.MetadataSearches),
		zap.Int("already_claimed", summary.AlreadyClaimed),
		zap.Int("failed", summary.Failed))
	return summary, errors.Join(errs...)
}

func (w *OAWorkflow) startDOIVerification(ctx context.Context, pub *models.Publication) (bool, error) {
	log := w.Logger.With(zap.Uint("publication_id", pub.ID))

	claimed, err := w.Store.TransitionWorkflowState(ctx, pub.ID, models.WorkflowStateNone, models.WorkflowStateDOIVerificationPending)
	if err == nil && !claimed {
		return false, nil
	}
	if err == nil {
		metrics.WorkflowTransitionsTotal.WithLabelValues(string(models.WorkflowStateDOIVerificationPending)).Inc()
		err = w.Jobs.Enqueue(ctx, jobs.DOIVerification(pub.ID))
	}
	if err == nil {
		return true, nil
	}

	metrics.WorkflowErrorsTotal.WithLabelValues("doi_verification").Inc()
	log.Error("DOI-Prüfung konnte nicht gestartet werden", zap.Error(err))
	if markErr := w.Store.RecordDOIVerification(ctx, pub.ID, "", false); markErr != nil {
		log.Error("doi_verified konnte nicht gesetzt werden", zap.Error(markErr))
		err = errors.Join(err, markErr)
	}
	return false, fmt.Errorf("publication %d: doi verification: %w", pub.ID, err)
}

func (w *OAWorkflow) runMetadataSearch(ctx context.Context, pub *models.Publication) (bool, error) {
	log := w.Logger.With(zap.Uint("publication_id", pub.ID))

	claimed, err := w.Store.TransitionWorkflowState(ctx, pub.ID, models.WorkflowStateNone, models.WorkflowStateMetadataSearchPending)
	if err != nil {
		metrics.WorkflowErrorsTotal.WithLabelValues("oa_metadata_search").Inc()
		return false, fmt.Errorf("publication %d: claim metadata search: %w", pub.ID, err)
	}
	if !claimed {
		return false, nil
	}
	metrics.WorkflowTransitionsTotal.WithLabelValues(string(models.WorkflowStateMetadataSearchPending)).Inc()

	if err := w.Search.Search(ctx, pub.ID); err != nil {
		metrics.WorkflowErrorsTotal.WithLabelValues("oa_metadata_search").Inc()
		log.Error("OA-Suche fehlgeschlagen", zap.Error(err))
		if _, markErr := w.Store.TransitionWorkflowState(ctx, pub.ID, models.WorkflowStateMetadataSearchPending, models.WorkflowStateMetadataSearchError); markErr != nil {
			log.Error("Fehlerzustand konnte nicht gesetzt werden", zap.Error(markErr))
			err = errors.Join(err, markErr)
		} else {
			metrics.WorkflowTransitionsTotal.WithLabelValues(string(models.WorkflowStateMetadataSearchError)).Inc()
		}
		return false, fmt.Errorf("publication %d: metadata search: %w", pub.ID, err)
	}
	return true, nil
}

func (w *OAWorkflow) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}
