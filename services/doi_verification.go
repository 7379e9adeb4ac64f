package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"oa-workflow/config"
	"oa-workflow/mappers"
	"oa-workflow/metrics"
	"oa-workflow/models"
	"oa-workflow/providers/unpaywall"
)

// UnpaywallClient is satisfied by *unpaywall.Fetcher.
type UnpaywallClient interface {
	Fetch(ctx context.Context, doi string) (*unpaywall.Response, error)
	Search(ctx context.Context, title string) ([]unpaywall.Response, error)
}

// DOIVerificationStore ist der Teil des Stores, den die DOI-Prüfung braucht.
type DOIVerificationStore interface {
	GetPublication(ctx context.Context, id uint) (*models.Publication, error)
	RecordDOIVerification(ctx context.Context, id uint, doi string, verified bool) error
	RecordDOILookupMiss(ctx context.Context, id uint, at time.Time) error
	TransitionWorkflowState(ctx context.Context, id uint, from, to models.WorkflowState) (bool, error)
}

// TitleSimilarity is the normalized Levenshtein similarity of two titles after
// MatchableTitle. Two empty titles are not considered similar.
func TitleSimilarity(a, b string) float64 {
	a, b = mappers.MatchableTitle(a), mappers.MatchableTitle(b)
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// DOIVerifier prüft, ob die DOI einer Publikation zu ihrem Titel passt.
type DOIVerifier struct {
	Store     DOIVerificationStore
	Unpaywall UnpaywallClient
	Threshold float64
	Now       func() time.Time
	Logger    *zap.Logger
}

// NewDOIVerifier erstellt einen neuen DOIVerifier.
func NewDOIVerifier(cfg *config.Config, store DOIVerificationStore, unpaywall UnpaywallClient, logger *zap.Logger) *DOIVerifier {
	return &DOIVerifier{
		Store:     store,
		Unpaywall: unpaywall,
		Threshold: cfg.DOISimilarityThreshold,
		Now:       time.Now,
		Logger:    logger,
	}
}

// Matches reports whether two titles are similar enough.
func (v *DOIVerifier) Matches(a, b string) bool {
	return TitleSimilarity(a, b) > v.Threshold
}

// Verify sets doi_verified for the publication. If Unpaywall cannot be queried nothing is
// compared, doi_verified stays as it was and the pending claim is released. A DOI Unpaywall
// does not know is recorded as a lookup miss so the orchestrator backs off.
func (v *DOIVerifier) Verify(ctx context.Context, publicationID uint) error {
	pub, err := v.Store.GetPublication(ctx, publicationID)
	if err != nil {
		return fmt.Errorf("load publication %d: %w", publicationID, err)
	}
	log := v.Logger.With(zap.Uint("publication_id", pub.ID), zap.String("doi", pub.DOI))

	if strings.TrimSpace(pub.DOI) == "" {
		return v.findDOI(ctx, pub, log)
	}

	resp, err := v.Unpaywall.Fetch(ctx, pub.DOI)
	if errors.Is(err, unpaywall.ErrNotFound) {
		log.Info("DOI ist Unpaywall unbekannt, keine Prüfung möglich")
		if err := v.Store.RecordDOILookupMiss(ctx, pub.ID, v.now()); err != nil {
			return fmt.Errorf("record doi lookup miss for publication %d: %w", pub.ID, err)
		}
		return nil
	}
	if err != nil {
		v.releaseClaim(ctx, pub.ID, log)
		return fmt.Errorf("verify doi of publication %d: %w", pub.ID, err)
	}

	similarity := TitleSimilarity(pub.SearchTitle(), resp.Title)
	verified := similarity > v.Threshold
	log.Info("DOI geprüft", zap.Float64("similarity", similarity), zap.Bool("verified", verified))
	return v.record(ctx, pub.ID, "", verified)
}

// Ohne DOI wird per Titel gesucht; der erste passende Treffer liefert die DOI.
func (v *DOIVerifier) findDOI(ctx context.Context, pub *models.Publication, log *zap.Logger) error {
	results, err := v.Unpaywall.Search(ctx, pub.SearchTitle())
	if err != nil {
		v.releaseClaim(ctx, pub.ID, log)
		return fmt.Errorf("search doi for publication %d: %w", pub.ID, err)
	}

	for _, r := range results {
		if r.DOI != "" && v.Matches(pub.SearchTitle(), r.Title) {
			log.Info("DOI per Titelsuche gefunden", zap.String("found_doi", r.DOI))
			return v.record(ctx, pub.ID, r.DOI, true)
		}
	}
	log.Info("Keine passende DOI gefunden", zap.Int("results", len(results)))
	return v.record(ctx, pub.ID, "", false)
}

func (v *DOIVerifier) record(ctx context.Context, id uint, doi string, verified bool) error {
	if err := v.Store.RecordDOIVerification(ctx, id, doi, verified); err != nil {
		return fmt.Errorf("record doi verification for publication %d: %w", id, err)
	}
	metrics.DOIVerificationsTotal.WithLabelValues(strconv.FormatBool(verified)).Inc()
	return nil
}

func (v *DOIVerifier) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

func (v *DOIVerifier) releaseClaim(ctx context.Context, id uint, log *zap.Logger) {
	if _, err := v.Store.TransitionWorkflowState(ctx, id, models.WorkflowStateDOIVerificationPending, models.WorkflowStateNone); err != nil {
		log.Error("Workflow-Claim konnte nicht freigegeben werden", zap.Error(err))
	}
}
