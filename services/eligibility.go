package services

import (
	"time"

	"oa-workflow/mappers"
	"oa-workflow/models"
)

// OAPolicyStart is the effective date of the open-access policy.
var OAPolicyStart = time.Date(2020, time.July, 1, 0, 0, 0, 0, time.UTC)

// EligibilityPolicy entscheidet, ob eine Publikation unter die OA-Policy fällt.
type EligibilityPolicy interface {
	IsOAPublication(pub *models.Publication) bool
}

// DefaultEligibility: OA-relevanter Publikationstyp, veröffentlicht, ab Since.
type DefaultEligibility struct {
	Since time.Time
}

// NewDefaultEligibility uses OAPolicyStart.
func NewDefaultEligibility() DefaultEligibility {
	return DefaultEligibility{Since: OAPolicyStart}
}

func (p DefaultEligibility) IsOAPublication(pub *models.Publication) bool {
	if !mappers.IsOAPublicationType(mappers.CanonicalPublicationType(pub.PublicationType)) {
		return false
	}
	if mappers.PublicationStatus(pub.Status) != mappers.StatusPublished {
		return false
	}
	return pub.PublishedOn != nil && !pub.PublishedOn.Before(p.Since)
}
