package models

import (
	"strings"
	"time"
)

// ScholarsphereHost wird in Location-URLs gesucht, um ScholarSphere-Deposits zu erkennen.
const ScholarsphereHost = "scholarsphere.psu.edu"

// Publication repräsentiert eine Fakultätspublikation und ihren Open-Access-Zustand.
type Publication struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title           string     `json:"title" gorm:"type:text;not null"`
	SecondaryTitle  string     `json:"secondary_title,omitempty" gorm:"type:text"`
	DOI             string     `json:"doi,omitempty" gorm:"column:doi;index"`
	JournalTitle    string     `json:"journal_title,omitempty"`
	Publisher       string     `json:"publisher,omitempty"`
	PublicationType string     `json:"publication_type" gorm:"index"`
	Status          string     `json:"status" gorm:"index"`
	PublishedOn     *time.Time `json:"published_on,omitempty"`

	// Open-Access-Workflow
	OpenAccessStatus      OAStatus      `json:"open_access_status,omitempty" gorm:"index"`
	OAWorkflowState       WorkflowState `json:"oa_workflow_state,omitempty" gorm:"column:oa_workflow_state;index"`
	OAStatusLastCheckedAt *time.Time    `json:"oa_status_last_checked_at,omitempty" gorm:"column:oa_status_last_checked_at"`
	DOIVerified           *bool         `json:"doi_verified,omitempty" gorm:"column:doi_verified"`
	DOILookupMissedAt     *time.Time    `json:"doi_lookup_missed_at,omitempty" gorm:"column:doi_lookup_missed_at"`

	// Ergebnis der Permission-Prüfung
	PreferredVersion         PreferredVersion `json:"preferred_version,omitempty"`
	Licence                  string           `json:"licence,omitempty"`
	EmbargoDate              *time.Time       `json:"embargo_date,omitempty" gorm:"type:date"`
	SetStatement             string           `json:"set_statement,omitempty" gorm:"type:text"`
	PermissionsLastCheckedAt *time.Time       `json:"permissions_last_checked_at,omitempty"`

	ActivityInsightPostprintStatus PostprintStatus `json:"activity_insight_postprint_status,omitempty" gorm:"index"`

	// Legacy-Spalten, werden vom Location-Backfill übernommen
	OpenAccessURL              string `json:"open_access_url,omitempty" gorm:"column:open_access_url"`
	UserSubmittedOpenAccessURL string `json:"user_submitted_open_access_url,omitempty" gorm:"column:user_submitted_open_access_url"`
	ScholarsphereOpenAccessURL string `json:"scholarsphere_open_access_url,omitempty" gorm:"column:scholarsphere_open_access_url"`

	OpenAccessLocations    []OpenAccessLocation    `json:"open_access_locations,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	ActivityInsightOAFiles []ActivityInsightOAFile `json:"activity_insight_oa_files,omitempty" gorm:"constraint:OnDelete:CASCADE"`
}

// TableName gibt explizit den Tabellennamen an.
func (Publication) TableName() string {
	return "publications"
}

// SearchTitle is the title plus secondary title, the string compared during DOI verification.
func (p *Publication) SearchTitle() string {
	return p.Title + p.SecondaryTitle
}

// HasScholarsphereLocation reports whether any location points at ScholarSphere.
func (p *Publication) HasScholarsphereLocation() bool {
	for _, loc := range p.OpenAccessLocations {
		if strings.Contains(loc.URL, ScholarsphereHost) {
			return true
		}
	}
	return false
}

// AlreadyOpenlyAvailable combines the location check with the OA status.
func (p *Publication) AlreadyOpenlyAvailable() bool {
	return p.HasScholarsphereLocation() || p.OpenAccessStatus.OpenlyAvailable()
}
