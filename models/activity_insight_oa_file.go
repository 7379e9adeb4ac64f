package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityInsightOAFile ist eine Manuskriptdatei, die Activity Insight für eine Publikation gemeldet hat.
type ActivityInsightOAFile struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PublicationID uint         `json:"publication_id" gorm:"not null;index"`
	Publication   *Publication `json:"-"`

	// Pfad der Datei in Activity Insight
	Location        string `json:"location" gorm:"not null"`
	UserWebaccessID string `json:"user_webaccess_id"`
	IntellcontID    string `json:"intellcont_id"`
	PostFileID      string `json:"post_file_id"`

	Version             FileVersion    `json:"version,omitempty"`
	License             string         `json:"license,omitempty"`
	EmbargoDate         *time.Time     `json:"embargo_date,omitempty" gorm:"type:date"`
	SetStatement        string         `json:"set_statement,omitempty" gorm:"type:text"`
	PermissionsResponse datatypes.JSON `json:"permissions_response,omitempty" gorm:"type:jsonb"`

	FileDownloadLocation string     `json:"file_download_location,omitempty"`
	DownloadedAt         *time.Time `json:"downloaded_at,omitempty"`

	ExportedOAStatusToActivityInsight bool            `json:"exported_oa_status_to_activity_insight" gorm:"column:exported_oa_status_to_activity_insight;default:false"`
	ExportedPostprintStatus           PostprintStatus `json:"exported_postprint_status,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (ActivityInsightOAFile) TableName() string {
	return "activity_insight_oa_files"
}

// Deposited ist true, sobald die Datei heruntergeladen und abgelegt wurde.
func (f *ActivityInsightOAFile) Deposited() bool {
	return f.FileDownloadLocation != ""
}
