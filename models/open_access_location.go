package models

import "time"

// OpenAccessLocation ist eine frei zugängliche Kopie einer Publikation.
// (publication_id, source, url) ist eindeutig; geschrieben wird nur per Find-or-Create.
type OpenAccessLocation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PublicationID uint           `json:"publication_id" gorm:"not null;index:idx_oa_locations_unique,unique"`
	Source        LocationSource `json:"source" gorm:"not null;size:64;index:idx_oa_locations_unique,unique"`
	URL           string         `json:"url" gorm:"column:url;not null;size:2048;index:idx_oa_locations_unique,unique"`

	LandingPageURL string `json:"landing_page_url,omitempty"`
	PDFURL         string `json:"pdf_url,omitempty" gorm:"column:pdf_url"`
	HostType       string `json:"host_type,omitempty"`
	Version        string `json:"version,omitempty"`
	License        string `json:"license,omitempty"`
}

// TableName gibt explizit den Tabellennamen an.
func (OpenAccessLocation) TableName() string {
	return "open_access_locations"
}
