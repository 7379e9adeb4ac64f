package models

import (
	"database/sql/driver"
	"fmt"
)

// OAStatus ist der Open-Access-Status einer Publikation (Unpaywall-Vokabular).
type OAStatus string

const (
	OAStatusUnknown OAStatus = "unknown"
	OAStatusGold    OAStatus = "gold"
	OAStatusHybrid  OAStatus = "hybrid"
	OAStatusGreen   OAStatus = "green"
	OAStatusBronze  OAStatus = "bronze"
	OAStatusClosed  OAStatus = "closed"
)

// OpenlyAvailable is true for statuses that count as already open without a deposit.
func (s OAStatus) OpenlyAvailable() bool {
	return s == OAStatusGold || s == OAStatusHybrid
}

// FileVersion is a manuscript version as reported by the permission APIs.
type FileVersion string

const (
	FileVersionUnknown   FileVersion = ""
	FileVersionAccepted  FileVersion = "acceptedVersion"
	FileVersionPublished FileVersion = "publishedVersion"
)

// Valid is true for the two versions a permission lookup can be filtered by.
func (v FileVersion) Valid() bool {
	return v == FileVersionAccepted || v == FileVersionPublished
}

// PreferredVersion is the result of the permission check for a publication.
type PreferredVersion string

const (
	PreferredVersionUnset               PreferredVersion = ""
	PreferredVersionAccepted            PreferredVersion = "acceptedVersion"
	PreferredVersionPublished           PreferredVersion = "publishedVersion"
	PreferredVersionPublishedOrAccepted PreferredVersion = "Published or Accepted"
	PreferredVersionNone                PreferredVersion = "None"
)

// PostprintStatus ist der Activity-Insight-Postprint-Status. Leer wird als NULL gespeichert.
type PostprintStatus string

const (
	PostprintStatusNone                   PostprintStatus = ""
	PostprintStatusInProgress             PostprintStatus = "In Progress"
	PostprintStatusAlreadyOpenlyAvailable PostprintStatus = "Already Openly Available"
)

// Value implementiert driver.Valuer.
func (s PostprintStatus) Value() (driver.Value, error) {
	if s == PostprintStatusNone {
		return nil, nil
	}
	return string(s), nil
}

// Scan implementiert sql.Scanner.
func (s *PostprintStatus) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*s = PostprintStatusNone
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into PostprintStatus", value)
	}
	switch status := PostprintStatus(raw); status {
	case PostprintStatusInProgress, PostprintStatusAlreadyOpenlyAvailable:
		*s = status
		return nil
	}
	return fmt.Errorf("unknown postprint status %q", raw)
}

// LocationSource identifiziert die Herkunft einer Open-Access-Location.
type LocationSource string

const (
	LocationSourceUnpaywall        LocationSource = "unpaywall"
	LocationSourceOpenAccessButton LocationSource = "open_access_button"
	LocationSourceScholarSphere    LocationSource = "scholarsphere"
	LocationSourceUser             LocationSource = "user"
	LocationSourceDickinsonIDEAS   LocationSource = "dickinson_ideas"
	LocationSourcePSULawElibrary   LocationSource = "psu_law_elibrary"
)
