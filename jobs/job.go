// Package jobs transportiert Hintergrundjobs über watermill (gochannel oder Kafka).
package jobs

import (
	"time"

	"github.com/google/uuid"

	"oa-workflow/models"
)

// Kind unterscheidet die Jobarten.
type Kind string

const (
	KindDOIVerification       Kind = "doi_verification"
	KindPermissionsCheck      Kind = "permissions_check"
	KindFileDownload          Kind = "file_download"
	KindPostprintStatusExport Kind = "postprint_status_export"
)

// KindMetadataKey is the watermill metadata key carrying the job kind.
const KindMetadataKey = "job_kind"

// Job is the payload of one queued message. Handlers must tolerate redelivery.
type Job struct {
	ID              string                 `json:"id"`
	Kind            Kind                   `json:"kind"`
	PublicationID   uint                   `json:"publication_id,omitempty"`
	FileID          uint                   `json:"file_id,omitempty"`
	PostprintStatus models.PostprintStatus `json:"postprint_status,omitempty"`
	EnqueuedAt      time.Time              `json:"enqueued_at"`
}

func newJob(kind Kind) Job {
	return Job{ID: uuid.NewString(), Kind: kind, EnqueuedAt: time.Now().UTC()}
}

// DOIVerification verifies the DOI of a publication.
func DOIVerification(publicationID uint) Job {
	j := newJob(KindDOIVerification)
	j.PublicationID = publicationID
	return j
}

// PermissionsCheck reconciles deposit permissions for a file.
func PermissionsCheck(fileID uint) Job {
	j := newJob(KindPermissionsCheck)
	j.FileID = fileID
	return j
}

// FileDownload fetches a file from Activity Insight.
func FileDownload(fileID uint) Job {
	j := newJob(KindFileDownload)
	j.FileID = fileID
	return j
}

// PostprintStatusExport writes status back to Activity Insight for a file.
func PostprintStatusExport(fileID uint, status models.PostprintStatus) Job {
	j := newJob(KindPostprintStatusExport)
	j.FileID = fileID
	j.PostprintStatus = status
	return j
}
