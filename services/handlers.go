package services

import (
	"context"

	"oa-workflow/jobs"
)

// JobHandlers verbindet die Jobarten mit den Services.
type JobHandlers struct {
	DOIVerifier *DOIVerifier
	Permissions *PermissionsChecker
	Files       *FileDownloader
}

// Register installs one handler per job kind on w.
func (h JobHandlers) Register(w *jobs.Worker) {
	w.Handle(jobs.KindDOIVerification, func(ctx context.Context, job jobs.Job) error {
		return h.DOIVerifier.Verify(ctx, job.PublicationID)
	})
	w.Handle(jobs.KindPermissionsCheck, func(ctx context.Context, job jobs.Job) error {
		return h.Permissions.CheckFile(ctx, job.FileID)
	})
	w.Handle(jobs.KindFileDownload, func(ctx context.Context, job jobs.Job) error {
		return h.Files.Download(ctx, job.FileID)
	})
	w.Handle(jobs.KindPostprintStatusExport, func(ctx context.Context, job jobs.Job) error {
		return h.Files.Export(ctx, job.FileID, job.PostprintStatus)
	})
}
