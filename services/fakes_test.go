package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"oa-workflow/jobs"
	"oa-workflow/models"
	"oa-workflow/providers/unpaywall"
)

// fakeStore hält alles im Speicher und verhält sich wie storage.Store.
type fakeStore struct {
	mu        sync.Mutex
	pubs      map[uint]*models.Publication
	files     map[uint]*models.ActivityInsightOAFile
	locations []models.OpenAccessLocation
	exported  map[uint]models.PostprintStatus

	statusErr map[uint]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pubs:      make(map[uint]*models.Publication),
		files:     make(map[uint]*models.ActivityInsightOAFile),
		exported:  make(map[uint]models.PostprintStatus),
		statusErr: make(map[uint]error),
	}
}

func (s *fakeStore) addPublication(p models.Publication) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, loc := range p.OpenAccessLocations {
		loc.PublicationID = p.ID
		loc.ID = uint(len(s.locations) + 1)
		s.locations = append(s.locations, loc)
	}
	for _, f := range p.ActivityInsightOAFiles {
		f := f
		f.PublicationID = p.ID
		s.files[f.ID] = &f
	}
	p.OpenAccessLocations = nil
	p.ActivityInsightOAFiles = nil
	s.pubs[p.ID] = &p
}

func (s *fakeStore) pub(id uint) models.Publication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded(id)
}

func (s *fakeStore) file(id uint) models.ActivityInsightOAFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.files[id]
}

// loaded erwartet, dass mu gehalten wird.
func (s *fakeStore) loaded(id uint) models.Publication {
	p := *s.pubs[id]
	p.OpenAccessLocations = nil
	p.ActivityInsightOAFiles = nil
	for _, loc := range s.locations {
		if loc.PublicationID == id {
			p.OpenAccessLocations = append(p.OpenAccessLocations, loc)
		}
	}
	for _, fid := range s.sortedFileIDs() {
		if f := s.files[fid]; f.PublicationID == id {
			p.ActivityInsightOAFiles = append(p.ActivityInsightOAFiles, *f)
		}
	}
	return p
}

func (s *fakeStore) sortedFileIDs() []uint {
	ids := make([]uint, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *fakeStore) selectPubs(pred func(p *models.Publication) bool) []models.Publication {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.pubs))
	for id := range s.pubs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var out []models.Publication
	for _, id := range ids {
		p := s.loaded(id)
		if pred(&p) {
			out = append(out, p)
		}
	}
	return out
}

func (s *fakeStore) GetPublication(ctx context.Context, id uint) (*models.Publication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pubs[id]; !ok {
		return nil, models.ErrNotFound
	}
	p := s.loaded(id)
	return &p, nil
}

func (s *fakeStore) GetFile(ctx context.Context, id uint) (*models.ActivityInsightOAFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *f
	p := s.loaded(f.PublicationID)
	out.Publication = &p
	return &out, nil
}

func (s *fakeStore) PublicationsNeedingDOIVerification(ctx context.Context, missedBefore time.Time) ([]models.Publication, error) {
	return s.selectPubs(func(p *models.Publication) bool {
		if p.DOILookupMissedAt != nil && !p.DOILookupMissedAt.Before(missedBefore) {
			return false
		}
		return p.DOIVerified == nil && p.OAWorkflowState == models.WorkflowStateNone
	}), nil
}

func (s *fakeStore) PublicationsNeedingMetadataSearch(ctx context.Context) ([]models.Publication, error) {
	return s.selectPubs(func(p *models.Publication) bool {
		return p.DOIVerified != nil && *p.DOIVerified &&
			p.OAWorkflowState == models.WorkflowStateNone && p.OAStatusLastCheckedAt == nil
	}), nil
}

func (s *fakeStore) PublicationsByPostprintStatus(ctx context.Context, status models.PostprintStatus) ([]models.Publication, error) {
	return s.selectPubs(func(p *models.Publication) bool {
		if p.ActivityInsightPostprintStatus != status {
			return false
		}
		return status != models.PostprintStatusNone || len(p.ActivityInsightOAFiles) > 0
	}), nil
}

func (s *fakeStore) PublicationsWithLegacyURLs(ctx context.Context) ([]models.Publication, error) {
	return s.selectPubs(func(p *models.Publication) bool {
		return p.OpenAccessURL != "" || p.UserSubmittedOpenAccessURL != "" || p.ScholarsphereOpenAccessURL != ""
	}), nil
}

func (s *fakeStore) TransitionWorkflowState(ctx context.Context, id uint, from, to models.WorkflowState) (bool, error) {
	if !from.CanTransition(to) {
		return false, models.ErrInvalidTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pubs[id]
	if !ok || p.OAWorkflowState != from {
		return false, nil
	}
	p.OAWorkflowState = to
	return true, nil
}

func (s *fakeStore) RecordDOIVerification(ctx context.Context, id uint, doi string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pubs[id]
	if !ok {
		return models.ErrNotFound
	}
	p.DOIVerified = &verified
	if doi != "" {
		p.DOI = doi
	}
	if p.OAWorkflowState == models.WorkflowStateDOIVerificationPending {
		p.OAWorkflowState = models.WorkflowStateNone
	}
	return nil
}

func (s *fakeStore) RecordDOILookupMiss(ctx context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pubs[id]
	if !ok {
		return models.ErrNotFound
	}
	p.DOILookupMissedAt = &at
	if p.OAWorkflowState == models.WorkflowStateDOIVerificationPending {
		p.OAWorkflowState = models.WorkflowStateNone
	}
	return nil
}

func (s *fakeStore) RecordOAMetadata(ctx context.Context, id uint, status models.OAStatus, checkedAt time.Time, final models.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pubs[id]
	if !ok {
		return models.ErrNotFound
	}
	p.OpenAccessStatus = status
	p.OAStatusLastCheckedAt = &checkedAt
	if p.OAWorkflowState == models.WorkflowStateMetadataSearchPending {
		p.OAWorkflowState = final
	}
	return nil
}

func (s *fakeStore) SavePublicationPermissions(ctx context.Context, pub *models.Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pubs[pub.ID]
	p.PreferredVersion = pub.PreferredVersion
	p.Licence = pub.Licence
	p.EmbargoDate = pub.EmbargoDate
	p.SetStatement = pub.SetStatement
	p.PermissionsLastCheckedAt = pub.PermissionsLastCheckedAt
	return nil
}

func (s *fakeStore) SaveFilePermissions(ctx context.Context, file *models.ActivityInsightOAFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.files[file.ID]
	f.License = file.License
	f.EmbargoDate = file.EmbargoDate
	f.SetStatement = file.SetStatement
	f.PermissionsResponse = file.PermissionsResponse
	return nil
}

func (s *fakeStore) SaveFileDownload(ctx context.Context, file *models.ActivityInsightOAFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.files[file.ID]
	f.FileDownloadLocation = file.FileDownloadLocation
	f.DownloadedAt = file.DownloadedAt
	f.Version = file.Version
	return nil
}

func (s *fakeStore) MarkFileExported(ctx context.Context, fileID uint, status models.PostprintStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[fileID].ExportedOAStatusToActivityInsight = true
	s.files[fileID].ExportedPostprintStatus = status
	s.exported[fileID] = status
	return nil
}

func (s *fakeStore) SetPostprintStatus(ctx context.Context, id uint, status models.PostprintStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.statusErr[id]; err != nil {
		return err
	}
	s.pubs[id].ActivityInsightPostprintStatus = status
	return nil
}

func (s *fakeStore) FindOrCreateLocation(ctx context.Context, loc *models.OpenAccessLocation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.locations {
		if existing.PublicationID == loc.PublicationID && existing.Source == loc.Source && existing.URL == loc.URL {
			*loc = existing
			return false, nil
		}
	}
	loc.ID = uint(len(s.locations) + 1)
	s.locations = append(s.locations, *loc)
	return true, nil
}

func (s *fakeStore) DeleteLocations(ctx context.Context, source models.LocationSource, url string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	kept := s.locations[:0]
	for _, loc := range s.locations {
		if loc.Source == source && loc.URL == url {
			n++
			continue
		}
		kept = append(kept, loc)
	}
	s.locations = kept
	return n, nil
}

func (s *fakeStore) locationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locations)
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) ofKind(kind jobs.Kind) []jobs.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []jobs.Job
	for _, j := range q.jobs {
		if j.Kind == kind {
			out = append(out, j)
		}
	}
	return out
}

type fakeUnpaywall struct {
	byDOI   map[string]*unpaywall.Response
	results []unpaywall.Response
	err     error
	calls   int
}

func (f *fakeUnpaywall) Fetch(ctx context.Context, doi string) (*unpaywall.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	resp, ok := f.byDOI[doi]
	if !ok {
		return nil, unpaywall.ErrNotFound
	}
	return resp, nil
}

func (f *fakeUnpaywall) Search(ctx context.Context, title string) ([]unpaywall.Response, error) {
	f.calls++
	return f.results, f.err
}

type fakeScholarsphere struct {
	urls []string
	err  error
}

func (f *fakeScholarsphere) WorkURLs(ctx context.Context, doi string) ([]string, error) {
	return f.urls, f.err
}

// eligibleAll behandelt jede Publikation als OA-relevant.
type eligibleAll struct{}

func (eligibleAll) IsOAPublication(*models.Publication) bool { return true }

type eligibleIDs map[uint]bool

func (e eligibleIDs) IsOAPublication(p *models.Publication) bool { return e[p.ID] }

var errBoom = errors.New("boom")

func boolPtr(b bool) *bool { return &b }

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}
