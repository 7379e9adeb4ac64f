package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"oa-workflow/jobs"
	"oa-workflow/models"
)

type fakeSearcher struct {
	store *fakeStore
	fail  map[uint]error
	calls []uint
}

func (f *fakeSearcher) Search(ctx context.Context, id uint) error {
	f.calls = append(f.calls, id)
	if err := f.fail[id]; err != nil {
		return err
	}
	return f.store.RecordOAMetadata(ctx, id, models.OAStatusGreen, time.Now(), models.WorkflowStateNone)
}

type fakeLock struct {
	err      error
	acquired int
	released int
}

func (l *fakeLock) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

func newWorkflow(store *fakeStore, queue *fakeQueue, search *fakeSearcher, policy EligibilityPolicy) *OAWorkflow {
	return NewOAWorkflow(store, queue, search, policy, nil, zap.NewNop())
}

func TestOAWorkflow_Run(t *testing.T) {
	store := newFakeStore()
	store.addPublication(models.Publication{ID: 1, Title: "needs doi check"})
	store.addPublication(models.Publication{ID: 2, Title: "verified", DOI: "10.1/b", DOIVerified: boolPtr(true)})
	store.addPublication(models.Publication{ID: 3, Title: "rejected doi", DOI: "10.1/c", DOIVerified: boolPtr(false)})
	store.addPublication(models.Publication{ID: 4, Title: "already pending", OAWorkflowState: models.WorkflowStateDOIVerificationPending})
	store.addPublication(models.Publication{ID: 5, Title: "no data", DOIVerified: boolPtr(true), OAWorkflowState: models.WorkflowStateNoOADataFound})
	queue := &fakeQueue{}
	search := &fakeSearcher{store: store}

	summary, err := newWorkflow(store, queue, search, eligibleAll{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DOIVerificationsEnqueued)
	assert.Equal(t, 1, summary.MetadataSearches)
	assert.Equal(t, 0, summary.Failed)

	doiJobs := queue.ofKind(jobs.KindDOIVerification)
	require.Len(t, doiJobs, 1)
	assert.Equal(t, uint(1), doiJobs[0].PublicationID)
	assert.Equal(t, models.WorkflowStateDOIVerificationPending, store.pub(1).OAWorkflowState)

	assert.Equal(t, []uint{2}, search.calls)
	assert.Equal(t, models.WorkflowStateNone, store.pub(2).OAWorkflowState)
	assert.NotNil(t, store.pub(2).OAStatusLastCheckedAt)

	assert.Equal(t, models.WorkflowStateDOIVerificationPending, store.pub(4).OAWorkflowState)
	assert.Equal(t, models.WorkflowStateNoOADataFound, store.pub(5).OAWorkflowState)
}

func TestOAWorkflow_RerunIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.addPublication(models.Publication{ID: 1, Title: "needs doi check"})
	store.addPublication(models.Publication{ID: 2, DOI: "10.1/b", DOIVerified: boolPtr(true)})
	queue := &fakeQueue{}
	search := &fakeSearcher{store: store}
	wf := newWorkflow(store, queue, search, eligibleAll{})

	_, err := wf.Run(context.Background())
	require.NoError(t, err)
	summary, err := wf.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunSummary{}, summary)
	assert.Len(t, queue.ofKind(jobs.KindDOIVerification), 1)
	assert.Len(t, search.calls, 1)
}

func TestOAWorkflow_BacksOffAfterDOILookupMiss(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	recently := now.Add(-time.Hour)
	lastWeek := now.Add(-8 * 24 * time.Hour)
	store := newFakeStore()
	store.addPublication(models.Publication{ID: 1, DOI: "10.1/recent", DOILookupMissedAt: &recently})
	store.addPublication(models.Publication{ID: 2, DOI: "10.1/old", DOILookupMissedAt: &lastWeek})
	store.addPublication(models.Publication{ID: 3, DOI: "10.1/new"})
	queue := &fakeQueue{}
	wf := newWorkflow(store, queue, &fakeSearcher{store: store}, eligibleAll{})
	wf.DOIRetryAfter = 7 * 24 * time.Hour
	wf.Now = func() time.Time { return now }

	summary, err := wf.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.DOIVerificationsEnqueued)
	var ids []uint
	for _, j := range queue.ofKind(jobs.KindDOIVerification) {
		ids = append(ids, j.PublicationID)
	}
	assert.ElementsMatch(t, []uint{2, 3}, ids)
	assert.Equal(t, models.WorkflowStateNone, store.pub(1).OAWorkflowState)
}

func TestOAWorkflow_SkipsIneligiblePublications(t *testing.T) {
	store := newFakeStore()
	store.addPublication(models.Publication{ID: 1})
	store.addPublication(models.Publication{ID: 2})
	queue := &fakeQueue{}

	summary, err := newWorkflow(store, queue, &fakeSearcher{store: store}, eligibleIDs{2: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DOIVerificationsEnqueued)
	assert.Equal(t, models.WorkflowStateNone, store.pub(1).OAWorkflowState)
	assert.Nil(t, store.pub(1).DOIVerified)
}

func TestOAWorkflow_EnqueueFailureMarksDOIUnverified(t *testing.T) {
	store := newFakeStore()
	store.addPublication(models.Publication{ID: 1})
	store.addPublication(models.Publication{ID: 2})
	store.addPublication(models.Publication{ID: 3, DOI: "10.1/c", DOIVerified: boolPtr(true)})
	queue := &fakeQueue{err: errBoom}
	search := &fakeSearcher{store: store}

	summary, err := newWorkflow(store, queue, search, eligibleAll{}).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, summary.Failed)
	for _, id := range []uint{1, 2} {
		pub := store.pub(id)
		require.NotNil(t, pub.DOIVerified)
		assert.False(t, *pub.DOIVerified)
		assert.Equal(t, models.WorkflowStateNone, pub.OAWorkflowState)
	}
	// die Metadatensuche läuft trotzdem
	assert.Equal(t, []uint{3}, search.calls)
}

func TestOAWorkflow_SearchFailureIsIsolated(t *testing.T) {
	store := newFakeStore()
	store.addPublication(models.Publication{ID: 1, DOI: "10.1/a", DOIVerified: boolPtr(true)})
	store.addPublication(models.Publication{ID: 2, DOI: "10.1/b", DOIVerified: boolPtr(true)})
	store.addPublication(models.Publication{ID: 3, DOI: "10.1/c", DOIVerified: boolPtr(true)})
	search := &fakeSearcher{store: store, fail: map[uint]error{2: errBoom}}

	summary, err := newWorkflow(store, &fakeQueue{}, search, eligibleAll{}).Run(context.Background())

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, summary.MetadataSearches)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []uint{1, 2, 3}, search.calls)
	assert.Equal(t, models.WorkflowStateMetadataSearchError, store.pub(2).OAWorkflowState)
	assert.Equal(t, models.WorkflowStateNone, store.pub(3).OAWorkflowState)
}

func TestOAWorkflow_RunLock(t *testing.T) {
	store := newFakeStore()
	store.addPublication(models.Publication{ID: 1})

	t.Run("held lock aborts the run", func(t *testing.T) {
		queue := &fakeQueue{}
		lockErr := errors.New("lock is held by another process")
		wf := NewOAWorkflow(store, queue, &fakeSearcher{store: store}, eligibleAll{}, &fakeLock{err: lockErr}, zap.NewNop())

		_, err := wf.Run(context.Background())
		assert.ErrorIs(t, err, lockErr)
		assert.Empty(t, queue.jobs)
	})

	t.Run("lock is released after the run", func(t *testing.T) {
		lock := &fakeLock{}
		wf := NewOAWorkflow(store, &fakeQueue{}, &fakeSearcher{store: store}, eligibleAll{}, lock, zap.NewNop())

		_, err := wf.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, lock.acquired)
		assert.Equal(t, 1, lock.released)
	})
}
