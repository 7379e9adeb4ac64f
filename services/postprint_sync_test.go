package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"oa-workflow/jobs"
	"oa-workflow/models"
)

func scholarsphereLocation() []models.OpenAccessLocation {
	return []models.OpenAccessLocation{{Source: models.LocationSourceScholarSphere, URL: "https://scholarsphere.psu.edu/resources/abc"}}
}

func TestPostprintSync_Run(t *testing.T) {
	store := newFakeStore()
	// 1: In Progress, jetzt in ScholarSphere
	store.addPublication(models.Publication{
		ID:                             1,
		ActivityInsightPostprintStatus: models.PostprintStatusInProgress,
		OpenAccessLocations:            scholarsphereLocation(),
		ActivityInsightOAFiles:         []models.ActivityInsightOAFile{{ID: 11}, {ID: 12}},
	})
	// 2a: ohne Status, gold
	store.addPublication(models.Publication{
		ID:                     2,
		OpenAccessStatus:       models.OAStatusGold,
		ActivityInsightOAFiles: []models.ActivityInsightOAFile{{ID: 21}},
	})
	// 2b: ohne Status, OA-relevant, eine Datei schon abgelegt
	store.addPublication(models.Publication{
		ID:               3,
		OpenAccessStatus: models.OAStatusClosed,
		ActivityInsightOAFiles: []models.ActivityInsightOAFile{
			{ID: 31},
			{ID: 32, FileDownloadLocation: "https://s3.example.org/b/32.pdf"},
		},
	})
	// 2c: ohne Status, nicht OA-relevant
	store.addPublication(models.Publication{
		ID:                     4,
		ActivityInsightOAFiles: []models.ActivityInsightOAFile{{ID: 41}},
	})
	// 3: In Progress, nichts abgelegt
	store.addPublication(models.Publication{
		ID:                             5,
		ActivityInsightPostprintStatus: models.PostprintStatusInProgress,
		ActivityInsightOAFiles:         []models.ActivityInsightOAFile{{ID: 51}},
	})
	// 3: In Progress, Datei abgelegt, bleibt
	store.addPublication(models.Publication{
		ID:                             6,
		ActivityInsightPostprintStatus: models.PostprintStatusInProgress,
		ActivityInsightOAFiles:         []models.ActivityInsightOAFile{{ID: 61, FileDownloadLocation: "https://s3.example.org/b/61.pdf"}},
	})
	queue := &fakeQueue{}
	sync := NewPostprintSync(store, queue, eligibleIDs{3: true, 5: true, 6: true}, zap.NewNop())

	summary, err := sync.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.PostprintStatusAlreadyOpenlyAvailable, store.pub(1).ActivityInsightPostprintStatus)
	assert.Equal(t, models.PostprintStatusAlreadyOpenlyAvailable, store.pub(2).ActivityInsightPostprintStatus)
	assert.Equal(t, models.PostprintStatusInProgress, store.pub(3).ActivityInsightPostprintStatus)
	assert.Equal(t, models.PostprintStatusNone, store.pub(4).ActivityInsightPostprintStatus)
	assert.Equal(t, models.PostprintStatusNone, store.pub(5).ActivityInsightPostprintStatus)
	assert.Equal(t, models.PostprintStatusInProgress, store.pub(6).ActivityInsightPostprintStatus)

	assert.Equal(t, SyncSummary{
		MarkedOpenlyAvailable: 2,
		MarkedInProgress:      1,
		Cleared:               1,
		ExportsEnqueued:       5,
		DownloadsEnqueued:     1,
	}, summary)

	exports := map[uint]models.PostprintStatus{}
	for _, j := range queue.ofKind(jobs.KindPostprintStatusExport) {
		exports[j.FileID] = j.PostprintStatus
	}
	assert.Equal(t, map[uint]models.PostprintStatus{
		11: models.PostprintStatusAlreadyOpenlyAvailable,
		12: models.PostprintStatusAlreadyOpenlyAvailable,
		21: models.PostprintStatusAlreadyOpenlyAvailable,
		31: models.PostprintStatusInProgress,
		32: models.PostprintStatusInProgress,
	}, exports)

	downloads := queue.ofKind(jobs.KindFileDownload)
	require.Len(t, downloads, 1)
	assert.Equal(t, uint(31), downloads[0].FileID)
}

// Eine in Durchgang 2 auf In Progress gesetzte Publikation ohne abgelegte Datei
// darf Durchgang 3 nicht zurücksetzen.
func TestPostprintSync_ThirdPassSkipsTouchedPublications(t *testing.T) {
	store := newFakeStore()
	store.addPublication(models.Publication{
		ID:                     1,
		ActivityInsightOAFiles: []models.ActivityInsightOAFile{{ID: 11}},
	})
	queue := &fakeQueue{}

	summary, err := NewPostprintSync(store, queue, eligibleAll{}, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.PostprintStatusInProgress, store.pub(1).ActivityInsightPostprintStatus)
	assert.Equal(t, 0, summary.Cleared)
	assert.Len(t, queue.ofKind(jobs.KindFileDownload), 1)

	// im nächsten Lauf ist sie nicht mehr "touched" und wird zurückgesetzt
	summary, err = NewPostprintSync(store, &fakeQueue{}, eligibleAll{}, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Cleared)
	assert.Equal(t, models.PostprintStatusNone, store.pub(1).ActivityInsightPostprintStatus)
}

func TestPostprintSync_PerPublicationErrorsDoNotStopTheRun(t *testing.T) {
	store := newFakeStore()
	store.addPublication(models.Publication{
		ID:                     1,
		OpenAccessStatus:       models.OAStatusHybrid,
		ActivityInsightOAFiles: []models.ActivityInsightOAFile{{ID: 11}},
	})
	store.addPublication(models.Publication{
		ID:                     2,
		OpenAccessStatus:       models.OAStatusHybrid,
		ActivityInsightOAFiles: []models.ActivityInsightOAFile{{ID: 21}},
	})
	store.statusErr[1] = errBoom

	summary, err := NewPostprintSync(store, &fakeQueue{}, eligibleAll{}, zap.NewNop()).Run(context.Background())

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, summary.MarkedOpenlyAvailable)
	assert.Equal(t, models.PostprintStatusAlreadyOpenlyAvailable, store.pub(2).ActivityInsightPostprintStatus)
}
