package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"oa-workflow/models"
	"oa-workflow/providers/httpclient"
)

func TestLocationService_BackfillIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.addPublication(models.Publication{
		ID:                         1,
		OpenAccessURL:              "https://repo.example.org/1.pdf",
		UserSubmittedOpenAccessURL: " https://mine.example.org/1.pdf ",
		ScholarsphereOpenAccessURL: "https://scholarsphere.psu.edu/resources/abc",
	})
	store.addPublication(models.Publication{
		ID:            2,
		OpenAccessURL: "https://repo.example.org/2.pdf",
		OpenAccessLocations: []models.OpenAccessLocation{
			{Source: models.LocationSourceUnpaywall, URL: "https://repo.example.org/2.pdf"},
		},
	})
	store.addPublication(models.Publication{ID: 3})
	svc := NewLocationService(store, nil, zap.NewNop())

	first, err := svc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackfillSummary{Publications: 2, Created: 3, Existing: 1}, first)
	assert.Equal(t, 4, store.locationCount())

	second, err := svc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackfillSummary{Publications: 2, Created: 0, Existing: 4}, second)
	assert.Equal(t, 4, store.locationCount())

	pub := store.pub(1)
	require.Len(t, pub.OpenAccessLocations, 3)
	assert.Equal(t, "https://mine.example.org/1.pdf", pub.OpenAccessLocations[1].URL)
	assert.Equal(t, models.LocationSourceUser, pub.OpenAccessLocations[1].Source)
}

func TestLocationService_AddUserLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/ok.pdf":
			w.WriteHeader(http.StatusOK)
		case "/moved":
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	store := newFakeStore()
	store.addPublication(models.Publication{ID: 1})
	svc := NewLocationService(store, httpclient.New(httpclient.Config{MaxAttempts: 1}, nil), zap.NewNop())
	ctx := context.Background()

	loc, err := svc.AddUserLocation(ctx, 1, server.URL+"/ok.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.LocationSourceUser, loc.Source)
	assert.NotZero(t, loc.ID)

	_, err = svc.AddUserLocation(ctx, 1, server.URL+"/moved")
	require.NoError(t, err)

	_, err = svc.AddUserLocation(ctx, 1, server.URL+"/gone")
	assert.ErrorIs(t, err, ErrUnreachableURL)

	_, err = svc.AddUserLocation(ctx, 1, "ftp://example.org/file")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = svc.AddUserLocation(ctx, 42, server.URL+"/ok.pdf")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// doppelt hinzugefügt bleibt eine Location
	_, err = svc.AddUserLocation(ctx, 1, server.URL+"/ok.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, store.locationCount())
}

func TestLocationService_RemoveScholarsphereLocations(t *testing.T) {
	const url = "https://scholarsphere.psu.edu/resources/abc"
	store := newFakeStore()
	store.addPublication(models.Publication{ID: 1, OpenAccessLocations: []models.OpenAccessLocation{
		{Source: models.LocationSourceScholarSphere, URL: url},
		{Source: models.LocationSourceUser, URL: url},
	}})
	store.addPublication(models.Publication{ID: 2, OpenAccessLocations: []models.OpenAccessLocation{
		{Source: models.LocationSourceScholarSphere, URL: url},
	}})
	svc := NewLocationService(store, nil, zap.NewNop())

	n, err := svc.RemoveScholarsphereLocations(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, store.locationCount())

	n, err = svc.RemoveScholarsphereLocations(context.Background(), url)
	require.NoError(t, err)
	assert.Zero(t, n)
}
