package oaworks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"oa-workflow/config"
	"oa-workflow/models"
	"oa-workflow/providers/httpclient"
	"oa-workflow/providers/permissions"
)

var _ permissions.Source = (*Fetcher)(nil)

func TestFetcher_UsesConfiguredBaseURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/permissions/10.1234%2Fabc", r.URL.EscapedPath())
		w.Write([]byte(`{"all_permissions":[{"version":"publishedVersion","can_archive":true,"licence":"cc-by"}]}`))
	}))
	defer server.Close()

	cfg := &config.Config{OAWorksBaseURL: server.URL + "/permissions"}
	f := NewFetcher(cfg, httpclient.New(httpclient.Config{MaxAttempts: 1}, nil), zap.NewNop())

	rec, found, err := f.FetchByVersion(context.Background(), "10.1234/abc", models.FileVersionPublished)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, rec.CanDeposit)
	assert.Equal(t, Name, f.Name())
}
