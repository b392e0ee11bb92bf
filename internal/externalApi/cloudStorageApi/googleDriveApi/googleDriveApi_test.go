package googleDriveApi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type recorder struct {
	mu       sync.Mutex
	requests []string
}

func (r *recorder) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req.Method+" "+req.URL.Path)
}

func newTestApi(t *testing.T, handler http.HandlerFunc) *GoogleDriveApi {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.GoogleDrive.FileTTL = 72 * time.Hour

	return New(context.Background(), cfg,
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
}

func TestUploadFile(t *testing.T) {
	rec := &recorder{}
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/permissions"):
			_, _ = w.Write([]byte(`{"id":"perm-1"}`))
		case strings.HasSuffix(r.URL.Path, "/files"):
			_, _ = w.Write([]byte(`{"id":"file-1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	link, err := api.UploadFile(context.Background(), strings.NewReader("xlsx bytes"), model.ReportFilePrefix+"1.xlsx")
	require.NoError(t, err)

	assert.Equal(t, "https://drive.google.com/file/d/file-1/view", link)
	require.Len(t, rec.requests, 2)
	assert.Equal(t, "POST /files/file-1/permissions", rec.requests[1])
}

func TestDeleteOldFiles(t *testing.T) {
	now := time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC)
	rec := &recorder{}
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/files":
			assert.Contains(t, r.URL.Query().Get("q"), model.ReportFilePrefix)
			_, _ = w.Write([]byte(`{"files":[
				{"id":"old","createdTime":"2024-06-01T00:00:00Z"},
				{"id":"fresh","createdTime":"2024-06-09T00:00:00Z"},
				{"id":"broken","createdTime":"yesterday"}
			]}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	api.now = func() time.Time { return now }

	deleted, err := api.DeleteOldFiles(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, deleted)
	assert.Contains(t, rec.requests, "DELETE /files/old")
	assert.NotContains(t, rec.requests, "DELETE /files/fresh")
}
