package client

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klever-verify/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	c := New(types.BridgeConfig{Host: "ignored"}, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	return c, srv
}

func TestSignInStoresSessionCookie(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "abc123"})
		w.WriteHeader(http.StatusOK)
	})

	err := c.SignIn(context.Background(), types.BridgeConfig{User: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", c.sessionCookie)
}

func TestGetTasksStatuses(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		resp := []TaskStatus{{ID: "t1", Status: types.StatusFinished}}
		_ = json.NewEncoder(w).Encode(resp)
	})

	statuses, err := c.GetTasksStatuses(context.Background(), []string{"t1"})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, types.StatusFinished, statuses[0].Status)
}

func TestGetTaskStatusNotReported(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]TaskStatus{})
	})

	_, err := c.GetTaskStatus(context.Background(), "missing")
	require.Error(t, err)
	var taskErr *types.RemoteTaskError
	assert.ErrorAs(t, err, &taskErr)
}

func TestDownloadDecisionUnpacksArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("decision.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte("<result/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	})

	paths, err := c.DownloadDecision(context.Background(), "t1", t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 1)
}

func TestPersistentFailureSurfacesRemoteTransportError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	err := c.RemoveTask(context.Background(), "t1")
	require.Error(t, err)
	var transportErr *types.RemoteTransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestUploadReportSucceeds(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	err := c.UploadReport(context.Background(), types.Report{Kind: types.ReportSafe, Identifier: "r1"}, nil)
	require.NoError(t, err)
}
