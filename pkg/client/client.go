// Package client is the Session Client (C2): a thin, stateless façade over
// the Bridge HTTP API. Every call is retried idempotently on transient I/O
// errors via github.com/cenkalti/backoff/v5; on persistent failure the
// caller receives a *types.RemoteTransportError. Grounded on the calls
// klever/core/vrp/__init__.py makes through klever.core.session.Session.
package client

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/klever-verify/core/pkg/log"
	"github.com/klever-verify/core/pkg/metrics"
	"github.com/klever-verify/core/pkg/types"
	"github.com/rs/zerolog"
)

// Client is a stateless façade over the Bridge HTTP API. A single Client
// may be shared by every worker; it carries no per-call state beyond the
// session cookie obtained at SignIn.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger

	sessionCookie string
}

// Option configures a Client at construction, mainly so tests can point it
// at an httptest server instead of a real Bridge.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithBaseURL overrides the Bridge base URL derived from bridge.Host.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// New creates a Client targeting the Bridge at bridge.Host.
func New(bridge types.BridgeConfig, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://" + bridge.Host,
		logger:     log.WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TaskStatus is one entry of a get_tasks_statuses response.
type TaskStatus struct {
	ID     string            `json:"id"`
	Status types.RemoteStatus `json:"status"`
}

// SignIn authenticates against the Bridge and stores the session cookie
// used by every subsequent call.
func (c *Client) SignIn(ctx context.Context, bridge types.BridgeConfig) error {
	form := map[string]string{"username": bridge.User, "password": bridge.Password}
	body, err := json.Marshal(form)
	if err != nil {
		return err
	}

	resp, err := c.doRetried(ctx, "sign_in", func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, "/users/signin/", "application/json", bytes.NewReader(body))
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, ck := range resp.Cookies() {
		if ck.Name == "sessionid" {
			c.sessionCookie = ck.Value
		}
	}
	return nil
}

// SignOut terminates the Bridge session.
func (c *Client) SignOut(ctx context.Context) error {
	resp, err := c.doRetried(ctx, "sign_out", func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, "/users/signout/", "", nil)
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// DecideJob tells the Bridge a job is starting, uploading the merged
// configuration as JSON.
func (c *Client) DecideJob(ctx context.Context, jobID string, config []byte) error {
	resp, err := c.doRetried(ctx, "decide_job", func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, "/jobs/decide/"+jobID+"/", "application/json", bytes.NewReader(config))
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// ScheduleTask submits a task descriptor plus its file archive for
// scheduling. files maps the archive member name to its content.
func (c *Client) ScheduleTask(ctx context.Context, descriptor types.TaskDescriptor, files map[string][]byte) (taskID string, err error) {
	body, contentType, err := multipartTaskRequest(descriptor, files)
	if err != nil {
		return "", err
	}

	resp, err := c.doRetried(ctx, "schedule_task", func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, "/jobs/schedule_task/", contentType, bytes.NewReader(body))
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		TaskID string `json:"task id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &types.RemoteTransportError{Op: "schedule_task", Err: err}
	}
	return out.TaskID, nil
}

// GetTaskStatus returns the remote status for a single task ID.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (types.RemoteStatus, error) {
	statuses, err := c.GetTasksStatuses(ctx, []string{taskID})
	if err != nil {
		return "", err
	}
	for _, s := range statuses {
		if s.ID == taskID {
			return s.Status, nil
		}
	}
	return "", &types.RemoteTaskError{TaskID: taskID, Text: "status not reported by remote service"}
}

// GetTasksStatuses polls the status of many tasks in one round trip.
func (c *Client) GetTasksStatuses(ctx context.Context, taskIDs []string) ([]TaskStatus, error) {
	body, err := json.Marshal(taskIDs)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRetried(ctx, "get_tasks_statuses", func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, "/jobs/get_tasks_statuses/", "application/json", bytes.NewReader(body))
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &types.RemoteTransportError{Op: "get_tasks_statuses", Err: err}
	}
	return out, nil
}

// GetTaskError fetches the error text the remote service recorded for a
// task that reached status ERROR.
func (c *Client) GetTaskError(ctx context.Context, taskID string) (string, error) {
	resp, err := c.doRetried(ctx, "get_task_error", func(ctx context.Context) (*http.Response, error) {
		return c.get(ctx, "/jobs/get_task_error/"+taskID+"/")
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &types.RemoteTransportError{Op: "get_task_error", Err: err}
	}
	return string(text), nil
}

// DownloadDecision downloads and unpacks a task's decision archive into
// destDir, returning the list of extracted file paths.
func (c *Client) DownloadDecision(ctx context.Context, taskID, destDir string) ([]string, error) {
	resp, err := c.doRetried(ctx, "download_decision", func(ctx context.Context) (*http.Response, error) {
		return c.get(ctx, "/jobs/downloaddecision/"+taskID+"/")
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	archive, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.RemoteTransportError{Op: "download_decision", Err: err}
	}

	return unpackZip(archive, destDir)
}

// RemoveTask tells the Bridge a task's remote-side state may be discarded.
func (c *Client) RemoveTask(ctx context.Context, taskID string) error {
	resp, err := c.doRetried(ctx, "remove_task", func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, "/jobs/remove_task/"+taskID+"/", "", nil)
	})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// UploadReport streams a single report (JSON body + optional archive) to
// the Bridge.
func (c *Client) UploadReport(ctx context.Context, report types.Report, archive []byte) error {
	body, contentType, err := multipartReportRequest(report, archive)
	if err != nil {
		return err
	}

	timer := metrics.NewTimer()
	resp, err := c.doRetried(ctx, "upload_report", func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, "/reports/upload/", contentType, bytes.NewReader(body))
	})
	timer.ObserveDurationVec(metrics.BridgeRequestDuration, "upload_report")
	if err != nil {
		metrics.ReportUploadFailuresTotal.Inc()
		return err
	}
	defer resp.Body.Close()
	metrics.ReportsEmittedTotal.WithLabelValues(string(report.Kind)).Inc()
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.attachSession(req)
	return c.httpClient.Do(req)
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.attachSession(req)
	return c.httpClient.Do(req)
}

func (c *Client) attachSession(req *http.Request) {
	if c.sessionCookie != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: c.sessionCookie})
	}
}

// doRetried runs fn with exponential-backoff retry on transport failures
// and 5xx responses, surfacing a *types.RemoteTransportError once retries
// are exhausted. A 4xx response is not retried.
func (c *Client) doRetried(ctx context.Context, op string, fn func(context.Context) (*http.Response, error)) (*http.Response, error) {
	timer := metrics.NewTimer()

	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		resp, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return nil, fmt.Errorf("remote returned status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			text, _ := io.ReadAll(resp.Body)
			return nil, backoff.Permanent(fmt.Errorf("remote returned status %d: %s", resp.StatusCode, text))
		}
		return resp, nil
	}, backoff.WithMaxTries(5), backoff.WithBackOff(backoff.NewExponentialBackOff()))

	timer.ObserveDurationVec(metrics.BridgeRequestDuration, op)

	if err != nil {
		metrics.BridgeRequestsTotal.WithLabelValues(op, "failure").Inc()
		c.logger.Error().Err(err).Str("op", op).Msg("bridge request failed")
		return nil, &types.RemoteTransportError{Op: op, Err: err}
	}
	metrics.BridgeRequestsTotal.WithLabelValues(op, "success").Inc()
	return resp, nil
}

func multipartTaskRequest(descriptor types.TaskDescriptor, files map[string][]byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	descJSON, err := json.Marshal(descriptor)
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("description", string(descJSON)); err != nil {
		return nil, "", err
	}

	archivePart, err := w.CreateFormFile("task files archive", "task files.zip")
	if err != nil {
		return nil, "", err
	}
	if err := writeZip(archivePart, files); err != nil {
		return nil, "", err
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func multipartReportRequest(report types.Report, archive []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("report", string(reportJSON)); err != nil {
		return nil, "", err
	}

	if len(archive) > 0 {
		part, err := w.CreateFormFile("file", report.Identifier+".zip")
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(archive); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeZip(w io.Writer, files map[string][]byte) error {
	zw := zip.NewWriter(w)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	for _, name := range names {
		f, err := zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := f.Write(files[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}

func unpackZip(archive []byte, destDir string) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, &types.RemoteTransportError{Op: "unpack_decision", Err: err}
	}

	var paths []string
	for _, f := range r.File {
		dest := filepath.Join(destDir, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, err
		}
		if err := extractZipFile(f, dest); err != nil {
			return nil, err
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

func extractZipFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
