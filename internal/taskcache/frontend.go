package taskcache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	appErr "judgeworker/pkg/errors"
)

// Frontend is the judge worker's outbound client for the problem
// frontend's task-info endpoints.
type Frontend struct {
	BaseURL    string
	Secret     string
	HTTPClient *http.Client
}

// NewFrontend builds a Frontend client.
func NewFrontend(baseURL, secret string, client *http.Client) *Frontend {
	if client == nil {
		client = http.DefaultClient
	}
	return &Frontend{BaseURL: baseURL, Secret: secret, HTTPClient: client}
}

// StreamTaskInfo opens a streaming GET against /task/{id}/info. The caller
// must close the returned body; callers should copy it straight to disk
// rather than buffering it in memory.
func (f *Frontend) StreamTaskInfo(ctx context.Context, taskID int64) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/task/%d/info", f.BaseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "build task-info request failed")
	}
	req.Header.Set("X-Auth-Token", f.Secret)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ServiceUnavailable, "fetch task-info failed")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, appErr.Newf(appErr.ServiceUnavailable, "fetch task-info: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// FetchChecksum retrieves the frontend's advertised SHA-384 checksum for a
// task's current task-info payload.
func (f *Frontend) FetchChecksum(ctx context.Context, taskID int64) (string, error) {
	url := fmt.Sprintf("%s/task/%d/info/checksum", f.BaseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.CacheError, "build checksum request failed")
	}
	req.Header.Set("X-Auth-Token", f.Secret)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ServiceUnavailable, "fetch checksum failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", appErr.Newf(appErr.ServiceUnavailable, "fetch checksum: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Checksum string `json:"checksum"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", appErr.Wrapf(err, appErr.CacheError, "decode checksum response failed")
	}
	return payload.Checksum, nil
}
