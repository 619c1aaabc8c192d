package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Client is the agent/CLI side of the IPC surface: a thin JSON-over-Unix
// socket client for the routes [Server.Serve] registers.
type Client struct {
	http *http.Client
}

// NewClient returns a Client that dials socketPath for every request.
func NewClient(socketPath string) (c *Client) {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer

					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (err error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}

		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, reader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)

		return fmt.Errorf("ipc: %s %s: %s (status %d)", method, path, errResp.Error, resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// Version calls get_version.
func (c *Client) Version(ctx context.Context) (resp VersionResponse, err error) {
	err = c.do(ctx, http.MethodGet, "/v1/version", nil, &resp)

	return resp, err
}

// Status calls the read-only status query used by the CLI.
func (c *Client) Status(ctx context.Context) (resp StatusResponse, err error) {
	err = c.do(ctx, http.MethodGet, "/v1/status", nil, &resp)

	return resp, err
}

// StartBlock calls start_block.
func (c *Client) StartBlock(ctx context.Context, req StartBlockRequest) (err error) {
	return c.do(ctx, http.MethodPost, "/v1/start-block", req, nil)
}

// UpdateBlocklist calls update_blocklist.
func (c *Client) UpdateBlocklist(ctx context.Context, req UpdateBlocklistRequest) (err error) {
	return c.do(ctx, http.MethodPost, "/v1/update-blocklist", req, nil)
}

// UpdateEndDate calls update_end_date.
func (c *Client) UpdateEndDate(ctx context.Context, req UpdateEndDateRequest) (err error) {
	return c.do(ctx, http.MethodPost, "/v1/update-end-date", req, nil)
}

// RegisterSchedule calls register_schedule.
func (c *Client) RegisterSchedule(ctx context.Context, req RegisterScheduleRequest) (err error) {
	return c.do(ctx, http.MethodPost, "/v1/register-schedule", req, nil)
}

// StartScheduledBlock calls start_scheduled_block.
func (c *Client) StartScheduledBlock(ctx context.Context, req StartScheduledBlockRequest) (err error) {
	return c.do(ctx, http.MethodPost, "/v1/start-scheduled-block", req, nil)
}

// UnregisterSchedule calls unregister_schedule.
func (c *Client) UnregisterSchedule(ctx context.Context, req UnregisterScheduleRequest) (err error) {
	return c.do(ctx, http.MethodPost, "/v1/unregister-schedule", req, nil)
}

// StopTestBlock calls stop_test_block.
func (c *Client) StopTestBlock(ctx context.Context) (err error) {
	return c.do(ctx, http.MethodPost, "/v1/stop-test-block", nil, nil)
}

// ClearExpiredBlock calls clear_expired_block.
func (c *Client) ClearExpiredBlock(ctx context.Context) (err error) {
	return c.do(ctx, http.MethodPost, "/v1/clear-expired-block", nil, nil)
}

// IsPFBlockActive calls is_pf_block_active.
func (c *Client) IsPFBlockActive(ctx context.Context) (resp IsPFBlockActiveResponse, err error) {
	err = c.do(ctx, http.MethodGet, "/v1/is-pf-block-active", nil, &resp)

	return resp, err
}

// CleanupStaleSchedule calls cleanup_stale_schedule.
func (c *Client) CleanupStaleSchedule(ctx context.Context, id string) (resp CleanupStaleScheduleResponse, err error) {
	err = c.do(ctx, http.MethodPost, "/v1/cleanup-stale-schedule", CleanupStaleScheduleRequest{ID: id}, &resp)

	return resp, err
}

// ClearBlockForDebug calls clear_block_for_debug.
func (c *Client) ClearBlockForDebug(ctx context.Context, token string) (err error) {
	return c.do(ctx, http.MethodPost, "/v1/clear-block-for-debug", struct {
		Token string `json:"token"`
	}{Token: token}, nil)
}
