// Package ipc implements the authenticated request/reply surface between
// the unprivileged agent and the privileged daemon (spec.md §4.8): JSON
// requests over a Unix domain socket, routed with
// github.com/dimfeld/httptreemux/v5 and compressed with
// github.com/NYTimes/gziphandler, recovering SCDaemonProtocol.h's XPC
// method table as HTTP routes.
package ipc

import (
	"time"

	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/eyebeam/focusd/internal/daemon"
)

// Right names passed to Authority.Grant/Validate, one per authenticated
// method in spec.md §4.8's table.
const (
	RightStartBlock       = "start_block"
	RightUpdateBlocklist  = "update_blocklist"
	RightUpdateEndDate    = "update_end_date"
	RightRegisterSchedule = "register_schedule"
	RightUnregisterSched  = "unregister_schedule"
	RightClearBlockDebug  = "clear_block_for_debug"
)

// VersionResponse is the reply to get_version.
type VersionResponse struct {
	Version string `json:"version"`
}

// StartBlockRequest is the body of POST /v1/start-block.
type StartBlockRequest struct {
	Token       string         `json:"token"`
	UID         uint32         `json:"uid"`
	Blocklist   []bundle.Entry `json:"blocklist"`
	IsAllowlist bool           `json:"is_allowlist"`
	EndDate     time.Time      `json:"end_date"`
}

// UpdateBlocklistRequest is the body of POST /v1/update-blocklist.
type UpdateBlocklistRequest struct {
	Token string         `json:"token"`
	List  []bundle.Entry `json:"list"`
}

// UpdateEndDateRequest is the body of POST /v1/update-end-date.
type UpdateEndDateRequest struct {
	Token string    `json:"token"`
	Date  time.Time `json:"date"`
}

// RegisterScheduleRequest is the body of POST /v1/register-schedule.
type RegisterScheduleRequest struct {
	Token       string         `json:"token"`
	ID          string         `json:"id"`
	Blocklist   []bundle.Entry `json:"blocklist"`
	IsAllowlist bool           `json:"is_allowlist"`
	EndDate     time.Time      `json:"end_date"`
}

// StartScheduledBlockRequest is the body of POST /v1/start-scheduled-block.
type StartScheduledBlockRequest struct {
	ID      string    `json:"id"`
	EndDate time.Time `json:"end_date"`
}

// UnregisterScheduleRequest is the body of POST /v1/unregister-schedule.
type UnregisterScheduleRequest struct {
	Token string `json:"token"`
	ID    string `json:"id"`
}

// CleanupStaleScheduleRequest is the body of POST /v1/cleanup-stale-schedule.
type CleanupStaleScheduleRequest struct {
	ID string `json:"id"`
}

// CleanupStaleScheduleResponse is the reply to cleanup_stale_schedule.
type CleanupStaleScheduleResponse struct {
	Removed bool `json:"removed"`
}

// IsPFBlockActiveResponse is the reply to is_pf_block_active.
type IsPFBlockActiveResponse struct {
	Active bool `json:"active"`
}

// StatusResponse reports a read-only snapshot of the active-block state,
// used by the CLI's status subcommand.
type StatusResponse struct {
	State daemon.State `json:"state"`
}

// errorResponse is the JSON body returned on non-2xx replies.
type errorResponse struct {
	Error string `json:"error"`
}
