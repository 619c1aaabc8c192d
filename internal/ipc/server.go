package ipc

import (
	"encoding/json"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/NYTimes/gziphandler"
	"github.com/dimfeld/httptreemux/v5"
	"github.com/eyebeam/focusd/internal/daemon"
)

// Version is the daemon build version returned by get_version. Set by the
// binary's build process; left as a sentinel default otherwise.
var Version = "dev"

// Server is the daemon side of the IPC surface (spec.md §4.8).
// controllingUID is the UID every request is expected to originate from,
// recovering SCXPCClient's implicit "same user" check via the peer
// credentials read off the socket.
type Server struct {
	auth           *Authority
	d              *daemon.Daemon
	controllingUID uint32
	debugBuild     bool

	listener net.Listener
	http     *http.Server
}

// NewServer returns a Server that authorizes requests against auth,
// dispatches to d, and only accepts connections from controllingUID.
// debugBuild gates clear_block_for_debug, which spec.md §4.8 restricts to
// debug builds.
func NewServer(auth *Authority, d *daemon.Daemon, controllingUID uint32, debugBuild bool) (s *Server) {
	return &Server{auth: auth, d: d, controllingUID: controllingUID, debugBuild: debugBuild}
}

// Serve listens on a Unix domain socket at socketPath and blocks serving
// requests until the listener is closed by Shutdown.
func (s *Server) Serve(socketPath string) (err error) {
	_ = os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}

	if err = os.Chmod(socketPath, 0o600); err != nil {
		return err
	}

	s.listener = &peerCheckedListener{UnixListener: ln.(*net.UnixListener), wantUID: s.controllingUID}

	router := httptreemux.NewContextMux()
	router.POST("/v1/start-block", s.handleStartBlock)
	router.POST("/v1/update-blocklist", s.handleUpdateBlocklist)
	router.POST("/v1/update-end-date", s.handleUpdateEndDate)
	router.POST("/v1/register-schedule", s.handleRegisterSchedule)
	router.POST("/v1/start-scheduled-block", s.handleStartScheduledBlock)
	router.POST("/v1/unregister-schedule", s.handleUnregisterSchedule)
	router.POST("/v1/stop-test-block", s.handleStopTestBlock)
	router.POST("/v1/clear-expired-block", s.handleClearExpiredBlock)
	router.GET("/v1/is-pf-block-active", s.handleIsPFBlockActive)
	router.POST("/v1/cleanup-stale-schedule", s.handleCleanupStaleSchedule)
	router.POST("/v1/clear-block-for-debug", s.handleClearBlockForDebug)
	router.GET("/v1/version", s.handleVersion)
	router.GET("/v1/status", s.handleStatus)

	s.http = &http.Server{
		Handler:           gziphandler.GzipHandler(router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("ipc: listening on %s", socketPath)

	return s.http.Serve(s.listener)
}

// peerCheckedListener rejects connections whose SO_PEERCRED/LOCAL_PEERCRED
// UID does not match wantUID before ever handing them to the HTTP server,
// recovering SCXPCClient's "same user" check at the transport layer.
type peerCheckedListener struct {
	*net.UnixListener
	wantUID uint32
}

func (l *peerCheckedListener) Accept() (conn net.Conn, err error) {
	for {
		c, err := l.UnixListener.AcceptUnix()
		if err != nil {
			return nil, err
		}

		uid, err := PeerUID(c)
		if err != nil || uid != l.wantUID {
			log.Error("ipc: rejecting connection from unexpected peer: uid=%d err=%v", uid, err)
			_ = c.Close()

			continue
		}

		return c, nil
	}
}

// Shutdown stops accepting new connections and closes the listener.
func (s *Server) Shutdown() (err error) {
	if s.http == nil {
		return nil
	}

	return s.http.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) (status int) {
	switch {
	case err == nil:
		return http.StatusOK
	case err == ErrAuthorizationDenied:
		return http.StatusForbidden
	case err == daemon.ErrScheduleNotFound, err == daemon.ErrNotActive:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) (ok bool) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)

		return false
	}

	return true
}

func (s *Server) authorize(w http.ResponseWriter, token, right string) (ok bool) {
	if err := s.auth.Validate(token, right); err != nil {
		writeError(w, http.StatusForbidden, ErrAuthorizationDenied)

		return false
	}

	return true
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: Version})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{State: s.d.Snapshot()})
}

func (s *Server) handleStartBlock(w http.ResponseWriter, r *http.Request) {
	var req StartBlockRequest
	if !decodeJSON(w, r, &req) || !s.authorize(w, req.Token, RightStartBlock) {
		return
	}

	err := s.d.Start(r.Context(), req.Blocklist, req.IsAllowlist, false, req.EndDate, false)
	writeJSON(w, statusFor(err), errOrOK(err))
}

func (s *Server) handleUpdateBlocklist(w http.ResponseWriter, r *http.Request) {
	var req UpdateBlocklistRequest
	if !decodeJSON(w, r, &req) || !s.authorize(w, req.Token, RightUpdateBlocklist) {
		return
	}

	err := s.d.UpdateBlocklist(r.Context(), req.List)
	writeJSON(w, statusFor(err), errOrOK(err))
}

func (s *Server) handleUpdateEndDate(w http.ResponseWriter, r *http.Request) {
	var req UpdateEndDateRequest
	if !decodeJSON(w, r, &req) || !s.authorize(w, req.Token, RightUpdateEndDate) {
		return
	}

	err := s.d.UpdateEndDate(req.Date)
	writeJSON(w, statusFor(err), errOrOK(err))
}

func (s *Server) handleRegisterSchedule(w http.ResponseWriter, r *http.Request) {
	var req RegisterScheduleRequest
	if !decodeJSON(w, r, &req) || !s.authorize(w, req.Token, RightRegisterSchedule) {
		return
	}

	err := s.d.RegisterSchedule(daemon.ApprovedSchedule{
		ID:          req.ID,
		Blocklist:   req.Blocklist,
		IsAllowlist: req.IsAllowlist,
		EndDate:     req.EndDate,
	})
	writeJSON(w, statusFor(err), errOrOK(err))
}

// handleStartScheduledBlock carries no auth token: spec.md §4.8's asymmetry
// is the point — consent was captured once at registration, and the
// presence of req.ID in ApprovedSchedules is itself the evidence.
func (s *Server) handleStartScheduledBlock(w http.ResponseWriter, r *http.Request) {
	var req StartScheduledBlockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := s.d.StartScheduledBlock(r.Context(), req.ID, req.EndDate)
	writeJSON(w, statusFor(err), errOrOK(err))
}

func (s *Server) handleUnregisterSchedule(w http.ResponseWriter, r *http.Request) {
	var req UnregisterScheduleRequest
	if !decodeJSON(w, r, &req) || !s.authorize(w, req.Token, RightUnregisterSched) {
		return
	}

	err := s.d.UnregisterSchedule(req.ID)
	writeJSON(w, statusFor(err), errOrOK(err))
}

func (s *Server) handleStopTestBlock(w http.ResponseWriter, r *http.Request) {
	err := s.d.StopTestBlock(r.Context(), time.Now())
	writeJSON(w, statusFor(err), errOrOK(err))
}

func (s *Server) handleClearExpiredBlock(w http.ResponseWriter, r *http.Request) {
	err := s.d.ClearExpiredBlock(r.Context(), time.Now())
	writeJSON(w, statusFor(err), errOrOK(err))
}

func (s *Server) handleIsPFBlockActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, IsPFBlockActiveResponse{Active: s.d.IsPFBlockActive()})
}

func (s *Server) handleCleanupStaleSchedule(w http.ResponseWriter, r *http.Request) {
	var req CleanupStaleScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	removed, err := s.d.CleanupStaleSchedule(req.ID, time.Now())
	if err != nil {
		writeError(w, statusFor(err), err)

		return
	}

	writeJSON(w, http.StatusOK, CleanupStaleScheduleResponse{Removed: removed})
}

func (s *Server) handleClearBlockForDebug(w http.ResponseWriter, r *http.Request) {
	if !s.debugBuild {
		writeError(w, http.StatusForbidden, ErrAuthorizationDenied)

		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) || !s.authorize(w, req.Token, RightClearBlockDebug) {
		return
	}

	err := s.d.ClearBlockForDebug(r.Context())
	writeJSON(w, statusFor(err), errOrOK(err))
}

func errOrOK(err error) (v any) {
	if err != nil {
		return errorResponse{Error: err.Error()}
	}

	return struct {
		OK bool `json:"ok"`
	}{OK: true}
}
