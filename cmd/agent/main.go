// Command focusd-agent is the unprivileged, user-scoped half of focusd
// (spec.md §4.1): it owns the schedule/commitment preferences store, drives
// the window materializer, and reconciles OS timer jobs against it. It
// holds no enforcement power of its own — every privileged action goes
// through internal/ipc to focusd-daemon, recovering the original
// implementation's split between its unprivileged UI process and its root
// helper tool.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/eyebeam/focusd/internal/config"
	"github.com/eyebeam/focusd/internal/ipc"
	"github.com/eyebeam/focusd/internal/recovery"
	"github.com/eyebeam/focusd/internal/schedule"
	"github.com/eyebeam/focusd/internal/store"
	"github.com/eyebeam/focusd/internal/timerjob"
	"github.com/eyebeam/focusd/internal/window"
	"github.com/kardianos/service"
	"gopkg.in/natefinch/lumberjack.v2"
)

// confPathEnv names the environment variable focusd-agent reads its config
// path from.
const confPathEnv = "FOCUSD_AGENT_CONFIG"

// tokenEnvVar is the same authorization-token convention internal/cli uses;
// the agent needs it to call register_schedule (spec.md §4.8), the one
// authenticated call on the recurring reconcile path.
const tokenEnvVar = "FOCUSD_AUTH_TOKEN"

func main() {
	confPath := os.Getenv(confPathEnv)
	if confPath == "" {
		confPath = filepath.Join(os.Getenv("HOME"), ".config", "focusd", "agent.yaml")
	}

	conf, err := config.LoadAgentConfig(confPath)
	check(err)

	if conf.LogPath != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   conf.LogPath,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
		})
	}

	prg := &program{conf: conf}

	svcConf := &service.Config{
		Name:        "com.eyebeam.focusd.agent",
		DisplayName: "focusd agent",
		Description: "User-scoped schedule reconciler for focusd.",
	}

	svc, err := service.New(prg, svcConf)
	check(err)

	log.Info("focusd-agent: starting, pid %d", os.Getpid())

	check(svc.Run())
}

type program struct {
	conf   config.AgentConfig
	cancel context.CancelFunc
	store  *store.Store
	done   chan struct{}
}

func (p *program) Start(_ service.Service) (err error) {
	var ctx context.Context
	ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run(ctx)

	return nil
}

func (p *program) Stop(_ service.Service) (err error) {
	if p.cancel != nil {
		p.cancel()
	}

	if p.done != nil {
		<-p.done
	}

	if p.store != nil {
		return p.store.Close()
	}

	return nil
}

func (p *program) run(ctx context.Context) {
	defer close(p.done)

	st, err := store.Open(p.conf.StorePath)
	if err != nil {
		log.Error("focusd-agent: opening store %q: %s", p.conf.StorePath, err)

		return
	}
	p.store = st

	client := ipc.NewClient(p.conf.SocketPath)

	loader := timerjob.NewLoader(launchAgentsDir())
	reconciler := timerjob.NewReconciler(loader, p.conf.CLIPath)

	if rErr := recoverAll(ctx, st, client); rErr != nil {
		log.Error("focusd-agent: startup recovery: %s", rErr)
	}

	if rErr := reconcileOnce(ctx, st, client, reconciler); rErr != nil {
		log.Error("focusd-agent: initial reconcile: %s", rErr)
	}

	go p.reconcileLoop(ctx, st, client, reconciler)
	go p.cleanupLoop(ctx, st)

	<-ctx.Done()
}

// reconcileLoop re-runs the reconciler every time the store reports a
// change (spec.md §4.5), debounced so a burst of edits collapses into one
// reconcile pass.
func (p *program) reconcileLoop(
	ctx context.Context,
	st *store.Store,
	client *ipc.Client,
	reconciler *timerjob.Reconciler,
) {
	debounce := p.conf.ReconcileDebounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return
		case <-st.DidChange():
			if timer != nil {
				timer.Stop()
			}

			timer = time.AfterFunc(debounce, func() {
				if err := reconcileOnce(ctx, st, client, reconciler); err != nil {
					log.Error("focusd-agent: reconcile: %s", err)
				}
			})
		}
	}
}

// cleanupLoop periodically expires commitments whose week has ended
// (spec.md §4.3).
func (p *program) cleanupLoop(ctx context.Context, st *store.Store) {
	interval := p.conf.CommitmentCleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := st.CleanupExpired(now); err != nil {
				log.Error("focusd-agent: cleaning up commitments: %s", err)
			}
		}
	}
}

// reconcileOnce materializes this week's windows for every bundle, merges
// overlapping ones, and drives the installed timer jobs toward that desired
// set (spec.md §4.4, §4.5).
func reconcileOnce(
	ctx context.Context,
	st *store.Store,
	client *ipc.Client,
	reconciler *timerjob.Reconciler,
) (err error) {
	now := time.Now()
	weekKey := schedule.KeyForOffset(now, 0)

	var windows []window.Window
	for _, w := range st.SchedulesForWeek(weekKey) {
		wins, mErr := window.Materialize(w, 0, now)
		if mErr != nil {
			return mErr
		}

		windows = append(windows, wins...)
	}

	window.SortWindows(windows)
	merged := window.MergeWindows(windows)

	token := os.Getenv(tokenEnvVar)

	register := func(win window.Window) (rErr error) {
		blocklist, bErr := blocklistForWindow(st, win)
		if bErr != nil {
			return bErr
		}

		return client.RegisterSchedule(ctx, ipc.RegisterScheduleRequest{
			Token:     token,
			ID:        win.ID,
			Blocklist: blocklist,
			EndDate:   win.EndWallclock,
		})
	}

	return reconciler.Reconcile(merged, register)
}

// blocklistForWindow unions every contributing bundle's entries for a
// (possibly merged) window, spec.md §4.4's merge semantics carried through
// to the schedule that actually gets registered and enforced.
func blocklistForWindow(st *store.Store, win window.Window) (entries []bundle.Entry, err error) {
	type entryKey struct {
		kind bundle.Kind
		text string
	}
	seen := map[entryKey]bool{}

	for _, bundleID := range win.BundleIDs {
		b, bErr := st.Bundle(bundleID)
		if bErr != nil {
			return nil, bErr
		}

		for _, e := range b.Entries {
			kind, text := e.Key()
			key := entryKey{kind: kind, text: text}
			if seen[key] {
				continue
			}

			seen[key] = true
			entries = append(entries, e)
		}
	}

	return entries, nil
}

// recoverAll runs spec.md §4.9's missed-trigger recovery for every bundle
// the store knows about, against the daemon's current Active/Idle state.
func recoverAll(ctx context.Context, st *store.Store, client *ipc.Client) (err error) {
	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("fetching daemon status: %w", err)
	}

	now := time.Now()
	weekKey := schedule.KeyForOffset(now, 0)
	schedules := recovery.Schedules(st.SchedulesForWeek(weekKey))

	startScheduled := func(sCtx context.Context, bundleID string, endDate time.Time) (sErr error) {
		return client.StartScheduledBlock(sCtx, ipc.StartScheduledBlockRequest{ID: bundleID, EndDate: endDate})
	}

	clearExpired := func(cCtx context.Context, cNow time.Time) (cErr error) {
		return client.ClearExpiredBlock(cCtx)
	}

	return recovery.RecoverAll(ctx, now, schedules, status.State.IsRunning, status.State.EndDate,
		startScheduled, clearExpired)
}

// launchAgentsDir returns the darwin LaunchAgents directory for the current
// user; unused on Linux, where NewLoader ignores its argument.
func launchAgentsDir() (dir string) {
	return filepath.Join(os.Getenv("HOME"), "Library", "LaunchAgents")
}

func check(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
