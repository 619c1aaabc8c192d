// Command focusd-daemon is the privileged, root-scoped half of focusd
// (spec.md §4.1): it owns the bbolt-backed active-block state machine, the
// three enforcement channels, and the IPC server the agent and focusctl
// talk to. It is installed as a host service via kardianos/service,
// generalizing the teacher's agh.ServiceWithConfig lifecycle to an
// OS-service wrapper the way the original implementation ran as a root
// launchd daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/eyebeam/focusd/internal/channels"
	"github.com/eyebeam/focusd/internal/config"
	"github.com/eyebeam/focusd/internal/daemon"
	"github.com/eyebeam/focusd/internal/ipc"
	"github.com/eyebeam/focusd/internal/resolve"
	"github.com/kardianos/service"
	"gopkg.in/natefinch/lumberjack.v2"
)

// tickInterval is how often PeriodicTick runs (spec.md §4.7's periodic_tick
// transition).
const tickInterval = time.Minute

// confPathEnv names the environment variable focusd-daemon reads its config
// path from; a missing file falls back to config.DefaultDaemonConfig.
const confPathEnv = "FOCUSD_DAEMON_CONFIG"

func main() {
	confPath := os.Getenv(confPathEnv)
	if confPath == "" {
		confPath = "/etc/focusd/daemon.yaml"
	}

	conf, err := config.LoadDaemonConfig(confPath)
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
		Name:        "com.eyebeam.focusd.daemon",
		DisplayName: "focusd daemon",
		Description: "Privileged enforcement daemon for focusd active blocks.",
	}

	svc, err := service.New(prg, svcConf)
	check(err)

	log.Info("focusd-daemon: starting, pid %d", os.Getpid())

	check(svc.Run())
}

// program implements service.Interface, bridging kardianos/service's
// Start/Stop callbacks (which must not block) to the daemon's actual
// run loop on a background goroutine.
type program struct {
	conf   config.DaemonConfig
	cancel context.CancelFunc
	store  *daemon.Store
	srv    *ipc.Server
	done   chan struct{}
}

// Start implements service.Interface. It must return quickly; the real
// work happens in run, spawned on its own goroutine.
func (p *program) Start(_ service.Service) (err error) {
	var ctx context.Context
	ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run(ctx)

	return nil
}

// Stop implements service.Interface: it cancels the run loop and waits for
// graceful IPC shutdown.
func (p *program) Stop(_ service.Service) (err error) {
	if p.cancel != nil {
		p.cancel()
	}

	if p.srv != nil {
		_ = p.srv.Shutdown()
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

	store, err := daemon.OpenStore(p.conf.BoltPath)
	if err != nil {
		log.Error("focusd-daemon: opening store %q: %s", p.conf.BoltPath, err)

		return
	}
	p.store = store

	resolver, err := resolve.New(&resolve.Config{
		UpstreamAddr: "1.1.1.1:53",
		Timeout:      2 * time.Second,
		CacheTTL:     5 * time.Minute,
		CacheSize:    4096,
	})
	if err != nil {
		log.Error("focusd-daemon: building resolver: %s", err)

		return
	}

	chans := []channels.Channel{
		channels.NewHostsChannel(p.conf.HostsPath),
		channels.NewPacketFilterChannel(resolver),
		channels.NewKillerChannel(),
	}

	d := daemon.New(store, chans)

	// Resume covers spec.md §4.9's scenario D (reboot during an active
	// block): re-apply the channels if the block is still unexpired, or
	// clear it if end_date already passed while nobody was watching.
	// Scenario E (a missed calendar trigger) is recovered agent-side,
	// since only the agent's store holds the per-bundle WeeklySchedule
	// needed to materialize this week's windows.
	if rErr := d.Resume(ctx); rErr != nil {
		log.Error("focusd-daemon: resuming active block: %s", rErr)
	}

	auth, err := ipc.NewAuthority()
	if err != nil {
		log.Error("focusd-daemon: building authority: %s", err)

		return
	}

	p.srv = ipc.NewServer(auth, d, p.conf.ControllingUID, p.conf.DebugBuild)

	go p.tickLoop(ctx, d)

	if sErr := p.srv.Serve(p.conf.SocketPath); sErr != nil && ctx.Err() == nil {
		log.Error("focusd-daemon: ipc server exited: %s", sErr)
	}
}

// tickLoop drives the minute-resolution periodic_tick transition (spec.md
// §4.7), the daemon-side half of missed-trigger recovery for a block
// already in progress when its end_date silently passes with nobody
// watching.
func (p *program) tickLoop(ctx context.Context, d *daemon.Daemon) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := d.PeriodicTick(ctx, now); err != nil {
				log.Error("focusd-daemon: periodic_tick: %s", err)
			}
		}
	}
}

func check(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
