package channels

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/eyebeam/focusd/internal/bundle"
	"github.com/shirou/gopsutil/v3/process"
)

// killPollInterval is how often the killer channel scans for targeted
// processes while a block is active (spec.md §4.6, scenario F).
const killPollInterval = 500 * time.Millisecond

// killGrace is how long a process is given to exit after SIGTERM before
// the channel escalates to SIGKILL.
const killGrace = 3 * time.Second

// KillerChannel repeatedly terminates any running process whose process
// name, as gopsutil reports it, matches a blocked app entry's identifier
// case-insensitively.  This is the same comparison on every platform; a
// macOS bundle identifier is not looked up, so an entry matches only when
// its identifier equals the process name.  It never targets pid 1
// or its own process, so a focusd daemon that is itself bundled can't take
// itself down.
type KillerChannel struct {
	ownPID int32

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	killed  []int32
	killedM sync.Mutex
}

// NewKillerChannel returns a KillerChannel.
func NewKillerChannel() (k *KillerChannel) {
	return &KillerChannel{ownPID: int32(os.Getpid())}
}

// type check
var _ Channel = (*KillerChannel)(nil)

// Name implements the [Channel] interface for *KillerChannel.
func (k *KillerChannel) Name() (name string) {
	return "killer"
}

// Apply implements the [Channel] interface for *KillerChannel.  isAllowlist
// is ignored: the killer channel only ever denies the listed apps, since
// "only allow these apps to run" is not a safe semantic to enforce by
// killing everything else on the system.
func (k *KillerChannel) Apply(ctx context.Context, entries []bundle.Entry, _ bool) (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cancel != nil {
		k.cancel()
		<-k.done
	}

	k.killedM.Lock()
	k.killed = nil
	k.killedM.Unlock()

	targets :=make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsApp() {
			targets[strings.ToLower(e.AppBundleID)] = true
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	k.done = make(chan struct{})

	go k.pollLoop(loopCtx, targets)

	return nil
}

// Revert implements the [Channel] interface for *KillerChannel.
func (k *KillerChannel) Revert(_ context.Context) (err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cancel != nil {
		k.cancel()
		<-k.done
		k.cancel = nil
	}

	return nil
}

// Killed returns the pids terminated since the last Apply.
func (k *KillerChannel) Killed() (pids []int32) {
	k.killedM.Lock()
	defer k.killedM.Unlock()

	return append([]int32(nil), k.killed...)
}

func (k *KillerChannel) pollLoop(ctx context.Context, targets map[string]bool) {
	defer close(k.done)

	ticker := time.NewTicker(killPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.sweep(ctx, targets)
		}
	}
}

func (k *KillerChannel) sweep(ctx context.Context, targets map[string]bool) {
	if len(targets) == 0 {
		return
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		log.Error("channels: killer: listing processes: %s", err)

		return
	}

	for _, p := range procs {
		if p.Pid <= 1 || p.Pid == k.ownPID {
			continue
		}

		name, err := p.NameWithContext(ctx)
		if err != nil || !targets[strings.ToLower(name)] {
			continue
		}

		k.terminate(ctx, p)
	}
}

// terminate sends SIGTERM, waits up to killGrace for the process to exit,
// and escalates to SIGKILL if it hasn't.
func (k *KillerChannel) terminate(ctx context.Context, p *process.Process) {
	if err := p.TerminateWithContext(ctx); err != nil {
		log.Debug("channels: killer: terminating pid %d: %s", p.Pid, err)
	}

	deadline := time.Now().Add(killGrace)
	for time.Now().Before(deadline) {
		if running, _ := p.IsRunningWithContext(ctx); !running {
			k.recordKill(p.Pid)

			return
		}

		time.Sleep(100 * time.Millisecond)
	}

	if err := p.KillWithContext(ctx); err != nil {
		log.Error("channels: killer: killing pid %d: %s", p.Pid, err)

		return
	}

	k.recordKill(p.Pid)
}

func (k *KillerChannel) recordKill(pid int32) {
	k.killedM.Lock()
	defer k.killedM.Unlock()

	k.killed = append(k.killed, pid)
}
