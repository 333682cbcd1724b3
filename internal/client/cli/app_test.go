package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/dmitrijs2005/tiergate/internal/client/client"
	"github.com/dmitrijs2005/tiergate/internal/client/config"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSvc struct {
	mu      sync.Mutex
	pingErr error
	pings   int

	err        error
	credential string
	code       string
	status     *client.Status
	forgotten  bool
	closed     bool
}

func (f *fakeSvc) InstallationID(context.Context) (string, error) { return "install-1", f.err }

func (f *fakeSvc) Register(context.Context) (*client.Registration, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &client.Registration{UserID: "u1", UserNumber: 7, IsEarlyAdopter: true, ReferralCode: "U1XX-ABCDEFGH", Tier: tier.Tier3, Degraded: true}, nil
}

func (f *fakeSvc) Heartbeat(context.Context) (*client.Standing, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &client.Standing{Tier: tier.Tier3, LockedTier: tier.Tier5, EngagementDays: 2}, nil
}

func (f *fakeSvc) CompleteProfile(context.Context) (*client.Standing, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &client.Standing{Tier: tier.Tier4, LockedTier: tier.Tier5}, nil
}

func (f *fakeSvc) LinkAccount(_ context.Context, credential string) (*client.Standing, error) {
	f.credential = credential
	if f.err != nil {
		return nil, f.err
	}
	return &client.Standing{Tier: tier.Tier5, LockedTier: tier.Tier5, HasAccount: true}, nil
}

func (f *fakeSvc) Refer(_ context.Context, code string) (*client.Attribution, error) {
	f.code = code
	if f.err != nil {
		return nil, f.err
	}
	if code == "SELF-00000000" {
		return &client.Attribution{Reason: "self_referral"}, nil
	}
	return &client.Attribution{Accepted: true, ReferrerID: "ref-1"}, nil
}

func (f *fakeSvc) Status(context.Context) (*client.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func (f *fakeSvc) CurrentTier(context.Context) (tier.Tier, error) {
	if f.err != nil {
		return tier.NoTier, f.err
	}
	return tier.Tier2, nil
}

func (f *fakeSvc) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.pingErr
}

func (f *fakeSvc) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func (f *fakeSvc) Forget(context.Context) error { f.forgotten = true; return f.err }

func (f *fakeSvc) Close(context.Context) error { f.closed = true; return nil }

func silencePrintln(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	var mu sync.Mutex
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return io.WriteString(&buf, fmt.Sprintln(a...))
	}
	t.Cleanup(func() { printlnFn = orig })
	return &buf
}

func testApp(t *testing.T, svc *fakeSvc, input string) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	var out bytes.Buffer
	return newApp(cfg, svc, &out, strings.NewReader(input), quartz.NewReal()), &out
}

func TestRun_SingleCommand(t *testing.T) {
	silencePrintln(t)
	svc := &fakeSvc{}
	a, out := testApp(t, svc, "")

	require.NoError(t, a.Run(context.Background(), []string{"tier"}))
	assert.Equal(t, "tier-2\n", out.String())
	assert.True(t, svc.closed)
}

func TestRun_SingleCommandError(t *testing.T) {
	silencePrintln(t)
	svc := &fakeSvc{}
	a, _ := testApp(t, svc, "")

	err := a.Run(context.Background(), []string{"fly"})
	require.ErrorIs(t, err, ErrUnknownCommand)
	assert.True(t, svc.closed)
}

func TestRun_ShellUntilQuit(t *testing.T) {
	silencePrintln(t)
	svc := &fakeSvc{}
	a, out := testApp(t, svc, "heartbeat\nrefer ABCD-12345678\nquit\nstatus\n")

	require.NoError(t, a.Run(context.Background(), nil))
	assert.Contains(t, out.String(), "Welcome to TierGate CLI")
	assert.Contains(t, out.String(), "active days this week: 2")
	assert.Contains(t, out.String(), "Referral applied, referrer ref-1")
	assert.Equal(t, "ABCD-12345678", svc.code)
	assert.True(t, svc.closed)
}

func TestExecute_ModeFollowsServerReachability(t *testing.T) {
	silencePrintln(t)
	svc := &fakeSvc{err: client.ErrUnavailable}
	a, _ := testApp(t, svc, "")
	ctx := context.Background()

	require.ErrorIs(t, a.Execute(ctx, "heartbeat", nil), client.ErrUnavailable)
	assert.Equal(t, ModeOffline, a.Mode())
	assert.Equal(t, "(offline)", a.getStatus())

	svc.err = nil
	require.NoError(t, a.Execute(ctx, "heartbeat", nil))
	assert.Equal(t, ModeOnline, a.Mode())
}

func TestExecute_OtherErrorsKeepMode(t *testing.T) {
	silencePrintln(t)
	svc := &fakeSvc{err: errors.New("boom")}
	a, _ := testApp(t, svc, "")

	require.Error(t, a.Execute(context.Background(), "status", nil))
	assert.Equal(t, Mode(""), a.Mode())
	assert.Equal(t, "", a.getStatus())
}

func TestStartOnlineStatusWatcher(t *testing.T) {
	printed := silencePrintln(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	trap := mClock.Trap().NewTicker("cli", "online")
	defer trap.Close()

	svc := &fakeSvc{}
	cfg := &config.Config{}
	cfg.LoadDefaults()
	a := newApp(cfg, svc, io.Discard, strings.NewReader(""), mClock)

	watchCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		a.StartOnlineStatusWatcher(watchCtx, 3*time.Second)
		close(done)
	}()

	call := trap.MustWait(ctx)
	assert.Equal(t, 3*time.Second, call.Duration)
	call.MustRelease(ctx)

	mClock.Advance(3 * time.Second).MustWait(ctx)
	require.Eventually(t, func() bool { return a.Mode() == ModeOnline }, 5*time.Second, 5*time.Millisecond)

	svc.setPingErr(client.ErrUnavailable)
	mClock.Advance(3 * time.Second).MustWait(ctx)
	require.Eventually(t, func() bool { return a.Mode() == ModeOffline }, 5*time.Second, 5*time.Millisecond)

	stop()
	<-done
	assert.Contains(t, printed.String(), "Switched to online mode")
	assert.Contains(t, printed.String(), "Switched to offline mode")
}

func TestRunREPL_HelpEmptyUnknownAndEOF(t *testing.T) {
	printed := silencePrintln(t)
	svc := &fakeSvc{}
	a, _ := testApp(t, svc, "")

	sc := bufio.NewScanner(strings.NewReader("help\n\nfly\n"))
	runREPL(context.Background(), a, a.getStatus, sc)

	assert.Contains(t, printed.String(), "Available commands:")
	assert.Contains(t, printed.String(), "Error:")
}

type recordingExec struct{ cmds []string }

func (r *recordingExec) Execute(_ context.Context, cmd string, args []string) error {
	r.cmds = append(r.cmds, strings.Join(append([]string{cmd}, args...), " "))
	return nil
}

func TestRunREPL_DispatchesUntilExit(t *testing.T) {
	silencePrintln(t)
	exec := &recordingExec{}

	sc := bufio.NewScanner(strings.NewReader("status\n  refer   CODE-1  \nexit\ntier\n"))
	runREPL(context.Background(), exec, func() string { return "" }, sc)

	assert.Equal(t, []string{"status", "refer CODE-1"}, exec.cmds)
}

func TestRunREPL_StopsWhenContextDone(t *testing.T) {
	silencePrintln(t)
	exec := &recordingExec{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := bufio.NewScanner(strings.NewReader("status\ntier\n"))
	runREPL(ctx, exec, func() string { return "" }, sc)

	assert.Equal(t, []string{"status"}, exec.cmds)
}

func TestNewApp_BadCacheDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.CacheDir = file

	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
}

func TestNewApp_OpensCache(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.CacheDir = t.TempDir()

	a, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, a.db)

	var out bytes.Buffer
	a.out = &out
	require.NoError(t, a.Run(context.Background(), []string{"id"}))
	assert.NotEmpty(t, strings.TrimSpace(out.String()))
}
