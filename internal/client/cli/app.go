package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/dmitrijs2005/tiergate/internal/cache"
	"github.com/dmitrijs2005/tiergate/internal/client/client"
	"github.com/dmitrijs2005/tiergate/internal/client/config"
	"github.com/dmitrijs2005/tiergate/internal/client/services"
	"github.com/dmitrijs2005/tiergate/internal/filex"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const (
	cacheFileName = "cache.db"
	pingTimeout   = 3 * time.Second
)

type App struct {
	config *config.Config
	svc    services.TierService
	db     *sql.DB
	out    io.Writer
	reader *bufio.Reader
	clock  quartz.Clock

	mu   sync.Mutex
	mode Mode
}

// NewApp opens the local cache under c.CacheDir and connects the API client.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	dir, err := filex.EnsureSubdDir(c.CacheDir)
	if err != nil {
		return nil, err
	}

	db, store, err := cache.Open(ctx, filepath.Join(dir, cacheFileName))
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}

	apiClient, err := client.NewTierClient(c.ServerEndpointAddr, client.Options{
		RequestTimeout:  c.RequestTimeout,
		RetryMaxElapsed: c.RetryMaxElapsed,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := newApp(c, services.NewTierService(apiClient, store), os.Stdout, os.Stdin, quartz.NewReal())
	a.db = db
	return a, nil
}

func newApp(c *config.Config, svc services.TierService, out io.Writer, in io.Reader, clock quartz.Clock) *App {
	return &App{
		config: c,
		svc:    svc,
		out:    out,
		reader: bufio.NewReader(in),
		clock:  clock,
	}
}

// Run executes a single command when args names one, otherwise it starts
// the interactive shell and blocks until the user exits.
func (a *App) Run(ctx context.Context, args []string) error {
	defer a.close(ctx)

	if len(args) > 0 {
		return a.Execute(ctx, args[0], args[1:])
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	fmt.Fprintln(a.out, "Welcome to TierGate CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
	return nil
}

func (a *App) close(ctx context.Context) {
	_ = a.svc.Close(ctx)
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		printlnFn(fmt.Sprintf("Switched to %s mode", mode))
	}
}

func (a *App) getStatus() string {
	if m := a.Mode(); m != "" {
		return fmt.Sprintf("(%s)", m)
	}
	return ""
}

func (a *App) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := a.svc.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

// StartOnlineStatusWatcher probes the server every interval and flips the
// shell between online and offline mode. It returns when ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {

	ticker := a.clock.NewTicker(interval, "cli", "online")
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}
