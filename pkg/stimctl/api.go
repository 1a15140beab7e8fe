// Package stimctl wires the stimulation session coordinator end to end and
// exposes the operations the CLI builds on.
package stimctl

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"stimctl/internal/actuator"
	"stimctl/internal/audit"
	"stimctl/internal/config"
	"stimctl/internal/params"
	"stimctl/internal/platform"
	"stimctl/internal/sensor"
	"stimctl/internal/session"
	"stimctl/internal/tuning"
)

const (
	taskDispatch = "dispatch"
	taskTuning   = "tuning"

	maxDispatchRestarts = 5
)

type Client struct {
	cfg *config.Config
}

func New(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

// SessionRequest parameterizes one coordinator run.
type SessionRequest struct {
	// Keys feeds operator tuning input; nil disables tuning.
	Keys tuning.KeySource
	// Sensor overrides the configured sensor transport, e.g. with stdin.
	// When it is not an io.Writer the peer command channel is disabled.
	Sensor io.ReadCloser
	// DryRun substitutes the no-op actuator adapter for the real device.
	DryRun bool
}

// RunSession runs one full coordinator session: it opens the transports,
// starts the supervised dispatch and tuning tasks and tears everything down
// in the safety order once ctx ends.
func (c *Client) RunSession(ctx context.Context, req SessionRequest) error {
	cfg := c.cfg

	store, err := c.newSessionStore()
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init audit store: %w", err)
	}
	defer func() {
		_ = audit.CloseIfSupported(store)
	}()

	paramStore, err := params.NewStore(cfg.SafetyBounds(), cfg.ChannelDefaults())
	if err != nil {
		return err
	}
	trail := audit.NewTrail(store, uuid.New().String(), audit.WithSnapshot(paramStore.SnapshotAll))

	adapter, closeAdapter, err := c.newAdapter(req.DryRun)
	if err != nil {
		return err
	}
	defer closeAdapter()
	if err := adapter.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize actuator: %w", err)
	}

	transport, closeTransport, err := c.newSensorTransport(req.Sensor)
	if err != nil {
		return err
	}
	defer closeTransport()

	var commander *sensor.Commander
	if w, ok := transport.(io.Writer); ok {
		commander = sensor.NewCommander(w)
	}

	loop, err := session.NewLoop(session.LoopConfig{
		Params:    paramStore,
		Adapter:   adapter,
		Trail:     trail,
		Tick:      cfg.Tick,
		KeepAlive: cfg.KeepAlive,
	})
	if err != nil {
		return err
	}
	coord, err := session.NewCoordinator(session.CoordinatorConfig{
		Loop:          loop,
		Trail:         trail,
		Adapter:       adapter,
		Commander:     commander,
		ImmediatePush: cfg.ImmediatePush,
	})
	if err != nil {
		return err
	}
	dispatcher := session.NewDispatcher(sensor.NewLineReader(transport), coord, trail)

	trail.Log(ctx, "System", "Startup", "session "+trail.SessionID())
	if commander != nil {
		if err := commander.Run(); err != nil {
			trail.Log(ctx, "System", "PeerError", err.Error())
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sup := platform.NewSupervisorWithHooks(platform.Policy{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		MaxRestarts:    maxDispatchRestarts,
	}, platform.Hooks{
		OnRestart: func(name string, err error, restarts int) {
			trail.Log(runCtx, "System", "TaskRestart", fmt.Sprintf("%s: %v (restart %d)", name, err, restarts))
		},
		OnPermanentFailure: func(name string, err error, restarts int) {
			trail.Log(runCtx, "System", "TaskFailed", fmt.Sprintf("%s: %v after %d restarts", name, err, restarts))
			cancel()
		},
	})

	if err := sup.Start(taskDispatch, dispatcher.Run); err != nil {
		return err
	}
	if req.Keys != nil {
		router, err := tuning.NewRouter(tuning.RouterConfig{
			Params:     paramStore,
			Trail:      trail,
			Bindings:   cfg.TuningBindings(),
			Mode:       cfg.EdgeMode(),
			Debounce:   cfg.Debounce,
			ReleaseKey: cfg.ReleaseRune(),
		})
		if err != nil {
			return err
		}
		if err := sup.Start(taskTuning, func(ctx context.Context) error {
			return router.Run(ctx, req.Keys)
		}); err != nil {
			return err
		}
	}

	<-runCtx.Done()
	sup.StopAll()

	// Teardown order matters: stop the loop and send the off commands
	// before the transports go away, then flush the trail.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	coord.Shutdown(shutdownCtx)
	if err := trail.Flush(); err != nil {
		return fmt.Errorf("flush audit trail: %w", err)
	}
	return nil
}

// Sessions lists the persisted sessions. Only backends that keep records
// readable support it.
func (c *Client) Sessions(ctx context.Context) ([]audit.SessionInfo, error) {
	store, reader, err := c.openReader(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = audit.CloseIfSupported(store)
	}()
	return reader.ListSessions(ctx)
}

// Export writes one persisted session out as a CSV log file under dir and
// returns the file path.
func (c *Client) Export(ctx context.Context, sessionID, dir string) (string, error) {
	store, reader, err := c.openReader(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = audit.CloseIfSupported(store)
	}()

	records, err := reader.ListBySession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no records for session %s", sessionID)
	}

	path := audit.SessionFilename(dir, records[0].At)
	out := audit.NewCSVStore(path)
	if err := out.Init(ctx); err != nil {
		return "", err
	}
	for _, rec := range records {
		if err := out.Append(ctx, rec); err != nil {
			_ = out.Close()
			return "", err
		}
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Client) newSessionStore() (audit.Store, error) {
	switch c.cfg.StoreKind {
	case "csv":
		return audit.NewCSVStore(audit.SessionFilename(c.cfg.CSVDir, time.Now())), nil
	default:
		return audit.NewStore(c.cfg.StoreKind, c.cfg.DBPath)
	}
}

func (c *Client) openReader(ctx context.Context) (audit.Store, audit.Reader, error) {
	if c.cfg.StoreKind != "sqlite" {
		return nil, nil, fmt.Errorf("store %q does not keep readable records; use the sqlite store", c.cfg.StoreKind)
	}
	store, err := audit.NewStore(c.cfg.StoreKind, c.cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, nil, err
	}
	reader, ok := store.(audit.Reader)
	if !ok {
		_ = audit.CloseIfSupported(store)
		return nil, nil, fmt.Errorf("store %q does not support listing", c.cfg.StoreKind)
	}
	return store, reader, nil
}

func (c *Client) newAdapter(dryRun bool) (actuator.Adapter, func(), error) {
	if dryRun || c.cfg.ActuatorPort == "" {
		return actuator.NopAdapter{}, func() {}, nil
	}
	port, err := sensor.Open(sensor.OpenOptions{
		Name: c.cfg.ActuatorPort,
		Baud: c.cfg.ActuatorBaud,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open actuator port: %w", err)
	}
	adapter := actuator.NewSerialAdapter(port)
	return adapter, func() { _ = adapter.Close() }, nil
}

func (c *Client) newSensorTransport(override io.ReadCloser) (io.Reader, func(), error) {
	if override != nil {
		return override, func() { _ = override.Close() }, nil
	}
	if c.cfg.SensorPort == "" {
		return nil, nil, fmt.Errorf("sensor port is not configured")
	}
	port, err := sensor.Open(sensor.OpenOptions{
		Name:        c.cfg.SensorPort,
		Baud:        c.cfg.SensorBaud,
		ReadTimeout: c.cfg.ReadTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open sensor port: %w", err)
	}
	return port, func() { _ = port.Close() }, nil
}
