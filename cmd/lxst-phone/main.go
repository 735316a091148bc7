// Command lxst-phone is the host application binding lxst-phone's call
// engine to a local identity, persisted preferences, and a transport
// (spec §6: CLI surface, persisted files, exit codes). Grounded on
// server/main.go's bare flag.String/.Duration wiring and its graceful
// interrupt handling; server/cli.go's subcommand-before-flags dispatch
// shapes --new-identity/--show-identity.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/kc1awv/lxst-phone/internal/callengine"
	"github.com/kc1awv/lxst-phone/internal/clock"
	"github.com/kc1awv/lxst-phone/internal/config"
	"github.com/kc1awv/lxst-phone/internal/directory"
	"github.com/kc1awv/lxst-phone/internal/history"
	"github.com/kc1awv/lxst-phone/internal/identity"
	"github.com/kc1awv/lxst-phone/internal/ratelimit"
	"github.com/kc1awv/lxst-phone/internal/transport"
)

const (
	exitOK             = 0
	exitIdentityError  = 1
	exitTransportError = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitIdentityError
	}

	closeLog, err := configureLogging(flags.logLevel, flags.logFile, flags.noLogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 3
	}
	defer closeLog()

	if flags.newIdentity {
		return doNewIdentity(flags.identityPath)
	}
	if flags.showIdentity {
		return doShowIdentity(flags.identityPath)
	}

	id, err := identity.Load(flags.identityPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "identity error: %v\n", err)
		return exitIdentityError
	}

	cfg := config.Load()
	applyFlagOverrides(&cfg, flags)

	configDir, err := userConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 3
	}

	peerStore := directory.NewFileStore(filepath.Join(configDir, "peers.json"))
	dir := directory.New(clock.Real{}, peerStore)
	if peers, err := peerStore.Load(); err != nil {
		slog.Error("peer directory load failed", "error", err)
	} else {
		dir.LoadAll(peers)
	}

	hist, err := openHistoryStore(flags.historyBackend, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history error: %v\n", err)
		return 3
	}
	defer hist.Close()

	limiter := ratelimit.New(clock.Real{}, cfg.RateLimitMaxPerMinute, cfg.RateLimitMaxPerHour)

	tr, err := newTransport(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "transport init error: %v\n", err)
		return exitTransportError
	}

	engine := callengine.New(tr, clock.Real{}, dir, limiter, hist, id.NodeID, cfg)
	if flags.noAudio {
		engine.DisableAudio()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("lxst-phone: shutting down")
		cancel()
	}()

	slog.Info("lxst-phone: ready", "node_id", id.NodeID, "call_dest", id.CallDest, "display_name", cfg.DisplayName)
	if !cfg.AnnounceEnabled || flags.noAnnounce {
		slog.Info("lxst-phone: announces disabled")
	} else {
		slog.Info("lxst-phone: announce period", "minutes", cfg.AnnouncePeriodMins)
	}

	runEventLoop(ctx, engine)
	return exitOK
}

// runEventLoop drains engine-pushed notifications until ctx is
// cancelled, logging each one (spec §9: "the UI consumes on its own
// loop"; here the log is the only consumer this module provides).
func runEventLoop(ctx context.Context, engine *callengine.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-engine.Events():
			if !ok {
				return
			}
			logEvent(ev)
		}
	}
}

func logEvent(ev callengine.Event) {
	switch ev.Type {
	case callengine.EventIncomingInvite:
		slog.Info("incoming call", "remote", ev.Call.RemoteID, "display_name", ev.Call.DisplayName)
	case callengine.EventStateChanged:
		if ev.Call != nil {
			slog.Info("call state changed", "phase", ev.Phase, "call_id", ev.Call.CallID)
		} else {
			slog.Info("call state changed", "phase", ev.Phase)
		}
	case callengine.EventSASReady:
		slog.Info("media link established", "call_id", ev.Call.CallID, "sas", ev.SAS)
	case callengine.EventWarning:
		slog.Warn("engine warning", "message", ev.Message)
	}
}

func doNewIdentity(path string) int {
	id, err := identity.Generate(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "identity error: %v\n", err)
		return exitIdentityError
	}
	fmt.Printf("node_id:  %s\n", id.NodeID)
	fmt.Printf("call_dest: %s\n", id.CallDest)
	return exitOK
}

func doShowIdentity(path string) int {
	id, err := identity.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "identity error: %v\n", err)
		return exitIdentityError
	}
	fmt.Printf("node_id:  %s\n", id.NodeID)
	fmt.Printf("call_dest: %s\n", id.CallDest)
	return exitOK
}

// newTransport constructs the Transport handed to the call engine. The
// mesh-routing substrate itself is an external collaborator out of this
// module's scope (spec §1); wiring a standalone binary for local
// development uses the same in-process Mock the test suite exercises.
// A production deployment replaces only this call site with a binding
// to the real transport library.
func newTransport(id identity.Identity) (transport.Transport, error) {
	return transport.NewMock(id.CallDest), nil
}

// openHistoryStore opens the call-history backend the --call-history-backend
// flag names. json is the default; sqlite is opt-in for deployments that
// want history queryable alongside other SQLite-backed state.
func openHistoryStore(backend, configDir string) (history.Store, error) {
	switch backend {
	case "sqlite":
		return history.OpenSQLiteStore(filepath.Join(configDir, "call_history.db"))
	default:
		return history.OpenJSONStore(filepath.Join(configDir, "call_history.json"))
	}
}

func userConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	full := filepath.Join(dir, "lxst-phone")
	if err := os.MkdirAll(full, 0o750); err != nil {
		return "", err
	}
	return full, nil
}

func configureLogging(level string, logFile string, noLogFile bool) (func() error, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closer := func() error { return nil }

	if !noLogFile && logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logFile, err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closer = f.Close
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
	return closer, nil
}

func applyFlagOverrides(cfg *config.Config, flags cliFlags) {
	if flags.displayName != "" {
		cfg.DisplayName = flags.displayName
	}
	if flags.inputDevice != unsetDevice {
		cfg.InputDeviceID = flags.inputDevice
	}
	if flags.outputDevice != unsetDevice {
		cfg.OutputDeviceID = flags.outputDevice
	}
	if flags.announcePeriod > 0 {
		cfg.AnnouncePeriodMins = flags.announcePeriod
	}
	if flags.noAnnounce {
		cfg.AnnounceEnabled = false
	}
}
