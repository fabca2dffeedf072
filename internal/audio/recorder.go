package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// ExecRecorder implements domain.Recorder by running an external capture
// command (arecord by default) that writes to the artifact path. The codec
// internals stay behind the binary; the pipeline only sees start/stop.
type ExecRecorder struct {
	argv   []string // capture command; the artifact path is appended
	logger *slog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// ExecRecorderConfig configures an ExecRecorder. An empty Argv selects
// arecord with 16-bit 44.1kHz WAV output.
type ExecRecorderConfig struct {
	Argv   []string
	Logger *slog.Logger
}

func NewExecRecorder(cfg ExecRecorderConfig) *ExecRecorder {
	if len(cfg.Argv) == 0 {
		cfg.Argv = []string{"arecord", "-q", "-f", "cd", "-t", "wav"}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ExecRecorder{
		argv:   cfg.Argv,
		logger: cfg.Logger.With("component", "recorder"),
	}
}

// Granted reports whether the capture binary is available. This is the
// capability check; platform permission dialogs are outside the core.
func (r *ExecRecorder) Granted(ctx context.Context) bool {
	_, err := exec.LookPath(r.argv[0])
	return err == nil
}

// Start launches the capture process writing to path.
func (r *ExecRecorder) Start(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return fmt.Errorf("recorder already running")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	argv := append(append([]string{}, r.argv...), path)
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	r.cmd = cmd
	r.logger.Debug("capture process started", "pid", cmd.Process.Pid, "path", path)
	return nil
}

// Stop interrupts the capture process and waits for it to exit, which is
// when the artifact is known to be flushed and closed. Only then may the
// caller read the file.
func (r *ExecRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	cmd := r.cmd
	r.cmd = nil
	r.mu.Unlock()

	if cmd == nil {
		return fmt.Errorf("recorder not running")
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	case err := <-done:
		// arecord exits non-zero on SIGINT; the artifact is still valid.
		if err != nil {
			r.logger.Debug("capture process exit", "err", err)
		}
		return nil
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		<-done
		return fmt.Errorf("capture process did not exit after interrupt")
	}
}
