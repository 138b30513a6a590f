package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// display is a virtual X server for headful sessions on machines without
// a screen.
type display struct {
	name   string
	cmd    *exec.Cmd
	logger *slog.Logger
}

// socketPath is where Xvfb creates the socket of display name (":99").
func socketPath(name string) (string, error) {
	num, ok := strings.CutPrefix(name, ":")
	if !ok || num == "" || strings.Trim(num, "0123456789") != "" {
		return "", fmt.Errorf("browser: bad display %q", name)
	}
	return "/tmp/.X11-unix/X" + num, nil
}

// startDisplay launches Xvfb and waits until its socket accepts clients.
func startDisplay(ctx context.Context, name string, logger *slog.Logger) (*display, error) {
	sock, err := socketPath(name)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("Xvfb", name, "-screen", "0", "1600x1000x24", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("browser: start Xvfb: %w", err)
	}
	d := &display{name: name, cmd: cmd, logger: logger}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, err := os.Stat(sock); err == nil {
			logger.Info("browser: display ready", "display", name, "pid", cmd.Process.Pid)
			return d, nil
		}
		select {
		case <-ctx.Done():
			d.stop()
			return nil, fmt.Errorf("browser: display %s not ready: %w", name, ctx.Err())
		case <-tick.C:
		}
	}
}

func (d *display) stop() {
	if d == nil || d.cmd.Process == nil {
		return
	}
	d.cmd.Process.Kill()
	d.cmd.Wait()
	d.logger.Info("browser: display stopped", "display", d.name)
}
