package rotation

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"text/template"
	"time"

	"github.com/radlink-systems/pacsgate/internal/secrets"
)

// ArchiveController manages the subordinate archive bridge, the process that
// holds the authenticated connection to the imaging archive.
type ArchiveController interface {
	// RegenerateConfig writes a fresh bridge configuration from the current
	// archive credential bundle.
	RegenerateConfig(ctx context.Context, bundle *secrets.Bundle) error

	// Restart relaunches the bridge so it picks up the regenerated
	// configuration.
	Restart(ctx context.Context) error

	// ValidateConnection checks that the existing bridge connection still
	// authenticates against the archive with the current credentials. Used
	// as the fallback when a restart fails and the archive supports hot
	// credential swap.
	ValidateConnection(ctx context.Context, bundle *secrets.Bundle) error
}

// BridgeConfig configures the process-backed controller.
type BridgeConfig struct {
	// ConfigTemplate is the path to the bridge config template. It is
	// rendered with the bundle values as template data.
	ConfigTemplate string

	// ConfigPath is where the rendered configuration is written.
	ConfigPath string

	// RestartCommand relaunches the bridge, e.g.
	// ["systemctl", "restart", "pacs-bridge"].
	RestartCommand []string

	// EchoURL is the archive's authenticated echo endpoint, used to validate
	// that a connection with the current credentials succeeds.
	EchoURL string

	// Timeout bounds the restart command and the validation request.
	Timeout time.Duration
}

// BridgeController is the process-backed ArchiveController. It renders the
// bridge configuration, relaunches the bridge via a configured command, and
// validates connectivity over the archive's echo endpoint.
type BridgeController struct {
	cfg        BridgeConfig
	httpClient *http.Client
}

// NewBridgeController creates a controller for the archive bridge process.
func NewBridgeController(cfg BridgeConfig) *BridgeController {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &BridgeController{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// RegenerateConfig implements ArchiveController.
func (c *BridgeController) RegenerateConfig(ctx context.Context, bundle *secrets.Bundle) error {
	tmpl, err := template.ParseFiles(c.cfg.ConfigTemplate)
	if err != nil {
		return fmt.Errorf("parse bridge config template: %w", err)
	}

	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, bundle.Values); err != nil {
		return fmt.Errorf("render bridge config: %w", err)
	}

	// Write then rename so the bridge never reads a torn config file.
	tmp := c.cfg.ConfigPath + ".tmp"
	if err := os.WriteFile(tmp, rendered.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write bridge config: %w", err)
	}
	if err := os.Rename(tmp, c.cfg.ConfigPath); err != nil {
		return fmt.Errorf("install bridge config: %w", err)
	}
	return nil
}

// Restart implements ArchiveController.
func (c *BridgeController) Restart(ctx context.Context) error {
	if len(c.cfg.RestartCommand) == 0 {
		return fmt.Errorf("no restart command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cfg.RestartCommand[0], c.cfg.RestartCommand[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("bridge restart failed: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// ValidateConnection implements ArchiveController.
func (c *BridgeController) ValidateConnection(ctx context.Context, bundle *secrets.Bundle) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.EchoURL, nil)
	if err != nil {
		return fmt.Errorf("build echo request: %w", err)
	}

	username, _ := bundle.Value("username")
	password, _ := bundle.Value("password")
	req.SetBasicAuth(username, password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("archive echo failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("archive echo returned %s", resp.Status)
	}
	return nil
}
