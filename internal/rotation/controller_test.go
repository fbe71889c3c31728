package rotation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radlink-systems/pacsgate/internal/secrets"
)

func archiveBundle() *secrets.Bundle {
	return &secrets.Bundle{
		Name:     "pacs",
		Provider: "static",
		Values: map[string]string{
			"username": "bridge",
			"password": "hunter2",
			"host":     "pacs.internal",
		},
		FetchedAt: time.Now(),
	}
}

func TestBridgeController_RegenerateConfig(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "bridge.conf.tmpl")
	confPath := filepath.Join(dir, "bridge.conf")
	require.NoError(t, os.WriteFile(tmplPath,
		[]byte("host={{.host}}\nuser={{.username}}\npass={{.password}}\n"), 0o600))

	c := NewBridgeController(BridgeConfig{
		ConfigTemplate: tmplPath,
		ConfigPath:     confPath,
	})

	require.NoError(t, c.RegenerateConfig(context.Background(), archiveBundle()))

	rendered, err := os.ReadFile(confPath)
	require.NoError(t, err)
	assert.Equal(t, "host=pacs.internal\nuser=bridge\npass=hunter2\n", string(rendered))

	_, err = os.Stat(confPath + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive the rename")
}

func TestBridgeController_RegenerateConfigMissingTemplate(t *testing.T) {
	c := NewBridgeController(BridgeConfig{
		ConfigTemplate: filepath.Join(t.TempDir(), "absent.tmpl"),
		ConfigPath:     filepath.Join(t.TempDir(), "bridge.conf"),
	})
	assert.Error(t, c.RegenerateConfig(context.Background(), archiveBundle()))
}

func TestBridgeController_Restart(t *testing.T) {
	tests := []struct {
		name    string
		command []string
		wantErr bool
	}{
		{"successful command", []string{"true"}, false},
		{"failing command", []string{"false"}, true},
		{"no command configured", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBridgeController(BridgeConfig{RestartCommand: tt.command, Timeout: 5 * time.Second})
			err := c.Restart(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBridgeController_ValidateConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bridge" || pass != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewBridgeController(BridgeConfig{EchoURL: srv.URL, Timeout: 5 * time.Second})

	assert.NoError(t, c.ValidateConnection(context.Background(), archiveBundle()))

	stale := archiveBundle()
	stale.Values["password"] = "old-password"
	assert.Error(t, c.ValidateConnection(context.Background(), stale))
}

func TestBridgeController_ValidateConnectionUnreachable(t *testing.T) {
	c := NewBridgeController(BridgeConfig{
		EchoURL: "http://127.0.0.1:1/echo",
		Timeout: time.Second,
	})
	assert.Error(t, c.ValidateConnection(context.Background(), archiveBundle()))
}
