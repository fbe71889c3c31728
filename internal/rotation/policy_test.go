package rotation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicy_Embedded(t *testing.T) {
	p, err := LoadPolicy()
	require.NoError(t, err)

	assert.Equal(t, ClassRestart, p.Classify("pacsgate/pacs"))
	assert.Equal(t, ClassReconfigure, p.Classify("pacsgate/webhook"))
	assert.Equal(t, ClassReconfigure, p.Classify("pacsgate/datastore"))
	assert.Equal(t, ClassReconfigure, p.Classify("pacsgate/objectstore"))
}

func TestPolicy_Classify(t *testing.T) {
	p, err := parsePolicy([]byte(`
paths:
  "app/bridge":
    class: restart
  "app/bridge/readonly":
    class: reconfigure
default_class: reconfigure
`))
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		expected Class
	}{
		{"exact match", "app/bridge", ClassRestart},
		{"longer exact match wins", "app/bridge/readonly", ClassReconfigure},
		{"prefix match", "app/bridge/primary", ClassRestart},
		{"longest prefix wins", "app/bridge/readonly/replica", ClassReconfigure},
		{"segment aligned only", "app/bridgex", ClassReconfigure},
		{"unknown path uses default", "app/other", ClassReconfigure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, p.Classify(tt.path))
		})
	}
}

func TestParsePolicy_DefaultsToReconfigure(t *testing.T) {
	p, err := parsePolicy([]byte(`paths: {}`))
	require.NoError(t, err)
	assert.Equal(t, ClassReconfigure, p.Classify("anything"))
}

func TestParsePolicy_RejectsUnknownClass(t *testing.T) {
	_, err := parsePolicy([]byte(`
paths:
  "app/x":
    class: reboot
`))
	assert.Error(t, err)
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
paths:
  "custom/secret":
    class: restart
default_class: reconfigure
`), 0o600))

	p, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, ClassRestart, p.Classify("custom/secret"))

	_, err = LoadPolicyFile(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}
