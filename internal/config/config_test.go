package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
log_level: debug
monitor_interval: 5
processes:
  - name: web
    command: "python app.py"
    working_dir: "."
    action: disable
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Processes, 1)
	require.Equal(t, "web", cfg.Processes[0].Name)
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"processes": [
			{"name": "web", "command": "x", "working_dir": "."},
			{"name": "web", "command": "y", "working_dir": "."}
		]
	}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsUnknownDependency(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"processes": [
			{"name": "web", "command": "x", "working_dir": ".", "dependencies": ["db"]}
		]
	}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"processes": [
			{"name": "web", "command": "x", "working_dir": ".", "cpu_threshold_percent": 150}
		]
	}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsCycle(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"processes": [
			{"name": "a", "command": "x", "working_dir": ".", "dependencies": ["b"]},
			{"name": "b", "command": "x", "working_dir": ".", "dependencies": ["a"]}
		]
	}`)
	_, err := Load(path)
	require.Error(t, err)
}
