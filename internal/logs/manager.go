// Package logs implements the per-process stdout/stderr log files: append,
// rotate, and tail, built on the teacher's own rotation library,
// natefinch/lumberjack, generalized from one supervisor-wide log to one
// pair of files per supervised process.
package logs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
)

const (
	defaultRotateBytes = 10 * 1024 * 1024 // 10 MiB
	defaultRotateKeep = 5
)

// Manager creates and rotates per-process stdout/stderr files and serves
// tail reads.
type Manager struct {
	dir string
	rotateBytes int64
	rotateKeep int

	mu sync.Mutex
	writers map[string]*pair
}

type pair struct {
	stdout *lumberjack.Logger
	stderr *lumberjack.Logger
}

// Options configures log_rotate_bytes / log_rotate_keep from the
// configuration file.
type Options struct {
	Dir string
	RotateBytes int64
	RotateKeep int
}

// New constructs a Manager rooted at opts.Dir.
func New(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		opts.Dir = "./log/processguard"
	}
	if opts.RotateBytes <= 0 {
		opts.RotateBytes = defaultRotateBytes
	}
	if opts.RotateKeep <= 0 {
		opts.RotateKeep = defaultRotateKeep
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", opts.Dir, err)
	}
	return &Manager{
		dir: opts.Dir,
		rotateBytes: opts.RotateBytes,
		rotateKeep: opts.RotateKeep,
		writers: map[string]*pair{},
	}, nil
}

// Writers returns the stdout/stderr writers for name, creating them on
// first use. The returned writers are append-only and rotate on their own
// once log_rotate_bytes is exceeded. lumberjack sizes files in whole MiB,
// so log_rotate_bytes is rounded down to whole MiB, with a minimum of 1 MiB.
func (m *Manager) Writers(name string, explicitPath string) (stdout, stderr *lumberjack.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.writers[name]; ok {
		return p.stdout, p.stderr
	}

	outPath := explicitPath
	errPath := explicitPath
	if outPath == "" {
		outPath = filepath.Join(m.dir, name+".out")
		errPath = filepath.Join(m.dir, name+".err")
	} else {
		// An explicit log target collapses stdout/stderr into the same file,
		// mirroring the teacher's single-logger-for-both-streams pattern.
		errPath = outPath
	}

	maxSizeMB := int(m.rotateBytes / (1024 * 1024))
	if maxSizeMB < 1 {
		maxSizeMB = 1
	}
	p := &pair{
		stdout: &lumberjack.Logger{
			Filename: outPath,
			MaxSize: maxSizeMB,
			MaxBackups: m.rotateKeep,
			Compress: false,
		},
		stderr: &lumberjack.Logger{
			Filename: errPath,
			MaxSize: maxSizeMB,
			MaxBackups: m.rotateKeep,
			Compress: false,
		},
	}
	m.writers[name] = p
	return p.stdout, p.stderr
}

// Close flushes and releases the writer pair for name.
func (m *Manager) Close(name string) error {
	m.mu.Lock()
	p, ok := m.writers[name]
	delete(m.writers, name)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	errOut := p.stdout.Close()
	errErr := p.stderr.Close()
	if errOut != nil {
		return errOut
	}
	return errErr
}

// Tail returns the last n lines of name's stdout, spanning into the most
// recently rotated backup if the current file is shorter than n lines.
func (m *Manager) Tail(name string, n int) ([]string, error) {
	m.mu.Lock()
	p, ok := m.writers[name]
	m.mu.Unlock()
	if !ok {
		return nil, &os.PathError{Op: "tail", Path: name, Err: os.ErrNotExist}
	}

	lines, err := tailFile(p.stdout.Filename, n)
	if err != nil {
		return nil, err
	}
	if len(lines) >= n {
		return lines, nil
	}

	// lumberjack names a backup of dir/name.out dir/name-<timestamp>.out.
	const backupTimeFormat = "2006-01-02T15-04-05.000"
	ext := filepath.Ext(p.stdout.Filename)
	prefix := strings.TrimSuffix(p.stdout.Filename, ext) + "-"
	candidates, _ := filepath.Glob(prefix + "*" + ext)
	var backups []string
	for _, c := range candidates {
		stamp := strings.TrimSuffix(strings.TrimPrefix(c, prefix), ext)
		if _, err := time.Parse(backupTimeFormat, stamp); err == nil {
			backups = append(backups, c)
		}
	}
	if len(backups) == 0 {
		return lines, nil
	}
	prevPath := backups[len(backups)-1]
	prevLines, err := tailFile(prevPath, n-len(lines))
	if err != nil {
		return lines, nil
	}
	return append(prevLines, lines...), nil
}

func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, scanner.Err()
}
