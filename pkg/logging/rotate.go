package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// PersistentLogger is an io.Writer that rotates its file by size and prunes
// old rotations by age and count.
type PersistentLogger struct {
	mu          sync.Mutex
	config      Config
	currentFile *os.File
	currentSize int64
	logDir      string
	base        string
	stop        chan struct{}
}

// NewPersistentLogger opens cfg.FilePath for appending.
func NewPersistentLogger(cfg Config) (*PersistentLogger, error) {
	logDir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	pl := &PersistentLogger{
		config: cfg,
		logDir: logDir,
		base:   strings.TrimSuffix(filepath.Base(cfg.FilePath), filepath.Ext(cfg.FilePath)),
		stop:   make(chan struct{}),
	}
	if err := pl.openFile(); err != nil {
		return nil, err
	}

	go pl.cleanupRoutine()
	return pl, nil
}

// Write implements io.Writer.
func (pl *PersistentLogger) Write(p []byte) (int, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.currentFile == nil {
		return 0, os.ErrClosed
	}
	if pl.config.MaxSizeMB > 0 && pl.currentSize+int64(len(p)) > int64(pl.config.MaxSizeMB)*1024*1024 {
		if err := pl.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := pl.currentFile.Write(p)
	pl.currentSize += int64(n)
	return n, err
}

func (pl *PersistentLogger) openFile() error {
	file, err := os.OpenFile(pl.config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	pl.currentFile = file
	pl.currentSize = info.Size()
	return nil
}

func (pl *PersistentLogger) rotate() error {
	if pl.currentFile != nil {
		pl.currentFile.Close()
	}

	stamp := time.Now().Format("2006-01-02_15-04-05.000")
	rotated := filepath.Join(pl.logDir, fmt.Sprintf("%s_%s.log", pl.base, stamp))
	if err := os.Rename(pl.config.FilePath, rotated); err != nil {
		return pl.openFile()
	}
	if pl.config.Compress {
		go compressFile(rotated)
	}
	return pl.openFile()
}

func compressFile(path string) {
	src, err := os.Open(path)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		os.Remove(path + ".gz")
		return
	}
	if err := gz.Close(); err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

func (pl *PersistentLogger) cleanupRoutine() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	pl.cleanup()
	for {
		select {
		case <-pl.stop:
			return
		case <-ticker.C:
			pl.cleanup()
		}
	}
}

// Rotated lists rotated files, newest first.
func (pl *PersistentLogger) Rotated() []string {
	files, err := filepath.Glob(filepath.Join(pl.logDir, pl.base+"_*.log*"))
	if err != nil {
		return nil
	}
	type fileInfo struct {
		path    string
		modTime time.Time
	}
	infos := make([]fileInfo, 0, len(files))
	for _, f := range files {
		st, err := os.Stat(f)
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{path: f, modTime: st.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].modTime.After(infos[j].modTime)
	})
	out := make([]string, len(infos))
	for i, fi := range infos {
		out[i] = fi.path
	}
	return out
}

func (pl *PersistentLogger) cleanup() {
	now := time.Now()
	for i, path := range pl.Rotated() {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		if pl.config.MaxAgeDays > 0 && now.Sub(st.ModTime()) > time.Duration(pl.config.MaxAgeDays)*24*time.Hour {
			os.Remove(path)
			continue
		}
		if pl.config.MaxBackups > 0 && i >= pl.config.MaxBackups {
			os.Remove(path)
		}
	}
}

// Close closes the current file and stops the cleanup routine.
func (pl *PersistentLogger) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	select {
	case <-pl.stop:
	default:
		close(pl.stop)
	}
	if pl.currentFile != nil {
		err := pl.currentFile.Close()
		pl.currentFile = nil
		return err
	}
	return nil
}
