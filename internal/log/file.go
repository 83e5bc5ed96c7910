package log

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// DailyFile is an io.Writer that appends to DIR/YYYY-MM-DD.jsonl, switching
// files when the date changes and keeping DIR/latest pointed at the current one.
type DailyFile struct {
	dir string

	mu   sync.Mutex
	f    *os.File
	date string
}

// NewDailyFile opens today's file in dir, creating dir if needed.
func NewDailyFile(dir string) (*DailyFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating debug log dir: %w", err)
	}
	d := &DailyFile{dir: dir}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.openLocked(time.Now().Format(dayLayout)); err != nil {
		return nil, err
	}
	return d, nil
}

// Write implements io.Writer.
func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if today := time.Now().Format(dayLayout); today != d.date {
		if err := d.openLocked(today); err != nil {
			return 0, err
		}
	}
	return d.f.Write(p)
}

// Close closes the current file.
func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *DailyFile) openLocked(date string) error {
	if d.f != nil {
		d.f.Close()
	}
	name := date + ".jsonl"
	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	d.f = f
	d.date = date
	d.pointLatest(name)
	return nil
}

// pointLatest swaps DIR/latest to name via a temporary symlink and rename.
// Failures are ignored; the symlink is a convenience.
func (d *DailyFile) pointLatest(name string) {
	link := filepath.Join(d.dir, "latest")
	tmp := link + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(name, tmp); err != nil {
		return
	}
	_ = os.Rename(tmp, link)
}

var dailyName = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.jsonl$`)

// Cleanup deletes daily files in dir older than retentionDays.
func Cleanup(dir string, retentionDays int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, e := range entries {
		if e.IsDir() || !dailyName.MatchString(e.Name()) {
			continue
		}
		day, err := time.Parse(dayLayout, e.Name()[:len(dayLayout)])
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}
