// Package envfile reads and writes flat KEY=VALUE environment files.
//
// A Record keeps keys in insertion order so generated files are stable and
// readable. Files are written atomically: the content goes to a temporary file
// in the destination directory which is then renamed over the target.
package envfile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// Entry is a single KEY=VALUE pair.
type Entry struct {
	Key   string
	Value string
}

// Record is an ordered set of entries with unique keys.
type Record struct {
	entries []Entry
}

// New returns a record holding entries in order. Later duplicates replace
// earlier values in place.
func New(entries ...Entry) *Record {
	r := &Record{}
	for _, e := range entries {
		r.Set(e.Key, e.Value)
	}
	return r
}

// Set replaces the value for key, or appends it if absent.
func (r *Record) Set(key, value string) {
	for i := range r.entries {
		if r.entries[i].Key == key {
			r.entries[i].Value = value
			return
		}
	}
	r.entries = append(r.entries, Entry{Key: key, Value: value})
}

// Get returns the value for key.
func (r *Record) Get(key string) (string, bool) {
	for _, e := range r.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Keys returns keys in order.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.entries))
	for i, e := range r.entries {
		keys[i] = e.Key
	}
	return keys
}

// Entries returns a copy of the entries in order.
func (r *Record) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Len returns the number of entries.
func (r *Record) Len() int {
	return len(r.entries)
}

// Merge copies entries from other that are not already present in r.
// Existing values in r win.
func (r *Record) Merge(other *Record) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		if !r.Has(e.Key) {
			r.entries = append(r.entries, e)
		}
	}
}

// Environ returns the entries as KEY=VALUE strings, suitable for a container
// or process environment.
func (r *Record) Environ() []string {
	env := make([]string, len(r.entries))
	for i, e := range r.entries {
		env[i] = e.Key + "=" + e.Value
	}
	return env
}

// Marshal renders the record, one quoted line per entry, in order.
func (r *Record) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range r.entries {
		line, err := godotenv.Marshal(map[string]string{e.Key: e.Value})
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", e.Key, err)
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// keyPattern finds assignment keys so that parsed values can be returned in
// file order. Values themselves are decoded by godotenv.
var keyPattern = regexp.MustCompile(`^\s*(?:export\s+)?([A-Za-z_][A-Za-z0-9_.]*)\s*[=:]`)

// Parse decodes env file content.
func Parse(data []byte) (*Record, error) {
	values, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, err
	}

	r := &Record{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		m := keyPattern.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		if v, ok := values[m[1]]; ok && !r.Has(m[1]) {
			r.Set(m[1], v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	// Multi-line values can hide keys from the line scan; keep them anyway.
	for k, v := range values {
		if !r.Has(k) {
			r.Set(k, v)
		}
	}
	return r, nil
}

// Read parses the env file at path.
func Read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return r, nil
}

// Write atomically replaces path with the rendered record using perm.
func Write(path string, r *Record, perm os.FileMode) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// WriteIfAbsent writes r to path only when path does not exist yet.
// It reports whether the file was created.
func WriteIfAbsent(path string, r *Record, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("checking %s: %w", path, err)
	}
	if err := Write(path, r, perm); err != nil {
		return false, err
	}
	return true, nil
}

// Redacted returns a copy of the record with values of the given keys masked.
func (r *Record) Redacted(keys ...string) *Record {
	out := &Record{entries: r.Entries()}
	for i, e := range out.entries {
		for _, k := range keys {
			if e.Key == k && e.Value != "" {
				out.entries[i].Value = mask(e.Value)
			}
		}
	}
	return out
}

func mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
