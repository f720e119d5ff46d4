package session

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/bounter/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	snapshotExt = ".json"
	journalExt  = ".jsonl"
)

// Store persists scan snapshots as JSON files and keeps an append-only
// JSONL journal of commands while a scan is running.
type Store struct {
	dir        string
	prefix     string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewStore creates dir if needed.
func NewStore(dir, prefix string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("report directory is required")
	}
	if prefix == "" {
		prefix = "scan"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &Store{
		dir:        dir,
		prefix:     prefix,
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the report directory.
func (s *Store) Dir() string { return s.dir }

// NewKey returns a report key for a scan started at t.
func (s *Store) NewKey(t time.Time) string {
	return fmt.Sprintf("%s-%s", s.prefix, t.UTC().Format("20060102-150405"))
}

func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case strings.Contains(key, ".."):
		return fmt.Errorf("%w: contains '..'", ErrInvalidKey)
	case strings.ContainsAny(key, "/\\"):
		return fmt.Errorf("%w: contains path separators", ErrInvalidKey)
	case strings.Contains(key, "\x00"):
		return fmt.Errorf("%w: contains null bytes", ErrInvalidKey)
	}
	return nil
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.writeLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.writeLocks[key] = lock
	}
	return lock
}

// SnapshotPath returns where the snapshot for key lives.
func (s *Store) SnapshotPath(key string) string {
	return filepath.Join(s.dir, key+snapshotExt)
}

func (s *Store) journalPath(key string) string {
	return filepath.Join(s.dir, key+journalExt)
}

// SaveSnapshot atomically writes snap under key and returns the file path.
func (s *Store) SaveSnapshot(ctx context.Context, key string, snap Snapshot) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "report.save", attribute.String("report_key", key))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if err := validateKey(key); err != nil {
		tracing.Fail(span, err)
		return "", err
	}

	data, err := MarshalSnapshot(snap)
	if err != nil {
		tracing.Fail(span, err)
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := s.SnapshotPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		tracing.Fail(span, err)
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		tracing.Fail(span, err)
		return "", fmt.Errorf("failed to replace snapshot: %w", err)
	}

	logger.Info().Str("path", path).Int("commands", len(snap.Commands)).Msg("Report saved")
	return path, nil
}

// LoadSnapshot reads the snapshot stored under key.
func (s *Store) LoadSnapshot(ctx context.Context, key string) (Snapshot, error) {
	_, span := tracing.StartSpan(ctx, "report.load", attribute.String("report_key", key))
	defer span.End()

	if err := validateKey(key); err != nil {
		return Snapshot{}, err
	}
	data, err := os.ReadFile(s.SnapshotPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrReportNotFound, key)
		}
		tracing.Fail(span, err)
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return UnmarshalSnapshot(data)
}

// AppendCommand appends rec to the journal for key and syncs it to disk.
func (s *Store) AppendCommand(ctx context.Context, key string, rec CommandRecord) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(s.journalPath(key), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("report_key", key).
		Str("tool", rec.ToolName).
		Msg("Command journaled")
	return nil
}

// LoadJournal reads the command journal for key, skipping corrupt lines.
func (s *Store) LoadJournal(key string) ([]CommandRecord, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	file, err := os.Open(s.journalPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return []CommandRecord{}, nil
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	records := []CommandRecord{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec CommandRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Warn().Str("report_key", key).Int("line", lineNum).Err(err).Msg("Skipping corrupt journal line")
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return records, nil
}

// List returns the keys of all stored snapshots, oldest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read report directory: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(entry.Name(), snapshotExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the snapshot and journal for key.
func (s *Store) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	for _, path := range []string{s.SnapshotPath(key), s.journalPath(key)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err)
		}
	}

	s.locksMu.Lock()
	delete(s.writeLocks, key)
	s.locksMu.Unlock()
	return nil
}
