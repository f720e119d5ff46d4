package session

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultRetention is how long reports are kept by `bounter reports prune`.
const DefaultRetention = 30 * 24 * time.Hour

// PruneStats summarizes a prune run.
type PruneStats struct {
	Scanned int
	Deleted int
	Kept    int
}

// Prune deletes reports whose snapshot is older than maxAge. Orphan
// journals left by interrupted scans are pruned by the same rule.
func (s *Store) Prune(maxAge time.Duration, now time.Time) (PruneStats, error) {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}

	keys, err := s.keysWithAnyFile()
	if err != nil {
		return PruneStats{}, err
	}

	var stats PruneStats
	for _, key := range keys {
		stats.Scanned++
		modified, err := s.lastModified(key)
		if err != nil {
			log.Warn().Str("report_key", key).Err(err).Msg("Failed to stat report")
			stats.Kept++
			continue
		}
		if now.Sub(modified) < maxAge {
			stats.Kept++
			continue
		}
		if err := s.Delete(key); err != nil {
			log.Error().Str("report_key", key).Err(err).Msg("Failed to delete report")
			stats.Kept++
			continue
		}
		stats.Deleted++
		log.Debug().Str("report_key", key).Time("modified", modified).Msg("Report pruned")
	}

	if stats.Deleted > 0 {
		log.Info().Int("deleted", stats.Deleted).Msg("Pruned old reports")
	}
	return stats, nil
}

func (s *Store) keysWithAnyFile() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read report directory: %w", err)
	}
	seen := make(map[string]struct{})
	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		var key string
		switch {
		case strings.HasSuffix(name, journalExt):
			key = strings.TrimSuffix(name, journalExt)
		case strings.HasSuffix(name, snapshotExt):
			key = strings.TrimSuffix(name, snapshotExt)
		default:
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}

// lastModified returns the newest modification time of the key's files.
func (s *Store) lastModified(key string) (time.Time, error) {
	var newest time.Time
	found := false
	for _, path := range []string{s.SnapshotPath(key), s.journalPath(key)} {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return time.Time{}, err
		}
		found = true
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	if !found {
		return time.Time{}, fmt.Errorf("%w: %s", ErrReportNotFound, key)
	}
	return newest, nil
}
