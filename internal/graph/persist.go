package graph

import (
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// schemaVersion identifies the shape of persisted graph snapshots.
const schemaVersion = 1

const snapshotFileName = "graph.gob"

// Header describes a persisted graph snapshot, enough to decide whether
// two tiers' snapshots can be reconciled without a full reindex.
type Header struct {
	SchemaVersion     int
	CreatedAt         time.Time
	SymbolCount       int
	RelationshipCount int
	FileCount         int
}

type persistedSnapshot struct {
	Header Header
	Graph  snapshot
}

// StoreConfig configures a two-tier, on-disk relationship graph.
type StoreConfig struct {
	LocalDir       string
	GlobalDir      string
	StaleThreshold time.Duration // T_stale, default 24h
}

// Store wraps a Graph with two-tier persistence and open-time
// reconciliation, mirroring the content store's protocol (spec §4.1)
// applied to the relationship graph.
type Store struct {
	cfg       StoreConfig
	activeDir string
	graph     *Graph
	header    Header
	lock      *openLock
}

// Open reconciles the local and global tiers and returns a store whose
// Graph is ready to serve requests.
func Open(cfg StoreConfig) (*Store, error) {
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 24 * time.Hour
	}
	if cfg.LocalDir == "" {
		return nil, fmt.Errorf("graph store requires a local directory")
	}

	lock := newOpenLock(cfg.LocalDir)
	if err := lock.Lock(); err != nil {
		return nil, err
	}

	activeDir, err := reconcileTiers(cfg)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	s := &Store{cfg: cfg, activeDir: activeDir, lock: lock, graph: New()}
	if err := s.openActive(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *Store) openActive() error {
	if err := os.MkdirAll(s.activeDir, 0o755); err != nil {
		return fmt.Errorf("graph: create tier directory: %w", err)
	}

	snap, err := loadSnapshot(filepath.Join(s.activeDir, snapshotFileName))
	if err != nil {
		snap = persistedSnapshot{Header: Header{SchemaVersion: schemaVersion, CreatedAt: time.Now()}}
	}
	s.header = snap.Header
	s.graph.restore(snap.Graph)
	return nil
}

// Graph returns the live, reconciled graph.
func (s *Store) Graph() *Graph { return s.graph }

// reconcileTiers implements the same both-absent/one-present/both-present
// protocol as the content store, applied to graph snapshots.
func reconcileTiers(cfg StoreConfig) (string, error) {
	localPresent := tierPresent(cfg.LocalDir)
	globalPresent := cfg.GlobalDir != "" && tierPresent(cfg.GlobalDir)

	switch {
	case !localPresent && !globalPresent:
		return cfg.LocalDir, nil

	case localPresent && !globalPresent:
		if cfg.GlobalDir != "" {
			if err := copyTier(cfg.LocalDir, cfg.GlobalDir); err != nil {
				return "", fmt.Errorf("graph: mirror local tier to global: %w", err)
			}
		}
		return cfg.LocalDir, nil

	case !localPresent && globalPresent:
		if err := copyTier(cfg.GlobalDir, cfg.LocalDir); err != nil {
			return "", fmt.Errorf("graph: mirror global tier to local: %w", err)
		}
		return cfg.LocalDir, nil

	default:
		return reconcileBothPresent(cfg)
	}
}

func reconcileBothPresent(cfg StoreConfig) (string, error) {
	localSnap, err := loadSnapshot(filepath.Join(cfg.LocalDir, snapshotFileName))
	if err != nil {
		return cfg.LocalDir, nil
	}
	globalSnap, err := loadSnapshot(filepath.Join(cfg.GlobalDir, snapshotFileName))
	if err != nil {
		return cfg.LocalDir, nil
	}

	if localSnap.Header.SchemaVersion != globalSnap.Header.SchemaVersion {
		// Incompatible schema versions: keep both, prefer local rather
		// than guess at a merge.
		return cfg.LocalDir, nil
	}

	diff := localSnap.Header.CreatedAt.Sub(globalSnap.Header.CreatedAt)
	if diff < 0 {
		diff = -diff
	}

	newerDir, olderDir := cfg.LocalDir, cfg.GlobalDir
	if globalSnap.Header.CreatedAt.After(localSnap.Header.CreatedAt) {
		newerDir, olderDir = cfg.GlobalDir, cfg.LocalDir
	}

	if diff > cfg.StaleThreshold {
		if err := copyTier(newerDir, olderDir); err != nil {
			return "", fmt.Errorf("graph: synchronize stale tier: %w", err)
		}
	}
	return newerDir, nil
}

func tierPresent(dir string) bool {
	if dir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, snapshotFileName))
	return err == nil
}

func copyTier(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	srcPath := filepath.Join(src, snapshotFileName)
	if _, err := os.Stat(srcPath); err != nil {
		return nil
	}
	return copyFileAtomic(srcPath, filepath.Join(dst, snapshotFileName))
}

func copyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func loadSnapshot(path string) (persistedSnapshot, error) {
	var snap persistedSnapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return snap, err
	}
	return snap, nil
}

func saveSnapshot(path string, snap persistedSnapshot) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Close persists the active tier, lazily mirrors it to the other tier, and
// releases the open-time lock.
func (s *Store) Close() error {
	stats := s.graph.Stats()
	s.header.SchemaVersion = schemaVersion
	s.header.CreatedAt = time.Now()
	s.header.SymbolCount = stats.SymbolCount
	s.header.RelationshipCount = stats.RelationshipCount
	s.header.FileCount = stats.FileCount

	snap := persistedSnapshot{Header: s.header, Graph: s.graph.export()}

	var firstErr error
	if err := saveSnapshot(filepath.Join(s.activeDir, snapshotFileName), snap); err != nil {
		firstErr = err
	}

	otherDir := s.cfg.GlobalDir
	if s.activeDir == s.cfg.GlobalDir {
		otherDir = s.cfg.LocalDir
	}
	if otherDir != "" && otherDir != s.activeDir {
		if err := copyTier(s.activeDir, otherDir); err != nil {
			slog.Warn("failed to lazily sync stale graph tier", slog.String("dir", otherDir), slog.String("error", err.Error()))
		}
	}

	if err := s.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
