package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"votex-ledger/models"
)

const snapshotSuffix = "_chain.json"

// ErrSnapshotNotFound is returned when a named snapshot does not exist.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrInvalidSnapshot is returned for a snapshot that does not start at a
// genesis block.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is the exported form of a chain.
type Snapshot struct {
	Hash   string         `json:"hash"`
	Blocks []models.Block `json:"blocks"`
}

// JSONStore keeps chain snapshots as one JSON file per name under basePath.
// Writes go through a temp file and a rename.
type JSONStore struct {
	basePath string
	mu       sync.RWMutex
}

func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory %s", basePath)
	}
	return &JSONStore{basePath: basePath}, nil
}

func (s *JSONStore) path(name string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%s%s", name, snapshotSuffix))
}

// SaveChain writes blocks under name, replacing any earlier snapshot.
func (s *JSONStore) SaveChain(name, hash string, blocks []models.Block) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return errors.Errorf("invalid snapshot name %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return WriteSnapshot(s.path(name), Snapshot{Hash: hash, Blocks: blocks})
}

// LoadChain reads the snapshot stored under name.
func (s *JSONStore) LoadChain(name string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, err := ReadSnapshot(s.path(name))
	if os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrapf(ErrSnapshotNotFound, "%s", name)
	}
	return snap, err
}

// List returns the stored snapshot names in lexical order.
func (s *JSONStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read directory %s", s.basePath)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), snapshotSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// WriteSnapshot marshals snap to path atomically.
func WriteSnapshot(path string, snap Snapshot) error {
	if snap.Blocks == nil {
		snap.Blocks = []models.Block{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal chain")
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write chain file")
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.Wrap(err, "failed to save chain file")
	}

	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot. The first block must
// be a genesis block.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read chain file %s", path)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal chain")
	}
	if len(snap.Blocks) == 0 {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "%s has no blocks", path)
	}
	if genesis := snap.Blocks[0]; genesis.Index != 0 || genesis.PreviousHash != models.GenesisPrevHash {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "%s does not start at genesis", path)
	}
	return &snap, nil
}
