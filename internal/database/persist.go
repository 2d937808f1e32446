package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// vectorFile is the gob-encoded vector store layout.
type vectorFile struct {
	Version   int
	Dimension int
	Metric    Metric
	Vectors   [][]float32
}

// Save persists the vector store and the metadata sidecar as a pair.
// Each file is written to a temporary sibling and renamed into place.
func (ix *Index) Save(vectorPath, metadataPath string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	vf := vectorFile{
		Version:   vectorFileVersion,
		Dimension: ix.dim,
		Metric:    ix.metric,
		Vectors:   make([][]float32, ix.store.len()),
	}
	for pos := range vf.Vectors {
		vf.Vectors[pos] = ix.store.vector(pos)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vf); err != nil {
		return fmt.Errorf("failed to encode vectors: %w", err)
	}

	sidecar := make(map[string]entryRecord, len(ix.records))
	for pos, rec := range ix.records {
		sidecar[strconv.Itoa(pos)] = rec
	}
	metaData, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := writeFileAtomic(vectorPath, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write vector file: %w", err)
	}
	if err := writeFileAtomic(metadataPath, metaData); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// Load replaces the index contents with the persisted pair. The files must agree with each
// other (ErrIndexIntegrity) and with the index dimension (ErrDimensionMismatch) and metric.
func (ix *Index) Load(vectorPath, metadataPath string) error {
	vf, records, err := readPair(vectorPath, metadataPath)
	if err != nil {
		return err
	}
	if vf.Dimension != ix.dim {
		return fmt.Errorf("%w: gallery file has dimension %d, configured %d", ErrDimensionMismatch, vf.Dimension, ix.dim)
	}
	if vf.Metric != ix.metric {
		return fmt.Errorf("gallery file uses metric %q, configured %q", vf.Metric, ix.metric)
	}

	store := newStore(ix.backend, ix.metric)
	store.add(vf.Vectors...)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.store = store
	ix.records = records
	return nil
}

// Open loads the gallery pair if both files exist and returns an empty index if neither does.
// Exactly one file present is an integrity error.
func Open(vectorPath, metadataPath string, dim int, metric Metric, backend Backend) (*Index, error) {
	ix, err := NewIndex(dim, metric, backend)
	if err != nil {
		return nil, err
	}

	vecExists, err := fileExists(vectorPath)
	if err != nil {
		return nil, err
	}
	metaExists, err := fileExists(metadataPath)
	if err != nil {
		return nil, err
	}

	switch {
	case !vecExists && !metaExists:
		return ix, nil
	case vecExists != metaExists:
		return nil, fmt.Errorf("%w: vector file present=%t, metadata file present=%t", ErrIndexIntegrity, vecExists, metaExists)
	}

	if err := ix.Load(vectorPath, metadataPath); err != nil {
		return nil, err
	}
	return ix, nil
}

func readPair(vectorPath, metadataPath string) (*vectorFile, []entryRecord, error) {
	data, err := os.ReadFile(vectorPath) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read vector file: %w", err)
	}
	var vf vectorFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vf); err != nil {
		return nil, nil, fmt.Errorf("failed to decode vector file: %w", err)
	}
	if vf.Version != vectorFileVersion {
		return nil, nil, fmt.Errorf("unsupported vector file version %d", vf.Version)
	}
	for pos, v := range vf.Vectors {
		if len(v) != vf.Dimension {
			return nil, nil, fmt.Errorf("%w: vector %d has dimension %d, file declares %d", ErrIndexIntegrity, pos, len(v), vf.Dimension)
		}
	}

	metaData, err := os.ReadFile(metadataPath) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	var sidecar map[string]entryRecord
	if err := json.Unmarshal(metaData, &sidecar); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	if len(sidecar) != len(vf.Vectors) {
		return nil, nil, fmt.Errorf("%w: %d vectors but %d metadata records", ErrIndexIntegrity, len(vf.Vectors), len(sidecar))
	}
	records := make([]entryRecord, len(vf.Vectors))
	for pos := range records {
		rec, ok := sidecar[strconv.Itoa(pos)]
		if !ok {
			return nil, nil, fmt.Errorf("%w: no metadata record for position %d", ErrIndexIntegrity, pos)
		}
		if rec.IdentityID == "" {
			return nil, nil, fmt.Errorf("%w: metadata record %d has no identity id", ErrIndexIntegrity, pos)
		}
		records[pos] = rec
	}
	return &vf, records, nil
}

func writeFileAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", path, err)
}
