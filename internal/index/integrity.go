package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/mapping"
	zapv11 "github.com/blevesearch/zapx/v11"
	zapv12 "github.com/blevesearch/zapx/v12"
	zapv13 "github.com/blevesearch/zapx/v13"
	zapv14 "github.com/blevesearch/zapx/v14"
	zapv15 "github.com/blevesearch/zapx/v15"
	zapv16 "github.com/blevesearch/zapx/v16"
)

// LockFileName is the write lock file inside an index directory.
const LockFileName = "write.lock"

const (
	lockName = LockFileName

	// metaName is bleve's index descriptor; its absence means nothing was
	// ever committed.
	metaName = "index_meta.json"

	// storeName holds scorch's root.bolt and its segment files.
	storeName  = "store"
	segmentExt = ".zap"

	// segmentTrailer is the footer tail every zap version ends with: the
	// format version, then the CRC-32 of everything before it.
	segmentTrailer = 8
)

// segmentPlugins are the zap formats scorch reads, keyed by the version
// recorded in a segment's footer.
var segmentPlugins = func() map[uint32]scorch.SegmentPlugin {
	m := make(map[uint32]scorch.SegmentPlugin)
	for _, p := range []scorch.SegmentPlugin{
		&zapv16.ZapPlugin{},
		&zapv15.ZapPlugin{},
		&zapv14.ZapPlugin{},
		&zapv13.ZapPlugin{},
		&zapv12.ZapPlugin{},
		&zapv11.ZapPlugin{},
	} {
		m[p.Version()] = p
	}
	return m
}()

// newMapping indexes every field as a single untokenised term so that
// exact, prefix and regexp queries see whole values.
func newMapping() mapping.IndexMapping {
	m := bleve.NewIndexMapping()
	m.DefaultAnalyzer = keyword.Name
	m.StoreDynamic = true
	m.IndexDynamic = true
	return m
}

// checkIntegrity reports why dir does not hold a usable index. A directory
// that is missing or holds only the lock file is fine: nothing was committed.
// Scorch silently falls back to an older snapshot when a segment fails to
// load, so every segment file is checked here as well as the descriptor.
func checkIntegrity(dir string) error {
	metaPath := filepath.Join(dir, metaName)
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		empty, err := isEmptyDir(dir)
		if err != nil {
			return err
		}
		if empty {
			return nil
		}
		return fmt.Errorf("%s missing (corrupted index)", metaName)
	}
	if err != nil {
		return fmt.Errorf("cannot stat %s: %w", metaName, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty (corrupted)", metaName)
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", metaName, err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("%s is corrupt: %w", metaName, err)
	}
	return checkSegments(filepath.Join(dir, storeName))
}

// checkSegments verifies every segment file in store. Caller makes sure no
// writer is producing segments there.
func checkSegments(store string) error {
	if _, err := os.Stat(store); err != nil {
		return fmt.Errorf("%s missing (corrupted index): %w", storeName, err)
	}
	paths, err := filepath.Glob(filepath.Join(store, "*"+segmentExt))
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := checkSegment(path); err != nil {
			return fmt.Errorf("segment %s is corrupt: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// checkSegment matches the footer checksum against the file contents and
// then has the zap plugin for the footer's version load the segment.
func checkSegment(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size < segmentTrailer {
		return fmt.Errorf("truncated to %d bytes", size)
	}

	sum := crc32.NewIEEE()
	if _, err := io.Copy(sum, io.LimitReader(f, size-4)); err != nil {
		return err
	}
	var trailer [segmentTrailer]byte
	if _, err := f.ReadAt(trailer[:], size-segmentTrailer); err != nil {
		return err
	}
	version := binary.BigEndian.Uint32(trailer[:4])
	if want := binary.BigEndian.Uint32(trailer[4:]); sum.Sum32() != want {
		return fmt.Errorf("checksum mismatch: %08x != %08x", sum.Sum32(), want)
	}

	plugin, ok := segmentPlugins[version]
	if !ok {
		return fmt.Errorf("unsupported zap version %d", version)
	}
	seg, err := plugin.Open(path)
	if err != nil {
		return err
	}
	return seg.Close()
}

// hasMeta reports whether dir holds an index descriptor.
func hasMeta(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, metaName))
	return err == nil
}

// isEmptyDir reports whether dir is missing or holds nothing but the lock file.
func isEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("cannot read index directory: %w", err)
	}
	for _, e := range entries {
		if e.Name() != lockName {
			return false, nil
		}
	}
	return true, nil
}

// clearDir removes everything in dir except the lock file, which the
// caller holds.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot read index directory: %w", err)
	}
	for _, e := range entries {
		if e.Name() == lockName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("cannot remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// isCorruptionError checks if an open error means the files are damaged
// rather than busy.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if err == bleve.ErrorIndexMetaCorrupt || err == bleve.ErrorIndexMetaMissing {
		return true
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return false
	}
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "no such file or directory")
}
