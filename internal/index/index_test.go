package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ixerrors "github.com/Aman-CERP/txindex/internal/errors"
	"github.com/Aman-CERP/txindex/internal/locks"
)

func TestIndex_StoreMakesEmptyIndexValid(t *testing.T) {
	// Given: a directory that does not exist yet
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, filepath.Join(t.TempDir(), "idx"))
	requireStatus(t, idx, true, StatusEmpty)

	// When
	gen, err := idx.Store(context.Background(), adds("alpha", "beta"), false)

	// Then
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	requireStatus(t, idx, false, StatusValid)
	requireStatus(t, idx, true, StatusValid)
	assert.Equal(t, []string{"alpha", "beta"}, queryNames(t, idx, ""))
	assert.Equal(t, TxCommitted, idx.TxState())
}

func TestIndex_EmptyStoreCreatesIndex(t *testing.T) {
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())

	_, err := idx.Store(context.Background(), Changes{}, false)

	require.NoError(t, err)
	requireStatus(t, idx, true, StatusValid)
	assert.Empty(t, queryNames(t, idx, ""))
}

func TestIndex_TxStoreInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	_, err := idx.Store(ctx, adds("base"), false)
	require.NoError(t, err)

	// When: a document is added inside a transaction
	gen, err := idx.TxStore(ctx, adds("pending"))
	require.NoError(t, err)

	// Then: readers keep seeing the committed state
	assert.Equal(t, int64(2), gen)
	assert.Equal(t, TxOpen, idx.TxState())
	requireStatus(t, idx, false, StatusWriting)
	assert.Equal(t, []string{"base"}, queryNames(t, idx, ""))

	// When: the transaction commits
	require.NoError(t, idx.Commit(ctx))

	// Then
	assert.Equal(t, []string{"base", "pending"}, queryNames(t, idx, ""))
	requireStatus(t, idx, true, StatusValid)
	assert.Equal(t, TxCommitted, idx.TxState())
}

func TestIndex_StoreCommitsOpenTransaction(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())

	// Given: "A" buffered in a transaction
	_, err := idx.TxStore(ctx, adds("A"))
	require.NoError(t, err)
	requireStatus(t, idx, false, StatusWriting)
	assert.Empty(t, queryNames(t, idx, "A"))

	// When: a plain store adds "AB"
	_, err = idx.Store(ctx, adds("AB"), false)
	require.NoError(t, err)

	// Then: both are committed together
	requireStatus(t, idx, false, StatusValid)
	assert.Equal(t, []string{"A", "AB"}, queryNames(t, idx, "A"))
	assert.Equal(t, TxCommitted, idx.TxState())
	assert.False(t, idx.h.locks.HasLocks())
}

func TestIndex_RollbackKeepsDeletedDocuments(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	_, err := idx.Store(ctx, adds("keep", "drop"), false)
	require.NoError(t, err)

	// When: a delete is buffered and then rolled back
	_, err = idx.TxStore(ctx, deletes("drop"))
	require.NoError(t, err)
	assert.Equal(t, []string{"drop", "keep"}, queryNames(t, idx, ""))
	require.NoError(t, idx.Rollback())

	// Then
	assert.Equal(t, []string{"drop", "keep"}, queryNames(t, idx, ""))
	assert.Equal(t, TxRolledBack, idx.TxState())
	requireStatus(t, idx, true, StatusValid)
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.Metrics().Rollbacks))
}

func TestIndex_RollbackOnEmptyIndexStaysEmpty(t *testing.T) {
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, filepath.Join(t.TempDir(), "idx"))

	_, err := idx.TxStore(context.Background(), adds("x"))
	require.NoError(t, err)
	requireStatus(t, idx, false, StatusWriting)

	require.NoError(t, idx.Rollback())
	requireStatus(t, idx, true, StatusEmpty)
}

func TestIndex_DeleteMatchesPendingAdditions(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	_, err := idx.Store(ctx, adds("x-committed", "y-committed"), false)
	require.NoError(t, err)

	// Given: pending additions in an open transaction
	_, err = idx.TxStore(ctx, adds("x-pending", "y-pending"))
	require.NoError(t, err)

	// When: a later TxStore deletes by prefix
	_, err = idx.TxStore(ctx, deletes("x-"))
	require.NoError(t, err)
	require.NoError(t, idx.Commit(ctx))

	// Then: both committed and pending matches are gone
	assert.Equal(t, []string{"y-committed", "y-pending"}, queryNames(t, idx, ""))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.Metrics().UsageWarnings.WithLabelValues("nested_transaction")))
}

func TestIndex_TxAppendExtendsOwnTransaction(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())

	// Given: a transaction opened by TxAppend
	_, err := idx.TxAppend(ctx, adds("a"))
	require.NoError(t, err)
	require.Equal(t, TxOpen, idx.TxState())

	// When: more changes are appended to it
	_, err = idx.TxAppend(ctx, adds("b"))
	require.NoError(t, err)
	_, err = idx.TxAppend(ctx, deletes("a"))
	require.NoError(t, err)
	require.NoError(t, idx.Commit(ctx))

	// Then: the changes commit together and no nested use is reported
	assert.Equal(t, []string{"b"}, queryNames(t, idx, ""))
	assert.Equal(t, float64(0), testutil.ToFloat64(reg.Metrics().UsageWarnings.WithLabelValues("nested_transaction")))
	assert.False(t, idx.h.locks.HasLocks())
}

func TestIndex_DeletesApplyBeforeAdds(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	_, err := idx.Store(ctx, adds("doc"), false)
	require.NoError(t, err)

	// When: one store deletes and re-adds the same document
	replacement := NewDocument("doc").Add("name", "doc").Add("rev", "2")
	_, err = idx.Store(ctx, DocumentChanges([]*Document{replacement}, []query.Query{DeleteByID("doc")}), false)
	require.NoError(t, err)

	// Then: the new version survives
	var docs []*Document
	require.NoError(t, Query(ctx, idx, &docs, Identity[*Document](), AllFields, prefixQuery("doc")))
	require.Len(t, docs, 1)
	assert.Equal(t, "2", docs[0].Get("rev"))
}

func TestIndex_FieldSelectorLimitsLoadedFields(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	doc := NewDocument("1").Add("name", "n").Add("tags", "a", "b").Add("other", "o")
	_, err := idx.Store(ctx, DocumentChanges([]*Document{doc}, nil), false)
	require.NoError(t, err)

	var docs []*Document
	require.NoError(t, Query(ctx, idx, &docs, Identity[*Document](), FieldSelector{"tags"}, prefixQuery("n")))

	require.Len(t, docs, 1)
	assert.Equal(t, []string{"tags"}, docs[0].FieldNames())
	assert.ElementsMatch(t, []string{"a", "b"}, docs[0].Values("tags"))
}

func TestIndex_CommitAndRollbackWithoutTransactionWarn(t *testing.T) {
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())

	assert.NoError(t, idx.Commit(context.Background()))
	assert.NoError(t, idx.Rollback())

	m := reg.Metrics()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UsageWarnings.WithLabelValues("commit_without_transaction")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UsageWarnings.WithLabelValues("rollback_without_transaction")))
	assert.Equal(t, TxNone, idx.TxState())
}

func TestIndex_ConversionErrorAppliesNothing(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	_, err := idx.Store(ctx, adds("existing"), false)
	require.NoError(t, err)

	failing := ConvertorFunc[string, *Document](func(s string) (*Document, error) {
		if s == "bad" {
			return nil, errors.New("cannot convert")
		}
		return nameDoc(s)
	})

	// When
	_, err = idx.Store(ctx, NewChanges[string, string]([]string{"good", "bad"}, nil, failing, nil), false)

	// Then
	require.Error(t, err)
	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeConversionFailed))
	assert.Equal(t, []string{"existing"}, queryNames(t, idx, ""))
	assert.False(t, idx.h.locks.HasLocks())
	requireStatus(t, idx, true, StatusValid)
}

func TestIndex_MissingConvertorIsAnError(t *testing.T) {
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())

	_, err := idx.Store(context.Background(), NewChanges[string, string]([]string{"a"}, nil, nil, nil), false)

	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeConversionFailed))
}

func TestIndex_StoreWithOptimize(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())

	for i := 0; i < 3; i++ {
		_, err := idx.Store(ctx, adds(seq(string(rune('a'+i)), 5)...), i == 2)
		require.NoError(t, err)
	}

	n, err := Count(ctx, idx, query.NewMatchAllQuery())
	require.NoError(t, err)
	assert.Equal(t, 15, n)
}

func TestIndex_CorruptDescriptorIsInvalidUntilStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, dir)
	_, err := idx.Store(ctx, adds("old"), false)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	// Given: a damaged index descriptor
	require.NoError(t, os.WriteFile(filepath.Join(dir, metaName), []byte("{"), 0644))

	// Then: the cheap check trusts the descriptor, the full check does not
	requireStatus(t, idx, false, StatusValid)
	requireStatus(t, idx, true, StatusInvalid)
	assert.Empty(t, queryNames(t, idx, ""))

	// When: the next store runs
	_, err = idx.Store(ctx, adds("new"), false)
	require.NoError(t, err)

	// Then: the directory was cleared and rebuilt
	requireStatus(t, idx, true, StatusValid)
	assert.Equal(t, []string{"new"}, queryNames(t, idx, ""))
}

// zeroSegments overwrites every segment file in place, keeping its size.
func zeroSegments(t *testing.T, dir string) {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join(dir, storeName, "*"+segmentExt))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, path := range paths {
		info, err := os.Stat(path)
		require.NoError(t, err)
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		require.NoError(t, err)
		_, err = f.WriteAt(make([]byte, info.Size()), 0)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
}

func TestIndex_DamagedSegmentIsInvalidUntilStore(t *testing.T) {
	tests := []struct {
		name       string
		closeFirst bool
	}{
		{name: "closed handle", closeFirst: true},
		{name: "open handle", closeFirst: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			reg := newTestRegistry(t)
			idx := openIndex(t, reg, dir)
			_, err := idx.Store(ctx, adds("a", "b"), false)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, queryNames(t, idx, ""))
			if tt.closeFirst {
				require.NoError(t, idx.Close())
			}

			// Given: the segment holding the documents is zeroed
			zeroSegments(t, dir)

			// Then: only the full check notices
			requireStatus(t, idx, false, StatusValid)
			requireStatus(t, idx, true, StatusInvalid)
			assert.Empty(t, queryNames(t, idx, ""))

			// When: the next store runs
			_, err = idx.Store(ctx, adds("new"), false)
			require.NoError(t, err)

			// Then: the directory was cleared and rebuilt
			requireStatus(t, idx, true, StatusValid)
			assert.Equal(t, []string{"new"}, queryNames(t, idx, ""))
		})
	}
}

func TestCheckSegments(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, dir)
	_, err := idx.Store(ctx, adds("a"), false)
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	store := filepath.Join(dir, storeName)
	require.NoError(t, checkSegments(store))

	paths, err := filepath.Glob(filepath.Join(store, "*"+segmentExt))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	// When: a segment loses its tail
	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths[0], data[:len(data)-1], 0600))

	// Then
	assert.ErrorContains(t, checkSegments(store), "checksum mismatch")

	require.NoError(t, os.WriteFile(paths[0], data[:3], 0600))
	assert.ErrorContains(t, checkSegments(store), "truncated")

	require.NoError(t, os.RemoveAll(store))
	assert.ErrorContains(t, checkSegments(store), "missing")
}

func TestIndex_StrayFilesWithoutDescriptorAreInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk"), []byte("x"), 0644))
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, dir)

	requireStatus(t, idx, false, StatusInvalid)

	_, err := idx.Store(context.Background(), adds("a"), false)
	require.NoError(t, err)
	requireStatus(t, idx, true, StatusValid)
	_, err = os.Stat(filepath.Join(dir, "junk"))
	assert.True(t, os.IsNotExist(err))
}

func TestIndex_OrphanLockIsInvalidAndClearedOnStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, dir)
	_, err := idx.Store(ctx, adds("before-crash"), false)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	// Given: a lock file left by a writer that died
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockName), nil, 0644))
	requireStatus(t, idx, false, StatusInvalid)

	// When
	_, err = idx.Store(ctx, adds("after-crash"), false)
	require.NoError(t, err)

	// Then: the index was rebuilt from scratch
	requireStatus(t, idx, true, StatusValid)
	assert.Equal(t, []string{"after-crash"}, queryNames(t, idx, ""))
	_, err = os.Stat(filepath.Join(dir, lockName))
	assert.True(t, os.IsNotExist(err))
}

func TestIndex_ProbeDecidesLockLiveness(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockName), nil, 0644))

	tests := []struct {
		name     string
		orphaned bool
		want     Status
	}{
		{name: "dead writer", orphaned: true, want: StatusInvalid},
		{name: "live writer", orphaned: false, want: StatusWriting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t, func(o *Options) {
				o.Probe = locks.ProbeFunc(func(string) (bool, error) { return tt.orphaned, nil })
			})
			requireStatus(t, openIndex(t, reg, dir), false, tt.want)
		})
	}
}

func TestIndex_ForeignWriterBlocksStore(t *testing.T) {
	// Given: another process holds the lock file
	dir := t.TempDir()
	foreign := flock.New(filepath.Join(dir, lockName))
	locked, err := foreign.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = foreign.Unlock() }()

	reg := newTestRegistry(t, func(o *Options) { o.LockTimeout = 50 * time.Millisecond })
	idx := openIndex(t, reg, dir)

	// Then
	requireStatus(t, idx, false, StatusWriting)
	_, err = idx.Store(context.Background(), adds("x"), false)
	require.Error(t, err)
	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeLockTimeout))
	assert.True(t, ixerrors.IsRetryable(err))
}

func TestIndex_WritersOnSameDirectoryAreSerialised(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg := newTestRegistry(t, func(o *Options) { o.LockTimeout = 50 * time.Millisecond })
	first := openIndex(t, reg, dir)
	second := openIndex(t, reg, dir)

	// Given: the first index holds an open transaction
	_, err := first.TxStore(ctx, adds("first"))
	require.NoError(t, err)

	// When: the second tries to store
	_, err = second.Store(ctx, adds("second"), false)

	// Then: it times out, and succeeds once the transaction commits
	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeLockTimeout))
	require.NoError(t, first.Commit(ctx))
	_, err = second.Store(ctx, adds("second"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, queryNames(t, second, ""))
}

func TestIndex_CloseDuringStoreAbortsIt(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())

	entered := make(chan struct{})
	unblock := make(chan struct{})
	slow := ConvertorFunc[string, *Document](func(s string) (*Document, error) {
		if s == "slow" {
			close(entered)
			<-unblock
		}
		return nameDoc(s)
	})

	// Given: a store stuck converting its documents
	errCh := make(chan error, 1)
	go func() {
		_, err := idx.Store(ctx, NewChanges[string, string]([]string{"slow", "next"}, nil, slow, nil), false)
		errCh <- err
	}()
	<-entered

	// When: the index is closed underneath it
	require.NoError(t, idx.Close())
	close(unblock)

	// Then: the store fails cleanly and the lock is released
	err := <-errCh
	require.Error(t, err)
	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeIndexClosed))
	assert.False(t, idx.h.locks.HasLocks())
	requireStatus(t, idx, true, StatusEmpty)

	// And: the index reopens on the next store
	_, err = idx.Store(ctx, adds("again"), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"again"}, queryNames(t, idx, ""))
}

// bleveIndex names the embedded field so it does not shadow bleve.Index's Index method.
type bleveIndex = bleve.Index

// batchGate holds every batch until release is closed.
type batchGate struct {
	bleveIndex
	entered chan struct{}
	release chan struct{}
}

func (g *batchGate) Batch(b *bleve.Batch) error {
	close(g.entered)
	<-g.release
	return g.bleveIndex.Batch(b)
}

func TestQuery_RunsWhileBatchIsApplied(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	_, err := idx.Store(ctx, adds("committed"), false)
	require.NoError(t, err)

	// Given: a store stuck inside its batch
	gate := &batchGate{entered: make(chan struct{}), release: make(chan struct{})}
	idx.h.mu.Lock()
	gate.bleveIndex = idx.h.idx
	idx.h.idx = gate
	idx.h.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		_, err := idx.Store(ctx, adds("pending"), false)
		errCh <- err
	}()
	<-gate.entered

	// When: a query runs in another goroutine
	got := make(chan []string, 1)
	go func() {
		var out []string
		_ = Query(ctx, idx, &out, docName, AllFields, prefixQuery(""))
		got <- out
	}()

	// Then: it answers from the committed snapshot without waiting
	select {
	case names := <-got:
		assert.Equal(t, []string{"committed"}, names)
	case <-time.After(5 * time.Second):
		t.Fatal("query blocked behind the batch")
	}

	close(gate.release)
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"committed", "pending"}, queryNames(t, idx, ""))
}

func TestIndex_CloseRollsBackTransaction(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	_, err := idx.Store(ctx, adds("kept"), false)
	require.NoError(t, err)
	_, err = idx.TxStore(ctx, adds("lost"))
	require.NoError(t, err)

	require.NoError(t, idx.Close())

	assert.Equal(t, TxRolledBack, idx.TxState())
	requireStatus(t, idx, true, StatusValid)
	assert.Equal(t, []string{"kept"}, queryNames(t, idx, ""))
}

func TestIndex_WriteErrorReportsFullDisk(t *testing.T) {
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	epoch := idx.h.epoch.Load()

	err := idx.writeError(epoch, "failed to apply batch", fmt.Errorf("persist segment: %w", syscall.ENOSPC))
	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeDiskFull))

	err = idx.writeError(epoch, "failed to apply batch", errors.New("boom"))
	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeStoreFailed))

	idx.h.epoch.Add(1)
	err = idx.writeError(epoch, "failed to apply batch", syscall.ENOSPC)
	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeIndexClosed))
}

func TestQuery_CancellationReturnsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	_, err := idx.Store(ctx, adds(seq("n", 10)...), false)
	require.NoError(t, err)

	// Given: a convertor that cancels after the second result
	converted := 0
	cancelling := ConvertorFunc[*Document, string](func(d *Document) (string, error) {
		converted++
		if converted == 2 {
			cancel()
		}
		return d.Get("name"), nil
	})

	// When
	var out []string
	err = Query(ctx, idx, &out, cancelling, AllFields, prefixQuery("n"))

	// Then
	require.NoError(t, err)
	assert.Equal(t, []string{"n000", "n001"}, out)
}

func TestQuery_ConvertorErrorIsReturned(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())
	_, err := idx.Store(ctx, adds("a"), false)
	require.NoError(t, err)

	failing := ConvertorFunc[*Document, string](func(*Document) (string, error) {
		return "", errors.New("boom")
	})
	var out []string
	err = Query(ctx, idx, &out, failing, AllFields, prefixQuery(""))

	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeConversionFailed))
}

func TestQuery_RejectsMissingArguments(t *testing.T) {
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())

	err := Query[string](context.Background(), idx, nil, docName, AllFields, prefixQuery("a"))

	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeInvalidInput))
}

func TestQuery_EmptyIndexHasNoResults(t *testing.T) {
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, filepath.Join(t.TempDir(), "missing"))

	assert.Empty(t, queryNames(t, idx, ""))
	requireStatus(t, idx, true, StatusEmpty)
}

func TestIndex_MetricsCountCommits(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	idx := openIndex(t, reg, t.TempDir())

	_, err := idx.Store(ctx, adds("a"), false)
	require.NoError(t, err)
	_, err = idx.TxStore(ctx, adds("b"))
	require.NoError(t, err)
	require.NoError(t, idx.Commit(ctx))
	requireStatus(t, idx, true, StatusValid)

	m := reg.Metrics()
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Commits))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StatusProbes.WithLabelValues("VALID")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StoreDuration))
}
