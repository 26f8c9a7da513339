package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ixerrors "github.com/Aman-CERP/txindex/internal/errors"
	"github.com/Aman-CERP/txindex/internal/index"
	"github.com/Aman-CERP/txindex/internal/ui"
)

// cliEnv isolates a test from the user's configuration and returns an
// index directory and a project directory.
func cliEnv(t *testing.T) (indexDir, projectDir string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	for _, name := range []string{"TXINDEX_MAX_OPEN_READERS", "TXINDEX_LOCK_TIMEOUT", "TXINDEX_LOG_LEVEL", "TXINDEX_LOG_FILE", "TXINDEX_FLUSH_THRESHOLD"} {
		t.Setenv(name, "")
	}
	t.Setenv("TXINDEX_LOG_LEVEL", "error")
	return filepath.Join(t.TempDir(), "idx"), t.TempDir()
}

// run executes the CLI with args against indexDir and returns stdout.
func run(t *testing.T, indexDir, projectDir, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--index", indexDir, "--project", projectDir))
	err := cmd.Execute()
	return out.String(), err
}

const sampleDocs = `{"primary_key": "a", "fields": {"name": ["FooBar"], "kind": ["class"]}}
{"primary_key": "b", "fields": {"name": ["fooBaz"], "secret": ["s3"]}, "hidden": ["secret"]}
{"primary_key": "c", "fields": {"name": ["Other"]}, "case_sensitive": ["name"]}
`

func queryJSON(t *testing.T, indexDir, projectDir string, args ...string) []ui.Result {
	t.Helper()
	out, err := run(t, indexDir, projectDir, "", append([]string{"query", "--json"}, args...)...)
	require.NoError(t, err)
	var results []ui.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	return results
}

func primaryKeys(results []ui.Result) []string {
	keys := make([]string, 0, len(results))
	for _, r := range results {
		keys = append(keys, r.PrimaryKey)
	}
	return keys
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	// When: executing with --help
	require.NoError(t, cmd.Execute())

	// Then: the subcommands are listed
	for _, sub := range []string{"add", "remove", "query", "status", "unlock", "config", "version"} {
		assert.Contains(t, buf.String(), sub)
	}
}

func TestAddThenQuery(t *testing.T) {
	// Given: documents added from stdin
	indexDir, projectDir := cliEnv(t)
	out, err := run(t, indexDir, projectDir, sampleDocs, "add")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored 3 document(s)")

	// Then: queries see them
	assert.ElementsMatch(t, []string{"a", "b"}, primaryKeys(queryJSON(t, indexDir, projectDir, "--field", "name", "--kind", "iprefix", "foo")))
	assert.Equal(t, []string{"a"}, primaryKeys(queryJSON(t, indexDir, projectDir, "--field", "name", "--kind", "camel", "FoBa")))
	assert.Equal(t, []string{"c"}, primaryKeys(queryJSON(t, indexDir, projectDir, "--field", "name", "Other")))
}

func TestAdd_HiddenAndCaseSensitiveFields(t *testing.T) {
	indexDir, projectDir := cliEnv(t)
	_, err := run(t, indexDir, projectDir, sampleDocs, "add")
	require.NoError(t, err)

	// Hidden fields match but are not returned
	results := queryJSON(t, indexDir, projectDir, "--field", "secret", "s3")
	require.Len(t, results, 1)
	assert.Equal(t, []string{"fooBaz"}, results[0].Fields["name"])
	assert.NotContains(t, results[0].Fields, "secret")

	// Case-sensitive fields have no lowercase companion
	assert.Empty(t, queryJSON(t, indexDir, projectDir, "--field", "name", "--kind", "iprefix", "oth"))
}

func TestAdd_FromFileWithOptimize(t *testing.T) {
	indexDir, projectDir := cliEnv(t)
	file := filepath.Join(t.TempDir(), "docs.jsonl")
	require.NoError(t, os.WriteFile(file, []byte(sampleDocs), 0644))

	out, err := run(t, indexDir, projectDir, "", "add", "--file", file, "--optimize")

	require.NoError(t, err)
	assert.Contains(t, out, "Stored 3 document(s)")
}

func TestAdd_InvalidJSONStoresNothing(t *testing.T) {
	// Given: input whose second line is broken
	indexDir, projectDir := cliEnv(t)
	input := `{"primary_key": "a", "fields": {"name": ["A"]}}` + "\n{oops\n"

	// When: adding
	_, err := run(t, indexDir, projectDir, input, "add")

	// Then: the command fails and the index stays empty
	require.Error(t, err)
	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeInvalidInput))
	out, err := run(t, indexDir, projectDir, "", "status", "--json")
	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "empty", info.Status)
}

func TestAdd_SmallFlushThreshold(t *testing.T) {
	// Given: a project config that spills every two operations
	indexDir, projectDir := cliEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".txindex.yaml"), []byte("documents:\n  flush_threshold: 2\n"), 0644))

	// When: adding more documents than the threshold
	_, err := run(t, indexDir, projectDir, sampleDocs, "add")

	// Then: every document is committed
	require.NoError(t, err)
	assert.Len(t, queryJSON(t, indexDir, projectDir, "--field", "name", "--kind", "regexp", ".*"), 3)
}

func TestRemove(t *testing.T) {
	indexDir, projectDir := cliEnv(t)
	_, err := run(t, indexDir, projectDir, sampleDocs, "add")
	require.NoError(t, err)

	out, err := run(t, indexDir, projectDir, "", "remove", "a", "c")

	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 key(s)")
	assert.Equal(t, []string{"b"}, primaryKeys(queryJSON(t, indexDir, projectDir, "--field", "name", "--kind", "regexp", ".*")))
}

func TestQuery_Errors(t *testing.T) {
	indexDir, projectDir := cliEnv(t)

	_, err := run(t, indexDir, projectDir, "", "query", "--field", "name", "--kind", "fuzzy", "x")
	assert.Error(t, err)

	_, err = run(t, indexDir, projectDir, "", "query", "--field", "name", "--kind", "regexp", "(")
	require.Error(t, err)
	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeInvalidQuery))

	_, err = run(t, indexDir, projectDir, "", "query", "x")
	assert.Error(t, err, "--field is required")
}

func TestQuery_TextOutput(t *testing.T) {
	indexDir, projectDir := cliEnv(t)
	_, err := run(t, indexDir, projectDir, sampleDocs, "add")
	require.NoError(t, err)

	out, err := run(t, indexDir, projectDir, "", "query", "--field", "kind", "--load", "kind", "class")

	require.NoError(t, err)
	assert.Contains(t, out, "kind: class")
	assert.NotContains(t, out, "FooBar")
	assert.Contains(t, out, "1 document(s)")
}

func TestStatus(t *testing.T) {
	indexDir, projectDir := cliEnv(t)

	status := func(args ...string) ui.StatusInfo {
		out, err := run(t, indexDir, projectDir, "", append([]string{"status", "--json"}, args...)...)
		require.NoError(t, err)
		var info ui.StatusInfo
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		return info
	}

	// Given: nothing stored yet
	assert.Equal(t, "empty", status().Status)

	// When: documents are stored
	_, err := run(t, indexDir, projectDir, sampleDocs, "add")
	require.NoError(t, err)

	// Then: the index is valid and counted
	info := status()
	assert.Equal(t, "valid", info.Status)
	assert.Equal(t, uint64(3), info.Documents)
	assert.Positive(t, info.Size)
	assert.False(t, info.LockFile)

	// And: a files-only check skips counting
	info = status("--no-open")
	assert.Equal(t, "valid", info.Status)
	assert.Zero(t, info.Documents)
}

func TestStatus_OrphanLockThenUnlock(t *testing.T) {
	// Given: a valid index with a lock file left by a dead writer
	indexDir, projectDir := cliEnv(t)
	_, err := run(t, indexDir, projectDir, sampleDocs, "add")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, index.LockFileName), nil, 0644))

	// Then: status reports it invalid
	out, err := run(t, indexDir, projectDir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "invalid")
	assert.Contains(t, out, "write.lock present")

	// When: unlocking
	out, err = run(t, indexDir, projectDir, "", "unlock")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed orphaned lock")

	// Then: the committed documents are still there
	out, err = run(t, indexDir, projectDir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
	assert.Contains(t, out, "Documents: 3")
}

func TestUnlock_NoLock(t *testing.T) {
	indexDir, projectDir := cliEnv(t)

	out, err := run(t, indexDir, projectDir, "", "unlock")

	require.NoError(t, err)
	assert.Contains(t, out, "No lock file")
}

func TestConfigInit(t *testing.T) {
	indexDir, projectDir := cliEnv(t)

	// When: creating the user config
	out, err := run(t, indexDir, projectDir, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created")

	// Then: a second init refuses and --force backs up
	_, err = run(t, indexDir, projectDir, "", "config", "init")
	assert.Error(t, err)
	out, err = run(t, indexDir, projectDir, "", "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Backed up")
}

func TestConfigShow(t *testing.T) {
	indexDir, projectDir := cliEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".txindex.yaml"), []byte("index:\n  max_open_readers: 12\n"), 0644))

	out, err := run(t, indexDir, projectDir, "", "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "max_open_readers: 12")
}

func TestConfig_InvalidProjectConfigFails(t *testing.T) {
	indexDir, projectDir := cliEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".txindex.yaml"), []byte("index:\n  max_open_readers: -3\n"), 0644))

	_, err := run(t, indexDir, projectDir, "", "status")

	require.Error(t, err)
	assert.True(t, ixerrors.HasCode(err, ixerrors.ErrCodeConfigInvalid))
}

func TestVersionCmd(t *testing.T) {
	indexDir, projectDir := cliEnv(t)

	out, err := run(t, indexDir, projectDir, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "txindex ")

	out, err = run(t, indexDir, projectDir, "", "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
}

func TestRootCmd_MetricsAndProfiles(t *testing.T) {
	// Given: metrics and profile outputs requested
	indexDir, projectDir := cliEnv(t)
	outDir := t.TempDir()
	metricsFile := filepath.Join(outDir, "metrics.prom")
	heapFile := filepath.Join(outDir, "heap.prof")

	// When: adding documents
	_, err := run(t, indexDir, projectDir, sampleDocs, "add", "--metrics-file", metricsFile, "--profile-mem", heapFile)
	require.NoError(t, err)

	// Then: the commit is counted and the heap profile written
	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "txindex_index_commits_total 1")
	info, err := os.Stat(heapFile)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
