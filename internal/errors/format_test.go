package errors

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForCLI_IncludesCodeAndHint(t *testing.T) {
	// Given: an error with a suggestion
	err := New(ErrCodeCorruptIndex, "segment files are unreadable", nil).
		WithSuggestion("store again to rebuild the index")

	// When: formatting for the CLI
	out := FormatForCLI(err)

	// Then: message, hint and code are present
	assert.Contains(t, out, "Error: segment files are unreadable")
	assert.Contains(t, out, "Hint: store again")
	assert.Contains(t, out, "Code: ERR_205_CORRUPT_INDEX")
}

func TestFormatForCLI_StandardErrorIsInternal(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))

	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestLogAttrs_CarriesCodeAndDetails(t *testing.T) {
	err := New(ErrCodeStoreFailed, "batch failed", errors.New("no space left")).
		WithDetail("dir", "/idx")

	attrs := LogAttrs(err)

	keys := map[string]slog.Value{}
	for _, a := range attrs {
		keys[a.Key] = a.Value
	}
	assert.Equal(t, ErrCodeStoreFailed, keys["error_code"].String())
	assert.Equal(t, string(SeverityError), keys["severity"].String())
	assert.Equal(t, "no space left", keys["cause"].String())
	assert.Equal(t, "/idx", keys["detail_dir"].String())
	assert.Nil(t, LogAttrs(nil))
}
