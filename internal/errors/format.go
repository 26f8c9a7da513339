package errors

import (
	"fmt"
	"log/slog"
	"strings"
)

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ie := Wrap(ErrCodeInternal, err)

	var sb strings.Builder

	// Error message with code
	sb.WriteString(fmt.Sprintf("Error: %s\n", ie.Message))

	if ie.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ie.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", ie.Code))

	return sb.String()
}

// LogAttrs formats an error as slog attributes for structured logging.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	ie := Wrap(ErrCodeInternal, err)
	attrs := []slog.Attr{
		slog.String("error", ie.Message),
		slog.String("error_code", ie.Code),
		slog.String("category", string(ie.Category)),
		slog.String("severity", string(ie.Severity)),
		slog.Bool("retryable", ie.Retryable),
	}
	if ie.Cause != nil && ie.Cause.Error() != ie.Message {
		attrs = append(attrs, slog.String("cause", ie.Cause.Error()))
	}
	for k, v := range ie.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}
