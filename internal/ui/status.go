package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// StatusInfo describes one index directory.
type StatusInfo struct {
	Dir          string    `json:"dir"`
	Status       string    `json:"status"`
	Documents    uint64    `json:"documents"`
	Size         int64     `json:"size"`
	LockFile     bool      `json:"lock_file"`
	LastModified time.Time `json:"last_modified,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+info.Dir))

	_, _ = fmt.Fprintf(r.out, "  %s    %s\n", r.styles.Label.Render("Status:"), r.renderStatus(info.Status))
	if info.Status == "valid" {
		_, _ = fmt.Fprintf(r.out, "  %s %d\n", r.styles.Label.Render("Documents:"), info.Documents)
	}
	_, _ = fmt.Fprintf(r.out, "  %s      %s\n", r.styles.Label.Render("Size:"), FormatBytes(info.Size))
	if !info.LastModified.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  %s  %s\n", r.styles.Label.Render("Modified:"), formatTime(info.LastModified))
	}
	if info.LockFile {
		_, _ = fmt.Fprintf(r.out, "  %s      %s\n", r.styles.Label.Render("Lock:"), r.styles.Warning.Render("write.lock present"))
	}
	if info.Error != "" {
		_, _ = fmt.Fprintf(r.out, "  %s     %s\n", r.styles.Label.Render("Error:"), r.styles.Error.Render(info.Error))
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "valid":
		return r.styles.Success.Render(status)
	case "writing", "empty":
		return r.styles.Warning.Render(status)
	case "invalid":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
