// package shared defines shared helpers
package shared

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// NewFileLogger creates a [log.Logger] that appends to the file at path,
// creating parent directories as needed. Falls back to stderr when the
// file can't be opened (the TUI must not lose its logger).
func NewFileLogger(path string) *log.Logger {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return NewLogger(nil)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return NewLogger(nil)
	}
	return NewLogger(f)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// GenerateState generates an opaque nonce for the OAuth authorization flow.
func GenerateState() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// CollapseWhitespace trims s and collapses interior whitespace runs to a single space.
func CollapseWhitespace(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

// NormalizeTrackKey builds the case-insensitive dedup key for an artist/title pair.
func NormalizeTrackKey(artist, title string) string {
	a := strings.ToLower(CollapseWhitespace(artist))
	t := strings.ToLower(CollapseWhitespace(title))
	return a + "|" + t
}

var searchPunctRegex = regexp.MustCompile("[\"'’`.,!?()\\[\\]]")

// SearchKey builds the track cache key for an artist/title pair. Unlike
// [NormalizeTrackKey] it also strips punctuation the catalog search ignores,
// so quoted or re-punctuated variants of the same track share an entry.
func SearchKey(artist, title string) string {
	a := CollapseWhitespace(searchPunctRegex.ReplaceAllString(strings.ToLower(artist), ""))
	t := CollapseWhitespace(searchPunctRegex.ReplaceAllString(strings.ToLower(title), ""))
	return a + "|" + t
}

// FormatDuration renders a duration in seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// VisibilityString maps a playlist's public flag to a display label.
func VisibilityString(public bool) string {
	if public {
		return "public"
	}
	return "private"
}

// MarshalJSON marshals v, indented when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// VerifyAndReadFile stats and reads the file at path, distinguishing a
// missing file from an unreadable one.
func VerifyAndReadFile(path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingArgument, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
