// Package yamlref rewrites entity id references in a tree of YAML
// configuration files.
//
// Matching is by whole token: the id must not be preceded by a letter,
// digit, underscore or dot, and must not be followed by a letter, digit
// or underscore. Replacing sensor.x therefore leaves binary_sensor.x and
// sensor.xy alone.
package yamlref

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// excludedDirs are never descended into. Directories whose name starts
// with a dot are excluded as well.
var excludedDirs = map[string]bool{
	"custom_components": true,
	".storage":          true,
	"deps":              true,
	"tts":               true,
	"__pycache__":       true,
	"backups":           true,
	"www":               true,
	".git":              true,
}

const yamlSuffix = ".yaml"

// Logger defines the logging interface used by the Rewriter.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// FileUpdate reports the replacements made in one file.
type FileUpdate struct {
	File         string `json:"file"`
	Replacements int    `json:"replacements"`
}

// FileError reports a file that could not be read or written.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Result is the outcome of a rewrite. File paths are relative to the
// root, slash separated.
type Result struct {
	Success           bool         `json:"success"`
	FilesUpdated      []FileUpdate `json:"files_updated"`
	Errors            []FileError  `json:"errors"`
	TotalReplacements int          `json:"total_replacements"`
}

// Rewriter replaces entity id references below a configuration directory.
type Rewriter struct {
	root   string
	logger Logger
}

// New creates a Rewriter rooted at the configuration directory root.
func New(root string) *Rewriter {
	return &Rewriter{root: root, logger: noopLogger{}}
}

// SetLogger sets the logger for the rewriter.
func (r *Rewriter) SetLogger(logger Logger) {
	r.logger = logger
}

// Root returns the configuration directory.
func (r *Rewriter) Root() string {
	return r.root
}

// Rewrite replaces every whole-token occurrence of oldID with newID in
// the *.yaml files below the root, in sorted path order.
//
// Files are modified in place. A file that cannot be read or written is
// reported in Result.Errors and the scan continues. The only error
// returned is ctx's, if it is cancelled mid-scan; the partial result is
// returned with it.
func (r *Rewriter) Rewrite(ctx context.Context, oldID, newID string) (*Result, error) {
	result := &Result{
		Success:      true,
		FilesUpdated: []FileUpdate{},
		Errors:       []FileError{},
	}
	if oldID == "" {
		return result, nil
	}

	files, walkErrs := r.collect()
	result.Errors = append(result.Errors, walkErrs...)

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("rewriting references: %w", err)
		}

		n, err := rewriteFile(filepath.Join(r.root, filepath.FromSlash(rel)), oldID, newID)
		if err != nil {
			r.logger.Warn("yaml reference rewrite failed", "file", rel, "error", err)
			result.Errors = append(result.Errors, FileError{File: rel, Error: err.Error()})
			continue
		}
		if n > 0 {
			result.FilesUpdated = append(result.FilesUpdated, FileUpdate{File: rel, Replacements: n})
			result.TotalReplacements += n
		}
	}

	r.logger.Info("yaml references updated",
		"old_entity_id", oldID,
		"new_entity_id", newID,
		"total_replacements", result.TotalReplacements,
		"files", len(result.FilesUpdated),
	)
	return result, nil
}

// collect returns the relative paths of candidate files, sorted.
func (r *Rewriter) collect() ([]string, []FileError) {
	var files []string
	var errs []FileError

	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(r.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			if rel == "." {
				return err
			}
			errs = append(errs, FileError{File: rel, Error: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if rel != "." && isExcluded(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), yamlSuffix) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, FileError{File: ".", Error: err.Error()})
	}

	sort.Strings(files)
	return files, errs
}

func isExcluded(name string) bool {
	return excludedDirs[name] || strings.HasPrefix(name, ".")
}

// rewriteFile applies the replacement to one file and returns the count.
func rewriteFile(path, oldID, newID string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if !utf8.Valid(data) {
		return 0, errors.New("file is not valid UTF-8")
	}

	content := string(data)
	if !strings.Contains(content, oldID) {
		return 0, nil
	}

	updated, n := ReplaceTokens(content, oldID, newID)
	if n == 0 {
		return 0, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return 0, err
	}
	return n, nil
}

// ReplaceTokens replaces whole-token occurrences of oldID in s and
// returns the new text and the number of replacements. Matches are
// found left to right without overlap.
func ReplaceTokens(s, oldID, newID string) (string, int) {
	if oldID == "" {
		return s, 0
	}

	var b strings.Builder
	count := 0
	i := 0
	for {
		j := strings.Index(s[i:], oldID)
		if j < 0 {
			break
		}
		start := i + j
		end := start + len(oldID)

		if (start == 0 || !isBeforeTokenByte(s[start-1])) && (end == len(s) || !isAfterTokenByte(s[end])) {
			b.WriteString(s[i:start])
			b.WriteString(newID)
			count++
			i = end
			continue
		}

		// Not a whole token; retry from the next byte.
		b.WriteString(s[i : start+1])
		i = start + 1
	}

	if count == 0 {
		return s, 0
	}
	b.WriteString(s[i:])
	return b.String(), count
}

// isAfterTokenByte reports whether c may not follow a match: [A-Za-z0-9_].
func isAfterTokenByte(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}

// isBeforeTokenByte reports whether c may not precede a match: [A-Za-z0-9_.].
func isBeforeTokenByte(c byte) bool {
	return c == '.' || isAfterTokenByte(c)
}
