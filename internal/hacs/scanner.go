// Package hacs lists community add-ons installed below the platform's
// configuration directory, together with the store catalogue cached by
// the community store integration.
package hacs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CutoffDays is the age limit for an install to count as a new download.
const CutoffDays = 7

// Item categories.
const (
	CategoryIntegration = "integration"
	CategoryFrontend    = "frontend"
)

// Logger defines the logging interface used by the Scanner.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Item is one installed add-on directory.
type Item struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Category string `json:"category"`

	// MTime is the directory's modification time in Unix seconds, or 0
	// if it could not be read.
	MTime float64 `json:"mtime"`
}

// StoreItem is one repository of the cached store catalogue.
type StoreItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Downloads   int    `json:"downloads"`
	Stars       int    `json:"stars"`
	LastUpdated string `json:"last_updated"`
	New         bool   `json:"new"`
}

// Listing is the result of a scan.
type Listing struct {
	Integrations   []Item      `json:"integrations"`
	Frontend       []Item      `json:"frontend"`
	Installed      []Item      `json:"installed"`
	InstalledNames []string    `json:"installed_names"`
	NewDownloads   []Item      `json:"new_downloads"`
	Store          []StoreItem `json:"store"`
	CutoffDays     int         `json:"cutoff_days"`
}

// Scanner inspects a configuration directory.
type Scanner struct {
	root   string
	now    func() time.Time
	logger Logger
}

// NewScanner creates a Scanner over the configuration directory root.
func NewScanner(root string) *Scanner {
	return &Scanner{root: root, now: time.Now, logger: noopLogger{}}
}

// SetLogger sets the logger for the scanner.
func (s *Scanner) SetLogger(logger Logger) {
	s.logger = logger
}

// Scan lists installed integrations (custom_components) and frontend
// cards (www/community), and loads the store catalogue from .storage.
//
// Missing directories yield empty lists. An unreadable or malformed
// store catalogue yields an empty store. Only a failure to list an
// existing add-on directory is returned as an error.
func (s *Scanner) Scan(ctx context.Context) (*Listing, error) {
	integrations, err := listDirs(filepath.Join(s.root, "custom_components"), CategoryIntegration)
	if err != nil {
		return nil, err
	}
	frontend, err := listDirs(filepath.Join(s.root, "www", "community"), CategoryFrontend)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	installed := make([]Item, 0, len(integrations)+len(frontend))
	installed = append(installed, integrations...)
	installed = append(installed, frontend...)
	cutoff := s.now().Add(-CutoffDays * 24 * time.Hour)
	cutoffSecs := float64(cutoff.UnixNano()) / float64(time.Second)

	names := make(map[string]struct{}, len(installed))
	newDownloads := []Item{}
	for _, it := range installed {
		names[strings.ToLower(it.Name)] = struct{}{}
		if it.MTime >= cutoffSecs {
			newDownloads = append(newDownloads, it)
		}
	}
	installedNames := make([]string, 0, len(names))
	for name := range names {
		installedNames = append(installedNames, name)
	}
	slices.Sort(installedNames)

	return &Listing{
		Integrations:   integrations,
		Frontend:       frontend,
		Installed:      installed,
		InstalledNames: installedNames,
		NewDownloads:   newDownloads,
		Store:          s.loadStore(),
		CutoffDays:     CutoffDays,
	}, nil
}

// listDirs returns the non-hidden subdirectories of dir, sorted
// case-insensitively. Symlinks to directories count as directories.
func listDirs(dir, category string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	items := []Item{}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		items = append(items, Item{
			Name:     entry.Name(),
			Path:     path,
			Category: category,
			MTime:    float64(info.ModTime().UnixNano()) / float64(time.Second),
		})
	}
	slices.SortStableFunc(items, func(a, b Item) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return items, nil
}

// repositoryDetail is the part of a hacs.repositories record we use.
type repositoryDetail struct {
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Downloads   int    `json:"downloads"`
	Stars       int    `json:"stargazers_count"`
	LastUpdated string `json:"last_updated"`
	New         bool   `json:"new"`
}

// catalogueEntry is one item of a hacs.data category list.
type catalogueEntry struct {
	ID       any    `json:"id"`
	FullName string `json:"full_name"`
	New      bool   `json:"new"`
}

// loadStore joins the category lists of hacs.data with the repository
// details of hacs.repositories by full_name. Categories are emitted in
// name order, items in file order.
func (s *Scanner) loadStore() []StoreItem {
	store := []StoreItem{}
	storage := filepath.Join(s.root, ".storage")

	details := s.loadDetails(filepath.Join(storage, "hacs.repositories"))

	data, err := os.ReadFile(filepath.Join(storage, "hacs.data"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("hacs.data unreadable", "error", err)
		}
		return store
	}

	var doc struct {
		Data struct {
			Repositories map[string]json.RawMessage `json:"repositories"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Debug("hacs.data malformed", "error", err)
		return store
	}

	categories := make([]string, 0, len(doc.Data.Repositories))
	for category := range doc.Data.Repositories {
		categories = append(categories, category)
	}
	slices.Sort(categories)

	for _, category := range categories {
		var raw []json.RawMessage
		if err := json.Unmarshal(doc.Data.Repositories[category], &raw); err != nil {
			continue
		}
		for _, r := range raw {
			var entry catalogueEntry
			if err := json.Unmarshal(r, &entry); err != nil {
				continue
			}
			det := details[entry.FullName]
			store = append(store, StoreItem{
				ID:          idString(entry.ID),
				Name:        repoName(entry.FullName),
				FullName:    entry.FullName,
				Category:    category,
				Description: det.Description,
				Downloads:   det.Downloads,
				Stars:       det.Stars,
				LastUpdated: det.LastUpdated,
				New:         entry.New || det.New,
			})
		}
	}
	return store
}

// loadDetails reads hacs.repositories into a map keyed by full_name.
// Records that fail to decode are skipped.
func (s *Scanner) loadDetails(path string) map[string]repositoryDetail {
	details := make(map[string]repositoryDetail)

	data, err := os.ReadFile(path)
	if err != nil {
		return details
	}
	var doc struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Debug("hacs.repositories malformed", "error", err)
		return details
	}
	for _, raw := range doc.Data {
		var det repositoryDetail
		if err := json.Unmarshal(raw, &det); err != nil || det.FullName == "" {
			continue
		}
		details[det.FullName] = det
	}
	return details
}

// repoName returns the part of "owner/name" after the last slash.
func repoName(fullName string) string {
	if i := strings.LastIndex(fullName, "/"); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
