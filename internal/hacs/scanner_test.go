package hacs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func names(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}

func TestScan_Installed(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root,
		"custom_components/Zeta",
		"custom_components/alpha",
		"custom_components/.cache",
		"www/community/mushroom",
	)
	writeFile(t, filepath.Join(root, "custom_components", "README.md"), "not a dir")

	old := time.Now().Add(-30 * 24 * time.Hour)
	if err := os.Chtimes(filepath.Join(root, "custom_components", "alpha"), old, old); err != nil {
		t.Fatal(err)
	}

	got, err := NewScanner(root).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if n := names(got.Integrations); !slices.Equal(n, []string{"alpha", "Zeta"}) {
		t.Errorf("integrations = %v, want [alpha Zeta]", n)
	}
	if n := names(got.Frontend); !slices.Equal(n, []string{"mushroom"}) {
		t.Errorf("frontend = %v", n)
	}
	if n := names(got.Installed); !slices.Equal(n, []string{"alpha", "Zeta", "mushroom"}) {
		t.Errorf("installed = %v", n)
	}
	if !slices.Equal(got.InstalledNames, []string{"alpha", "mushroom", "zeta"}) {
		t.Errorf("installed_names = %v", got.InstalledNames)
	}
	if n := names(got.NewDownloads); !slices.Equal(n, []string{"Zeta", "mushroom"}) {
		t.Errorf("new_downloads = %v, want [Zeta mushroom]", n)
	}

	alpha := got.Integrations[0]
	if alpha.Category != CategoryIntegration || alpha.Path != filepath.Join(root, "custom_components", "alpha") {
		t.Errorf("alpha = %+v", alpha)
	}
	if d := alpha.MTime - float64(old.Unix()); d < -1 || d > 1 {
		t.Errorf("alpha mtime = %v, want about %d", alpha.MTime, old.Unix())
	}
	if got.Frontend[0].Category != CategoryFrontend {
		t.Errorf("frontend category = %q", got.Frontend[0].Category)
	}
	if got.CutoffDays != 7 || got.Store == nil || len(got.Store) != 0 {
		t.Errorf("cutoff/store = %d/%v", got.CutoffDays, got.Store)
	}
}

func TestScan_EmptyRoot(t *testing.T) {
	got, err := NewScanner(filepath.Join(t.TempDir(), "absent")).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got.Installed == nil || len(got.Installed) != 0 || len(got.InstalledNames) != 0 || got.NewDownloads == nil {
		t.Errorf("Scan() = %+v, want empty lists", got)
	}

	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"integrations", "frontend", "installed", "installed_names", "new_downloads", "store"} {
		if string(fields[key]) != "[]" {
			t.Errorf("%s = %s, want []", key, fields[key])
		}
	}
}

func TestScan_FollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "custom_components/plain")
	target := filepath.Join(t.TempDir(), "checkout")
	if err := os.MkdirAll(target, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "elsewhere.txt"), "file")

	links := map[string]string{
		"my_integration": target,
		"dangling":       filepath.Join(root, "missing"),
		"to_file":        filepath.Join(root, "elsewhere.txt"),
	}
	for name, dest := range links {
		if err := os.Symlink(dest, filepath.Join(root, "custom_components", name)); err != nil {
			t.Skipf("symlinks unsupported: %v", err)
		}
	}

	got, err := NewScanner(root).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if n := names(got.Integrations); !slices.Equal(n, []string{"my_integration", "plain"}) {
		t.Errorf("integrations = %v, want [my_integration plain]", n)
	}
	if got.Integrations[0].MTime == 0 {
		t.Error("symlinked integration has no mtime")
	}
}

func TestScan_CutoffUsesClock(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "custom_components/recent")
	at := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(root, "custom_components", "recent"), at, at); err != nil {
		t.Fatal(err)
	}

	s := NewScanner(root)
	s.now = func() time.Time { return at.Add(7 * 24 * time.Hour) }
	got, err := s.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got.NewDownloads) != 1 {
		t.Errorf("exactly 7 days old should count as new: %v", names(got.NewDownloads))
	}

	s.now = func() time.Time { return at.Add(7*24*time.Hour + time.Second) }
	got, _ = s.Scan(context.Background())
	if len(got.NewDownloads) != 0 {
		t.Errorf("older than 7 days should not count: %v", names(got.NewDownloads))
	}
}

func TestScan_Store(t *testing.T) {
	root := t.TempDir()
	storage := filepath.Join(root, ".storage")
	writeFile(t, filepath.Join(storage, "hacs.data"), `{
  "data": {
    "repositories": {
      "plugin": [
        {"id": "190927524", "full_name": "piitaya/lovelace-mushroom"}
      ],
      "integration": [
        {"id": 123456, "full_name": "hacs/integration", "new": true},
        {"id": "42", "full_name": "solo"},
        "garbage"
      ],
      "theme": "not a list"
    }
  }
}`)
	writeFile(t, filepath.Join(storage, "hacs.repositories"), `{
  "data": {
    "1": {"full_name": "piitaya/lovelace-mushroom", "description": "Cards", "downloads": 1200, "stargazers_count": 3000, "last_updated": "2026-02-01T00:00:00Z"},
    "2": {"full_name": "hacs/integration", "stargazers_count": 5000},
    "3": {"full_name": 17}
  }
}`)

	got, err := NewScanner(root).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := []StoreItem{
		{ID: "123456", Name: "integration", FullName: "hacs/integration", Category: "integration", Stars: 5000, New: true},
		{ID: "42", Name: "solo", FullName: "solo", Category: "integration"},
		{
			ID: "190927524", Name: "lovelace-mushroom", FullName: "piitaya/lovelace-mushroom", Category: "plugin",
			Description: "Cards", Downloads: 1200, Stars: 3000, LastUpdated: "2026-02-01T00:00:00Z",
		},
	}
	if !slices.Equal(got.Store, want) {
		t.Errorf("store =\n%+v\nwant\n%+v", got.Store, want)
	}
}

func TestScan_MalformedStore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".storage", "hacs.data"), "{not json")

	got, err := NewScanner(root).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got.Store == nil || len(got.Store) != 0 {
		t.Errorf("store = %v, want empty", got.Store)
	}
}

func TestScan_UnreadableAddonDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	mkdirs(t, root, "custom_components/x")
	dir := filepath.Join(root, "custom_components")
	if err := os.Chmod(dir, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) }) //nolint:errcheck // test cleanup

	if _, err := NewScanner(root).Scan(context.Background()); err == nil {
		t.Fatal("Scan() should fail when an add-on directory cannot be listed")
	}
}
