package yamlref

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

func TestReplaceTokens(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		old, new  string
		want      string
		wantCount int
	}{
		{
			name: "boundary law",
			in:   "binary_sensor.x sensor.x sensor.xy",
			old:  "sensor.x", new: "sensor.y",
			want:      "binary_sensor.x sensor.y sensor.xy",
			wantCount: 1,
		},
		{
			name: "start and end of text",
			in:   "sensor.x",
			old:  "sensor.x", new: "sensor.z",
			want: "sensor.z", wantCount: 1,
		},
		{
			name: "yaml list item and quotes",
			in:   "entity_id:\n  - sensor.x\n  - 'sensor.x'\ntarget: \"sensor.x\"\n",
			old:  "sensor.x", new: "sensor.renamed",
			want:      "entity_id:\n  - sensor.renamed\n  - 'sensor.renamed'\ntarget: \"sensor.renamed\"\n",
			wantCount: 3,
		},
		{
			name: "dotted prefix is not a token",
			in:   "states.sensor.x.state",
			old:  "sensor.x", new: "sensor.y",
			want: "states.sensor.x.state", wantCount: 0,
		},
		{
			name: "trailing dot is a boundary",
			in:   "{{ sensor.x.attributes }}",
			old:  "sensor.x", new: "sensor.y",
			want: "{{ sensor.y.attributes }}", wantCount: 1,
		},
		{
			name: "uppercase neighbour blocks",
			in:   "Xsensor.x sensor.xA",
			old:  "sensor.x", new: "sensor.y",
			want: "Xsensor.x sensor.xA", wantCount: 0,
		},
		{
			name: "self overlapping id",
			in:   "a.a.a",
			old:  "a.a", new: "b.b",
			want: "b.b.a", wantCount: 1,
		},
		{
			name: "no occurrence",
			in:   "light.kitchen",
			old:  "sensor.x", new: "sensor.y",
			want: "light.kitchen", wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := ReplaceTokens(tt.in, tt.old, tt.new)
			if got != tt.want || n != tt.wantCount {
				t.Errorf("ReplaceTokens() = %q, %d; want %q, %d", got, n, tt.want, tt.wantCount)
			}
		})
	}
}

// writeTree creates files below root from a path → content map.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestRewrite(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"automations.yaml":                  "- trigger: sensor.old\n  action: sensor.old\n",
		"packages/lights.yaml":              "entity: sensor.old\n",
		"packages/untouched.yaml":           "entity: binary_sensor.old\n",
		"packages.yaml":                     "x: sensor.old\n",
		"scripts.yml":                       "entity: sensor.old\n",
		"custom_components/foo/config.yaml": "sensor.old\n",
		".storage/core.yaml":                "sensor.old\n",
		"www/community/card.yaml":           "sensor.old\n",
		"backups/old.yaml":                  "sensor.old\n",
		".hidden/secret.yaml":               "sensor.old\n",
		"nested/deps/lib.yaml":              "sensor.old\n",
		"nested/ok/deep.yaml":               "sensor.old sensor.old\n",
		"notes.txt":                         "sensor.old\n",
	})

	rw := New(root)
	res, err := rw.Rewrite(context.Background(), "sensor.old", "sensor.new")
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}

	want := []FileUpdate{
		{File: "automations.yaml", Replacements: 2},
		{File: "nested/ok/deep.yaml", Replacements: 2},
		{File: "packages.yaml", Replacements: 1},
		{File: "packages/lights.yaml", Replacements: 1},
	}
	if !reflect.DeepEqual(res.FilesUpdated, want) {
		t.Errorf("FilesUpdated = %+v, want %+v", res.FilesUpdated, want)
	}
	if res.TotalReplacements != 6 || !res.Success || len(res.Errors) != 0 {
		t.Errorf("Result = %+v", res)
	}

	if got := readFile(t, filepath.Join(root, "automations.yaml")); got != "- trigger: sensor.new\n  action: sensor.new\n" {
		t.Errorf("automations.yaml = %q", got)
	}
	for _, rel := range []string{
		"packages/untouched.yaml",
		"scripts.yml",
		"custom_components/foo/config.yaml",
		".storage/core.yaml",
		"www/community/card.yaml",
		"backups/old.yaml",
		".hidden/secret.yaml",
		"nested/deps/lib.yaml",
		"notes.txt",
	} {
		if got := readFile(t, filepath.Join(root, filepath.FromSlash(rel))); got == "" || containsNew(got) {
			t.Errorf("%s should be untouched, got %q", rel, got)
		}
	}
}

func containsNew(s string) bool {
	_, n := ReplaceTokens(s, "sensor.new", "x")
	return n > 0
}

func TestRewrite_InvalidUTF8ReportedInline(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.yaml": "sensor.old\n",
		"z.yaml": "sensor.old\n",
	})
	if err := os.WriteFile(filepath.Join(root, "m.yaml"), []byte{'s', 0xff, 0xfe}, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := New(root).Rewrite(context.Background(), "sensor.old", "sensor.new")
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if len(res.Errors) != 1 || res.Errors[0].File != "m.yaml" {
		t.Errorf("Errors = %+v, want one for m.yaml", res.Errors)
	}
	if len(res.FilesUpdated) != 2 || res.TotalReplacements != 2 {
		t.Errorf("one bad file must not stop the scan: %+v", res)
	}
}

func TestRewrite_UnreadableFile(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{"locked.yaml": "sensor.old\n", "open.yaml": "sensor.old\n"})
	if err := os.Chmod(filepath.Join(root, "locked.yaml"), 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(filepath.Join(root, "locked.yaml"), 0o644) }) //nolint:errcheck // test cleanup

	res, err := New(root).Rewrite(context.Background(), "sensor.old", "sensor.new")
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if len(res.Errors) != 1 || res.Errors[0].File != "locked.yaml" {
		t.Errorf("Errors = %+v", res.Errors)
	}
	if len(res.FilesUpdated) != 1 || res.FilesUpdated[0].File != "open.yaml" {
		t.Errorf("FilesUpdated = %+v", res.FilesUpdated)
	}
}

func TestRewrite_MissingRoot(t *testing.T) {
	res, err := New(filepath.Join(t.TempDir(), "missing")).Rewrite(context.Background(), "sensor.a", "sensor.b")
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	if !res.Success || len(res.FilesUpdated) != 0 || len(res.Errors) != 0 {
		t.Errorf("Result = %+v", res)
	}
}

func TestRewrite_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.yaml": "sensor.old\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(root).Rewrite(ctx, "sensor.old", "sensor.new")
	if err == nil {
		t.Fatal("Rewrite() should report cancellation")
	}
	if res == nil || res.TotalReplacements != 0 {
		t.Errorf("Result = %+v", res)
	}
	if got := readFile(t, filepath.Join(root, "a.yaml")); got != "sensor.old\n" {
		t.Errorf("file changed after cancellation: %q", got)
	}
}
