package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriter_WriteJSON_CreatesDirLazily(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "out")
	w := NewWriter(base)
	if _, err := os.Stat(base); !os.IsNotExist(err) {
		t.Fatalf("dir should not exist before the first write, stat err=%v", err)
	}

	path, err := w.WriteJSON("result.json", map[string]string{"sage_gpt_result": "a<b>&c"})
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if path != filepath.Join(base, "result.json") {
		t.Fatalf("unexpected path %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "{\n    \"sage_gpt_result\": \"a<b>&c\"\n}\n"
	if string(got) != want {
		t.Fatalf("content mismatch:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriter_WriteJSON_OverwritesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	if _, err := w.WriteJSON("combined_results.json", []int{1, 2}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := w.WriteJSON("combined_results.json", []int{3}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "combined_results.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "[\n    3\n]\n" {
		t.Fatalf("content = %q", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the result file, found %d entries", len(entries))
	}
}

func TestWriter_WriteJSON_RejectsPaths(t *testing.T) {
	w := NewWriter(t.TempDir())
	for _, name := range []string{"", "../escape.json", "sub/dir.json"} {
		if _, err := w.WriteJSON(name, 1); err == nil {
			t.Fatalf("expected error for name %q", name)
		}
	}
}

func TestWriter_WriteJSON_UnencodableValue(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewWriter(dir)
	if _, err := w.WriteJSON("bad.json", map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatalf("expected encode error")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("failed encode should not create the output dir")
	}
}
