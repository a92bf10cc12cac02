package tree

import (
	"reflect"
	"slices"
	"testing"

	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		root, path, want string
	}{
		{"", "ASB2023", "ASB2023"},
		{"", "/ASB2023/", "ASB2023/"},
		{"data", "a//b", "data/a/b"},
		{"data/", "/a///b/", "data/a/b/"},
		{"data/", "", "data/"},
	}
	for _, tt := range tests {
		got := Normalize(tt.root, tt.path)
		if got != tt.want {
			t.Errorf("Normalize(%q, %q) = %q, want %q", tt.root, tt.path, got, tt.want)
		}
	}
}

func TestRelative(t *testing.T) {
	if got := Relative("data", "data/a/b"); got != "a/b" {
		t.Errorf("Relative = %q, want a/b", got)
	}
	if got := Relative("", "a/b"); got != "a/b" {
		t.Errorf("Relative with empty root = %q", got)
	}
}

func TestAncestorsOf(t *testing.T) {
	got := AncestorsOf("a/b/c")
	want := []string{"a/b/c", "a/b/c/", "a/b", "a/b/", "a", "a/", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AncestorsOf(a/b/c) = %v, want %v", got, want)
	}

	got = AncestorsOf("a/b/")
	want = []string{"a/b/", "a/b", "a", "a/", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AncestorsOf(a/b/) = %v, want %v", got, want)
	}

	if got := AncestorsOf(""); !reflect.DeepEqual(got, []string{""}) {
		t.Errorf("AncestorsOf(\"\") = %v", got)
	}
}

func TestChildFolder(t *testing.T) {
	tests := []struct {
		base, key, want string
	}{
		{"ASB2023", "ASB2023/S01/_subject.json", "ASB2023/S01/"},
		{"ASB2023", "ASB2023/S01", ""},
		{"ASB2023", "ASB2023", ""},
		{"ASB2023/S01/", "ASB2023/S01/trials/1", "ASB2023/S01/trials/"},
		{"ASB2023/S01/", "ASB2023/S01/trials", ""},
		{"", "a/b", "a/"},
		{"x/", "y/z", ""},
		{"a/b", "a/bc/y", ""},
	}
	for _, tt := range tests {
		got := ChildFolder(tt.base, tt.key)
		if got != tt.want {
			t.Errorf("ChildFolder(%q, %q) = %q, want %q", tt.base, tt.key, got, tt.want)
		}
	}
}

func TestFoldersFromFiles(t *testing.T) {
	files := []models.FileRecord{
		{Key: "ASB2023"},
		{Key: "ASB2023/S01"},
		{Key: "ASB2023/S01/_subject.json"},
		{Key: "ASB2023/S01/trials"},
		{Key: "ASB2023/S01/trials/1"},
		{Key: "ASB2023/TestProsthetic"},
		{Key: "ASB2023/TestProsthetic/_subject.json"},
	}

	got := FoldersFromFiles("ASB2023", files)
	want := []string{"ASB2023/S01/", "ASB2023/TestProsthetic/"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FoldersFromFiles = %v, want %v", got, want)
	}

	if got := FoldersFromFiles("ASB2023/", nil); len(got) != 0 {
		t.Errorf("FoldersFromFiles(nil) = %v, want empty", got)
	}
}

func TestFilesUnder(t *testing.T) {
	files := []models.FileRecord{
		{Key: "a/1"}, {Key: "a/b/2"}, {Key: "ab/3"},
	}
	got := FilesUnder("a/", files)
	if len(got) != 2 {
		t.Fatalf("FilesUnder(a/) returned %d files, want 2", len(got))
	}
	if got[0].Key != "a/1" || got[1].Key != "a/b/2" {
		t.Errorf("unexpected files: %v", got)
	}
}

func TestFilesUnderStopsAtSeparator(t *testing.T) {
	files := []models.FileRecord{
		{Key: "a/b"}, {Key: "a/b/x"}, {Key: "a/bc/y"}, {Key: "a/b/c/z"},
	}
	tests := []struct {
		prefix string
		want   []string
	}{
		{"a/b", []string{"a/b", "a/b/x", "a/b/c/z"}},
		{"a/b/", []string{"a/b/x", "a/b/c/z"}},
		{"a/bc", []string{"a/bc/y"}},
	}
	for _, tt := range tests {
		got := FilesUnder(tt.prefix, files)
		var keys []string
		for _, f := range got {
			keys = append(keys, f.Key)
		}
		if !slices.Equal(keys, tt.want) {
			t.Errorf("FilesUnder(%q) = %v, want %v", tt.prefix, keys, tt.want)
		}
	}

	if got := FoldersFromFiles("a/b", FilesUnder("a/b", files)); !slices.Equal(got, []string{"a/b/c/"}) {
		t.Errorf("folders under a/b = %v, want [a/b/c/]", got)
	}
}

func TestParentPrefix(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"a/b/c", "a/b"},
		{"a/b/", "a"},
		{"a", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParentPrefix(tt.path); got != tt.want {
			t.Errorf("ParentPrefix(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
