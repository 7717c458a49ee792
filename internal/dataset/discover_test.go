package dataset

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLabelFor(t *testing.T) {
	cases := map[string]int{
		"trash_data_1.jpg":     LabelNotPassport,
		"old_trash_data.JPG":   LabelNotPassport,
		"passport_1.jpg":       LabelPassport,
		"trash-data_2.jpg":     LabelPassport,
		"TRASH_DATA_upper.jpg": LabelPassport,
	}
	for name, want := range cases {
		if got := LabelFor(name); got != want {
			t.Fatalf("LabelFor(%q)=%d want %d", name, got, want)
		}
	}
}

func TestDiscoverFiltersAndOrders(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.JPG", "c.jpeg", "d.png", "notes.txt", "e.jpg.bak"} {
		mustWrite(t, filepath.Join(dir, name), []byte("x"))
	}
	if err := os.Mkdir(filepath.Join(dir, "dir.jpg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	names, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{"a.JPG", "b.jpg"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("Discover=%v want %v", names, want)
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestClassNames(t *testing.T) {
	if ClassNames[LabelNotPassport] != "Not Passport" || ClassNames[LabelPassport] != "Passport" {
		t.Fatalf("unexpected lookup %v", ClassNames)
	}
	if NumClasses != 2 {
		t.Fatalf("expected 2 classes, got %d", NumClasses)
	}
}
