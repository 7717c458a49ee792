package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TrashMarker is the file name fragment that marks a negative sample.
const TrashMarker = "trash_data"

// Class indices.
const (
	LabelNotPassport = 0
	LabelPassport    = 1
)

// ClassNames maps a class index to its human readable name.
var ClassNames = [...]string{
	LabelNotPassport: "Not Passport",
	LabelPassport:    "Passport",
}

// NumClasses is the number of classes the builder emits.
const NumClasses = len(ClassNames)

// Discover returns the names of the .jpg files directly under dir in
// directory listing order.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("discover images: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if IsImageName(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// IsImageName reports whether name carries a .jpg extension, ignoring case.
func IsImageName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".jpg")
}

// LabelFor derives the class of a file from its name.
func LabelFor(name string) int {
	if strings.Contains(name, TrashMarker) {
		return LabelNotPassport
	}
	return LabelPassport
}
