package tracks

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Source provides the names of the playable files.
type Source interface {
	Files() ([]string, error)
}

// DirSource lists the supported files directly inside Dir.
type DirSource struct {
	Dir       string
	Supported func(name string) bool
}

func (s *DirSource) Files() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed reading music directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		} else if s.Supported != nil && !s.Supported(entry.Name()) {
			continue
		}

		files = append(files, entry.Name())
	}

	sort.SliceStable(files, func(i, j int) bool {
		return strings.ToLower(files[i]) < strings.ToLower(files[j])
	})

	return files, nil
}
