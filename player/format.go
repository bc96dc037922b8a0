package player

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	vgmplay "github.com/devgianlu/go-vgmplay"
)

// Formats maps lowercase file extensions, including the dot, to the decoder
// able to open them.
type Formats map[string]vgmplay.OpenFunc

func (f Formats) Supported(path string) bool {
	_, ok := f[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (f Formats) Extensions() []string {
	exts := make([]string, 0, len(f))
	for ext := range f {
		exts = append(exts, ext)
	}

	sort.Strings(exts)
	return exts
}

// Open picks the decoder by extension.
func (f Formats) Open(log vgmplay.Logger, path string) (vgmplay.Decoder, error) {
	ext := strings.ToLower(filepath.Ext(path))
	open, ok := f[ext]
	if !ok {
		return nil, fmt.Errorf("%w: no decoder for extension %q", vgmplay.ErrUnsupportedFormat, ext)
	}

	return open(log, path)
}
