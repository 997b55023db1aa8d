package project

import (
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
)

// DefaultSampleLimit caps list_samples results when no limit is given.
const DefaultSampleLimit = 20

var sampleExtensions = []string{".wav", ".ogg", ".mp3", ".flac", ".ds"}

// Sample is one audio file in the library.
type Sample struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Category string `json:"category,omitempty"`
}

// Category is a top-level folder of the library.
type Category struct {
	Name      string `json:"name"`
	FileCount int    `json:"file_count"`
}

// Library is a read-only set of samples grouped by category.
type Library struct {
	samples []Sample
}

// NewLibrary creates a library from an explicit sample list.
func NewLibrary(samples ...Sample) *Library {
	return &Library{samples: samples}
}

// ScanLibrary walks each root for audio files. The category of a sample
// is its directory relative to the root. Unreadable entries are skipped.
func ScanLibrary(fsys fs.FS, roots ...string) (*Library, error) {
	lib := &Library{}
	for _, root := range roots {
		err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !isSample(d.Name()) {
				return nil
			}
			rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
			category := path.Dir(rel)
			if category == "." {
				category = ""
			}
			lib.samples = append(lib.samples, Sample{
				Name:     d.Name(),
				Path:     filepath.FromSlash(p),
				Category: category,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return lib, nil
}

func isSample(name string) bool {
	return lo.Contains(sampleExtensions, strings.ToLower(path.Ext(name)))
}

// Find returns samples in category (and its subfolders) whose name
// fuzzily matches search, up to limit. It also reports whether the limit
// cut the result short.
func (l *Library) Find(category, search string, limit int) ([]Sample, bool) {
	if limit <= 0 {
		limit = DefaultSampleLimit
	}

	matches := lo.Filter(l.samples, func(s Sample, _ int) bool {
		if category != "" && s.Category != category && !strings.HasPrefix(s.Category, category+"/") {
			return false
		}
		return search == "" || fuzzy.MatchFold(search, s.Name)
	})

	if len(matches) > limit {
		return matches[:limit], true
	}
	return matches, len(matches) == limit
}

// Categories lists the top-level categories with their direct file counts,
// sorted by name.
func (l *Library) Categories() []Category {
	counts := map[string]int{}
	for _, s := range l.samples {
		if s.Category == "" {
			continue
		}
		top, _, nested := strings.Cut(s.Category, "/")
		if _, ok := counts[top]; !ok {
			counts[top] = 0
		}
		if !nested {
			counts[top]++
		}
	}

	names := lo.Keys(counts)
	slices.Sort(names)
	return lo.Map(names, func(n string, _ int) Category {
		return Category{Name: n, FileCount: counts[n]}
	})
}
