package wfde5

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FileName is a parsed WFDE5 file name of the form
// <variable>_<dataset>_<yearmonth>_<version><ext>, for example
// Rainf_WFDE5_CRU+GPCC_200001_v2.1.nc. The dataset part may itself contain
// underscores.
type FileName struct {
	Dir       string
	Variable  string
	Dataset   string
	YearMonth string
	Version   string
	Ext       string
}

// ParseFileName parses the base name of path. ext is the expected extension
// including the dot.
func ParseFileName(path, ext string) (FileName, error) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ext) {
		return FileName{}, errors.Wrapf(ErrFileName, "%s: want extension %q", base, ext)
	}
	parts := strings.Split(strings.TrimSuffix(base, ext), "_")
	if len(parts) < 4 {
		return FileName{}, errors.Wrap(ErrFileName, base)
	}
	n := len(parts)
	ym := parts[n-2]
	if len(ym) != 6 || strings.Trim(ym, "0123456789") != "" {
		return FileName{}, errors.Wrapf(ErrFileName, "%s: %q is not yyyymm", base, ym)
	}
	return FileName{
		Dir:       filepath.Dir(path),
		Variable:  parts[0],
		Dataset:   strings.Join(parts[1:n-2], "_"),
		YearMonth: ym,
		Version:   parts[n-1],
		Ext:       ext,
	}, nil
}

// Stem is the file name without directory and extension.
func (f FileName) Stem() string {
	return strings.Join([]string{f.Variable, f.Dataset, f.YearMonth, f.Version}, "_")
}

// Path is the full path of the file.
func (f FileName) Path() string {
	return filepath.Join(f.Dir, f.Stem()+f.Ext)
}

func (f FileName) String() string {
	return f.Stem() + f.Ext
}

// ClippedPath is where the clipped copy of f lives in dir.
func (f FileName) ClippedPath(dir string) string {
	return filepath.Join(dir, f.Stem()+"_Clip"+f.Ext)
}

// TablePath is where the per-period table of f lives in dir.
func (f FileName) TablePath(dir string) string {
	return filepath.Join(dir, f.Stem()+"_Clip.csv")
}

// Discover lists the files in dir ending in version+ext, ordered by period.
func Discover(dir, version, ext string) ([]FileName, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+version+ext))
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}
	files := make([]FileName, 0, len(paths))
	for _, p := range paths {
		f, err := ParseFileName(p, ext)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].YearMonth != files[j].YearMonth {
			return files[i].YearMonth < files[j].YearMonth
		}
		return files[i].Stem() < files[j].Stem()
	})
	return files, nil
}
