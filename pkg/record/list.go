package record

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo describes one finished or partial CSV in a data directory.
type FileInfo struct {
	Site     string            `json:"site"`
	Path     string            `json:"path"`
	Size     int64             `json:"size"`
	Modified time.Time         `json:"modified"`
	Header   map[string]string `json:"header,omitempty"`
}

// List returns the CSV files in dir, newest first. Files whose header
// cannot be read are listed without one.
func List(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".csv" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		fi := FileInfo{
			Site:     strings.TrimSuffix(e.Name(), ".csv"),
			Path:     filepath.Join(dir, e.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		}
		if f, err := os.Open(fi.Path); err == nil {
			fi.Header, _ = ReadHeader(f)
			f.Close()
		}
		out = append(out, fi)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Modified.After(out[j].Modified)
	})
	return out, nil
}
