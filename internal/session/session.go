package session

import (
	"os"
	"path/filepath"
	"strings"

	"prepflow/internal/config"
)

// Kind names one of the frame directories inside a session.
type Kind string

const (
	Biases Kind = "biases"
	Flats  Kind = "flats"
	Darks  Kind = "darks"
	Lights Kind = "lights"
)

// Kinds lists the frame directories in scan order.
var Kinds = []Kind{Biases, Flats, Darks, Lights}

var frameExts = map[string]struct{}{
	".fit":  {},
	".fits": {},
	".fts":  {},
	".ser":  {},
	".dng":  {},
	".nef":  {},
	".cr2":  {},
	".cr3":  {},
	".arw":  {},
	".rw2":  {},
	".orf":  {},
	".pef":  {},
	".raf":  {},
	".srw":  {},
	".x3f":  {},
}

// Summary holds the per-directory frame counts of one scan.
type Summary struct {
	Dir    string       `json:"dir"`
	Counts map[Kind]int `json:"counts"`
}

// Has reports whether the directory for kind exists and holds at least one
// frame. Stage blocks whose source directory fails this check are omitted
// from the generated script.
func (s Summary) Has(kind Kind) bool {
	return s.Counts[kind] > 0
}

// Count returns the frame count for kind.
func (s Summary) Count(kind Kind) int {
	return s.Counts[kind]
}

// IsFrameFile checks if a file is a FITS, SER or supported camera RAW frame.
func IsFrameFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := frameExts[ext]
	return ok
}

// ListFrames returns all frame files directly under dir, sorted by the
// ReadDir ordering. Nested directories are ignored; Siril sequences are flat.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsFrameFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// Scan counts the frames in each of the session's frame directories. A
// missing directory counts as zero; it is not an error.
func Scan(dir string, ses config.Session) (Summary, error) {
	sum := Summary{Dir: dir, Counts: make(map[Kind]int)}
	for kind, sub := range subDirs(ses) {
		frames, err := ListFrames(filepath.Join(dir, sub))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return sum, err
		}
		sum.Counts[kind] = len(frames)
	}
	return sum, nil
}

func subDirs(ses config.Session) map[Kind]string {
	return map[Kind]string{
		Biases: orDefault(ses.BiasesDir, "biases"),
		Flats:  orDefault(ses.FlatsDir, "flats"),
		Darks:  orDefault(ses.DarksDir, "darks"),
		Lights: orDefault(ses.LightsDir, "lights"),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
