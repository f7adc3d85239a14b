// Package tail reads newly appended lines from mail log files. Each
// reader keeps a byte cursor (filename plus consumed offset) so a
// restart resumes where the previous run stopped, and resolves a date
// templated path each poll so day rotation switches files automatically.
package tail

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"time"
)

// dayLayouts are the date tokens a log path template may embed, replaced
// with the current date on every poll. A template without any of them
// names a single non-rotating file.
var dayLayouts = []string{"2006-01-02", "20060102"}

// Reader tails one (possibly date-templated) log file.
type Reader struct {
	template string
	file     string
	offset   int64
}

// NewReader returns a reader positioned at the start of the file the
// template resolves to.
func NewReader(template string) *Reader {
	return &Reader{template: template}
}

// Template returns the configured path template.
func (r *Reader) Template() string { return r.template }

// Position reports the resolved filename and consumed offset, for
// cursor persistence.
func (r *Reader) Position() (file string, offset int64) {
	return r.file, r.offset
}

// SetPosition restores a persisted cursor. The offset only applies while
// the template still resolves to the same file; a date change since the
// cursor was written resets it on the next poll.
func (r *Reader) SetPosition(file string, offset int64) {
	r.file = file
	r.offset = offset
}

// Poll reads every complete line appended since the previous poll. A
// partial trailing line is left unconsumed for the next pass. When the
// resolved filename changes (day rotation) the cursor restarts at zero;
// when the file shrank under the cursor (truncation or copytruncate
// rotation) it also restarts at zero.
func (r *Reader) Poll(now time.Time) ([]string, error) {
	path := resolvePath(r.template, now)
	if path != r.file {
		r.file = path
		r.offset = 0
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < r.offset {
		r.offset = 0
	}
	if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(f, 64*1024)
	var lines []string
	for {
		line, err := br.ReadString('\n')
		if err == nil {
			r.offset += int64(len(line))
			lines = append(lines, strings.TrimSuffix(line, "\n"))
			continue
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		return lines, err
	}
}

func resolvePath(template string, now time.Time) string {
	out := template
	for _, layout := range dayLayouts {
		out = strings.ReplaceAll(out, layout, now.Format(layout))
	}
	return out
}

// Position persistence, one JSON file for all readers keyed by template.

type cursor struct {
	File   string `json:"file"`
	Offset int64  `json:"offset"`
}

// SaveCursors writes the readers' positions to path atomically.
func SaveCursors(path string, readers []*Reader) error {
	cursors := make(map[string]cursor, len(readers))
	for _, r := range readers {
		file, offset := r.Position()
		if file == "" {
			continue
		}
		cursors[r.Template()] = cursor{File: file, Offset: offset}
	}
	b, err := json.MarshalIndent(cursors, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadCursors restores persisted positions into any reader whose
// template has a saved cursor. A missing file is not an error.
func LoadCursors(path string, readers []*Reader) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var cursors map[string]cursor
	if err := json.Unmarshal(b, &cursors); err != nil {
		return err
	}
	for _, r := range readers {
		if c, ok := cursors[r.Template()]; ok {
			r.SetPosition(c.File, c.Offset)
		}
	}
	return nil
}
