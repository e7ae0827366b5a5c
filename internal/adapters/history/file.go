package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/okian/skillboard/internal/domain/model"
)

const maxLineBytes = 1 << 20

// File reads a channel export with one JSON message per line.
type File struct {
	path   string
	filter filter
}

// NewFile creates a Source over the JSON-lines export at path.
func NewFile(path string, opts ...Option) *File {
	return &File{path: path, filter: newFilter(opts)}
}

// Messages implements Source. The file is read on every call.
func (f *File) Messages(ctx context.Context) ([]model.Message, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer fh.Close()

	msgs, err := Decode(ctx, fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	return f.filter.apply(msgs), nil
}

// Decode reads JSON-lines messages from r. Blank lines are skipped.
func Decode(ctx context.Context, r io.Reader) ([]model.Message, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var out []model.Message
	for n := 1; sc.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var m model.Message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrDecode, n, err)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("%w: line %d: missing id", ErrDecode, n)
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return out, nil
}
