package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"voxelrealm.ai/internal/sim/world"
)

// AuditFilter selects entries from ReadAudit. Zero fields match everything.
type AuditFilter struct {
	World    string
	Username string
	Limit    int
}

func (f AuditFilter) match(e world.AuditEntry) bool {
	return (f.World == "" || e.World == f.World) && (f.Username == "" || e.Username == f.Username)
}

// ReadAudit decodes every audit file in dir in chronological order. With a
// Limit only the newest entries are kept.
func ReadAudit(dir string, f AuditFilter) ([]world.AuditEntry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var out []world.AuditEntry
	for _, p := range paths {
		if err := readFile(p, func(e world.AuditEntry) {
			if f.match(e) {
				out = append(out, e)
			}
		}); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

func readFile(path string, fn func(world.AuditEntry)) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	dec, err := zstd.NewReader(file)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e world.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return err
		}
		fn(e)
	}
	// The current hour's frame is still open while the server writes to it.
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	return nil
}
