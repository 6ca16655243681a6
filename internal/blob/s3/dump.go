package s3blob

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/codec"
	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// dumpContentType is the MIME type of a dump object.
const dumpContentType = "application/x-ndjson"

// dumpRecord is one JSONL line of a dump. Data is base64 in JSON.
type dumpRecord struct {
	Address domain.Address    `json:"address"`
	Kind    codec.AccountKind `json:"kind"`
	Data    []byte            `json:"data"`
}

// EncodeDump serialises accounts as JSONL, one account per line.
func EncodeDump(accounts []domain.RawAccount) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, a := range accounts {
		rec := dumpRecord{Address: a.Address, Kind: codec.KindOf(a.Data), Data: a.Data}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("s3blob: encode dump record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeDump reads a JSONL dump. Blank lines are ignored.
func DecodeDump(r io.Reader) ([]domain.RawAccount, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var out []domain.RawAccount
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec dumpRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("s3blob: decode dump line %d: %w", line, err)
		}
		out = append(out, domain.RawAccount{Address: rec.Address, Data: rec.Data})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: read dump: %w", err)
	}
	return out, nil
}

// DumpPath is the object key of a dump taken at t:
//
//	<prefix>/<program>/2006-01-02/20060102T150405Z.jsonl
func DumpPath(prefix string, program domain.Address, t time.Time) string {
	t = t.UTC()
	return path.Join(prefix, program.String(), t.Format("2006-01-02"), t.Format("20060102T150405Z")+".jsonl")
}
