package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// AccountArchiver dumps every account owned by the program to object
// storage. It implements domain.Archiver.
type AccountArchiver struct {
	source  domain.AccountSource
	writer  domain.BlobWriter
	audit   domain.AuditStore
	program domain.Address
	prefix  string
}

var _ domain.Archiver = (*AccountArchiver)(nil)

// NewArchiver creates an archiver. audit may be nil.
func NewArchiver(source domain.AccountSource, writer domain.BlobWriter, audit domain.AuditStore, program domain.Address, prefix string) *AccountArchiver {
	return &AccountArchiver{
		source:  source,
		writer:  writer,
		audit:   audit,
		program: program,
		prefix:  prefix,
	}
}

// ArchiveAccounts fetches all program accounts, writes them as one JSONL
// object and records the dump in the audit log.
func (a *AccountArchiver) ArchiveAccounts(ctx context.Context, at time.Time) (string, int, error) {
	accounts, err := a.source.ProgramAccounts(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive accounts fetch: %w", err)
	}
	buf, err := EncodeDump(accounts)
	if err != nil {
		return "", 0, err
	}

	key := DumpPath(a.prefix, a.program, at)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), dumpContentType); err != nil {
		return "", 0, fmt.Errorf("s3blob: archive accounts upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.accounts", map[string]any{
			"path":  key,
			"count": len(accounts),
			"bytes": len(buf),
			"at":    at.UTC().Format(time.RFC3339),
		}); err != nil {
			return key, len(accounts), fmt.Errorf("s3blob: archive accounts audit log: %w", err)
		}
	}
	return key, len(accounts), nil
}

// LoadDump reads the dump at key. An empty key, or a key ending in "/",
// selects the newest dump for program under that prefix. An explicit key is
// checked before it is read and reports ErrNotFound when absent.
func LoadDump(ctx context.Context, r domain.BlobReader, prefix string, program domain.Address, key string) (string, []domain.RawAccount, error) {
	if key == "" || strings.HasSuffix(key, "/") {
		latest, err := LatestDump(ctx, r, path.Join(prefix, program.String())+"/")
		if err != nil {
			return "", nil, err
		}
		key = latest
	} else {
		ok, err := r.Exists(ctx, key)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return "", nil, fmt.Errorf("s3blob: dump %s: %w", key, domain.ErrNotFound)
		}
	}
	body, err := r.Get(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer body.Close()
	accounts, err := DecodeDump(body)
	if err != nil {
		return "", nil, fmt.Errorf("s3blob: load dump %s: %w", key, err)
	}
	return key, accounts, nil
}

// LatestDump returns the key of the newest dump under prefix. Keys sort by
// time because of their layout.
func LatestDump(ctx context.Context, r domain.BlobReader, prefix string) (string, error) {
	infos, err := r.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Path, ".jsonl") {
			keys = append(keys, info.Path)
		}
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("s3blob: no dumps under %s: %w", prefix, domain.ErrNotFound)
	}
	return slices.Max(keys), nil
}
