package ledger

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
)

// ErrChainBroken is returned by Verify when an entry does not link to its predecessor
var ErrChainBroken = errors.New("ledger chain broken")

// errTornTail marks a final line without a newline that does not parse, left by an interrupted write
var errTornTail = fmt.Errorf("%w: incomplete final entry", ErrChainBroken)

// entry is one line of the file ledger
type entry struct {
	Seq        int64        `json:"seq"`
	RecordedAt string       `json:"recorded_at"`
	PrevHash   string       `json:"prev_hash"`
	Hash       string       `json:"hash"`
	Record     AttackRecord `json:"record"`
}

func (e entry) computeHash() string {
	payload, _ := json.Marshal(e.Record)
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write([]byte(strconv.FormatInt(e.Seq, 10)))
	h.Write([]byte(e.RecordedAt))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// FileLedger is a hash-chained JSON lines file. Each entry carries the hash of
// its predecessor; the transaction id of an entry is its own hash.
type FileLedger struct {
	mu       sync.Mutex
	path     string
	lastHash string
	seq      int64
	seen     *dedup
	logger   *slog.Logger
	now      func() time.Time
	writeAt  func(f *os.File, b []byte, off int64) (int, error)
}

// OpenFileLedger opens or creates the ledger at path and replays it to restore the chain head
func OpenFileLedger(path string, logger *slog.Logger) (*FileLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: ledger path is empty", models.ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	l := &FileLedger{
		path:   path,
		seen:   newDedup(dedupCapacity),
		logger: logger,
		now:    time.Now,
	}
	l.writeAt = (*os.File).WriteAt

	good, err := l.walk(func(e entry) error {
		l.lastHash = e.Hash
		l.seq = e.Seq
		l.seen.put(e.Record.Key(), e.Hash)
		return nil
	})
	if errors.Is(err, errTornTail) {
		logger.Warn("dropping incomplete final ledger entry", slog.String("path", path), slog.Int64("offset", good))
		if err := os.Truncate(path, good); err != nil {
			return nil, fmt.Errorf("truncate ledger: %w", err)
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	logger.Info("file ledger opened", slog.String("path", path), slog.Int64("entries", l.seq))
	return l, nil
}

// Backend implements Sink
func (l *FileLedger) Backend() string {
	return "file"
}

// RecordAttack implements Sink
func (l *FileLedger) RecordAttack(ctx context.Context, rec AttackRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := rec.Key()
	if tx, ok := l.seen.get(key); ok {
		return tx, nil
	}

	e := entry{
		Seq:        l.seq + 1,
		RecordedAt: l.now().UTC().Format(time.RFC3339Nano),
		PrevHash:   l.lastHash,
		Record:     rec,
	}
	e.Hash = e.computeHash()

	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("%w: marshal ledger entry: %v", models.ErrLedgerSubmit, err)
	}

	if err := l.appendLine(append(payload, '\n')); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrLedgerSubmit, err)
	}

	l.seq = e.Seq
	l.lastHash = e.Hash
	l.seen.put(key, e.Hash)
	return e.Hash, nil
}

// appendLine writes line at the end of the file. A failed or short write is
// truncated away so the file always ends on a complete entry.
func (l *FileLedger) appendLine(line []byte) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger: %w", err)
	}
	size := info.Size()

	if _, err := l.writeAt(f, line, size); err != nil {
		if terr := f.Truncate(size); terr != nil {
			l.logger.Error("failed to roll back partial ledger write",
				slog.String("path", l.path),
				slog.Any("error", terr))
		}
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// AttackCount implements Sink
func (l *FileLedger) AttackCount(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq, nil
}

// Verify re-reads the file and checks every hash and back-link
func (l *FileLedger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := ""
	var seq int64
	_, err := l.walk(func(e entry) error {
		seq++
		if e.Seq != seq {
			return fmt.Errorf("%w: entry %d has sequence %d", ErrChainBroken, seq, e.Seq)
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d does not link to its predecessor", ErrChainBroken, e.Seq)
		}
		if e.computeHash() != e.Hash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrChainBroken, e.Seq)
		}
		prev = e.Hash
		return nil
	})
	return err
}

// walk calls fn for every entry in file order and returns the offset just past
// the last complete entry
func (l *FileLedger) walk(fn func(entry) error) (int64, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	var offset int64
	for {
		line, err := r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return offset, fmt.Errorf("read ledger: %w", err)
		}
		complete := err == nil
		if len(bytes.TrimSpace(line)) > 0 {
			var e entry
			if uerr := json.Unmarshal(line, &e); uerr != nil {
				if !complete {
					return offset, errTornTail
				}
				return offset, fmt.Errorf("%w: malformed entry: %v", ErrChainBroken, uerr)
			}
			if ferr := fn(e); ferr != nil {
				return offset, ferr
			}
		}
		offset += int64(len(line))
		if !complete {
			return offset, nil
		}
	}
}
