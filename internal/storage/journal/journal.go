package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// AppendOnlyLog defines the min operations for the progress journal.
// Implementations should guarantee ordering and durability of appended
// records and be concurrent-safe.
type AppendOnlyLog interface {
	Append(ctx context.Context, records ...Record) error
	Flush(ctx context.Context) error
	Close() error
}

type FileLog struct {
	Closed bool

	file *os.File
	wrt  *bufio.Writer

	path string
	mu   sync.Mutex
}

const DefaultBufSize = 64 * 1024
const MaxScanBufSize = 6 * 1024 * 1024

func NewFileLog(path string) (*FileLog, error) {
	if path == "" {
		return nil, errors.New("journal: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open file: %w", err)
	}

	return &FileLog{
		wrt:  bufio.NewWriterSize(f, DefaultBufSize),
		file: f,
		path: path,
	}, nil
}

func (fl *FileLog) Append(ctx context.Context, records ...Record) error {
	if len(records) == 0 || fl.Closed {
		return nil
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("journal: encode record: %w", err)
		}
		if _, err := fl.wrt.Write(data); err != nil {
			return fmt.Errorf("journal: write record: %w", err)
		}
		if err := fl.wrt.WriteByte('\n'); err != nil {
			return fmt.Errorf("journal: write record: %w", err)
		}
	}
	return nil
}

func (fl *FileLog) Flush(ctx context.Context) error {
	if fl.Closed {
		return nil
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fl.wrt.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	if err := fl.file.Sync(); err != nil {
		return fmt.Errorf("journal: fsync: %w", err)
	}
	return nil
}

func (fl *FileLog) Close() error {
	if fl.file == nil || fl.wrt == nil {
		return nil
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	combErr := errors.New("journal: close errors")
	gotErr := false

	if err := fl.wrt.Flush(); err != nil && !errors.Is(err, os.ErrClosed) {
		combErr = fmt.Errorf("%w: flush: %v", combErr, err)
		gotErr = true
	}
	if err := fl.file.Sync(); err != nil {
		combErr = fmt.Errorf("%w: fsync: %v", combErr, err)
		gotErr = true
	}
	if err := fl.file.Close(); err != nil {
		combErr = fmt.Errorf("%w: close: %v", combErr, err)
		gotErr = true
	}
	fl.wrt = nil
	fl.file = nil
	fl.Closed = true
	if !gotErr {
		return nil
	}
	return combErr
}

func (fl *FileLog) Path() string {
	return fl.path
}

// ReadAll scans every intact record from the journal file. A torn tail
// record (crash mid-append) truncates the replay instead of failing it.
func ReadAll(ctx context.Context, path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: readall open: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	buf := make([]byte, 0, DefaultBufSize)
	sc.Buffer(buf, MaxScanBufSize)
	records := make([]Record, 0, 64)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bytes := sc.Bytes()
		if len(bytes) == 0 {
			continue
		}

		rec := Record{}
		if err := json.Unmarshal(bytes, &rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			var se *json.SyntaxError
			if errors.As(err, &se) {
				break
			}
			return nil, fmt.Errorf("journal: decode record: %w", err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan: %w", err)
	}
	return records, nil
}
