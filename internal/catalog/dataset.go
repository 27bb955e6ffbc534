package catalog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"openprices_sync/pkg/logger"
)

const readBufferSize = 1 << 20

var ErrNoDataset = errors.New("flavor has no public dataset")

// Dataset is the JSONL product export of one flavor, cached on local disk.
type Dataset struct {
	Flavor        Flavor
	URL           string
	CacheDir      string
	ForceDownload bool
	Fetcher       Fetcher

	log logger.Logger
}

// NewDataset uses the flavor's public dump unless url overrides it. url may
// also be a local file path, in which case nothing is downloaded.
func NewDataset(flavor Flavor, url, cacheDir string, forceDownload bool, fetcher Fetcher, log logger.Logger) (*Dataset, error) {
	if url == "" {
		url = flavor.DatasetURL()
	}
	if url == "" {
		return nil, fmt.Errorf("%s: %w", flavor, ErrNoDataset)
	}
	return &Dataset{
		Flavor:        flavor,
		URL:           url,
		CacheDir:      cacheDir,
		ForceDownload: forceDownload,
		Fetcher:       fetcher,
		log:           log,
	}, nil
}

func (d *Dataset) isRemote() bool {
	return strings.HasPrefix(d.URL, "http://") || strings.HasPrefix(d.URL, "https://")
}

// Path is where the dump is read from.
func (d *Dataset) Path() string {
	if !d.isRemote() {
		return d.URL
	}
	name := path.Base(d.URL)
	if name == "" || name == "/" || name == "." {
		name = string(d.Flavor) + "-products.jsonl.gz"
	}
	return filepath.Join(d.CacheDir, string(d.Flavor), name)
}

// Download refreshes the cached dump. Without ForceDownload a conditional
// request keeps an up-to-date cache. The file is written to a temporary name
// and only renamed into place once complete.
func (d *Dataset) Download(ctx context.Context) error {
	if !d.isRemote() {
		_, err := os.Stat(d.URL)
		return err
	}

	target := d.Path()
	var since time.Time
	if !d.ForceDownload {
		if info, err := os.Stat(target); err == nil {
			since = info.ModTime()
		}
	}

	d.log.Info("downloading %s", d.URL)
	result, err := d.Fetcher.Fetch(ctx, d.URL, since)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", d.URL, err)
	}
	if result.NotModified {
		d.log.Info("cached dump %s is up to date", target)
		return nil
	}
	defer result.Body.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".part-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, result.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", d.URL, err)
	}
	if result.ContentLength >= 0 && written != result.ContentLength {
		return fmt.Errorf("download %s: truncated, got %d of %d bytes", d.URL, written, result.ContentLength)
	}

	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("move dump into cache: %w", err)
	}
	if !result.LastModified.IsZero() {
		_ = os.Chtimes(target, result.LastModified, result.LastModified)
	}
	d.log.Info("downloaded %d bytes to %s", written, target)
	return nil
}

// Open downloads the dump if needed and returns a stream over its records.
func (d *Dataset) Open(ctx context.Context) (*RecordStream, error) {
	if err := d.Download(ctx); err != nil {
		return nil, err
	}
	return OpenRecordStream(d.Path())
}

// RecordStream reads one JSON object per line from a plain or gzip file.
type RecordStream struct {
	file   *os.File
	gz     *gzip.Reader
	reader *bufio.Reader
	line   int
}

func OpenRecordStream(name string) (*RecordStream, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	s := &RecordStream{file: f}
	buffered := bufio.NewReaderSize(f, readBufferSize)
	magic, err := buffered.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip %s: %w", name, err)
		}
		s.gz = gz
		s.reader = bufio.NewReaderSize(gz, readBufferSize)
	} else {
		s.reader = buffered
	}
	return s, nil
}

// Next returns the next record, io.EOF at the end, a *SkipError for a line
// that is not a JSON object, or any other error for an unreadable file.
func (s *RecordStream) Next() (RawRecord, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read line %d: %w", s.line+1, err)
		}
		if len(line) == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		s.line++

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var record RawRecord
		if jsonErr := json.Unmarshal(line, &record); jsonErr != nil {
			return nil, skip(fmt.Sprintf("line %d", s.line), SkipMalformed, jsonErr)
		}
		return record, nil
	}
}

// Line is the number of lines read so far.
func (s *RecordStream) Line() int { return s.line }

func (s *RecordStream) Close() error {
	if s.gz != nil {
		s.gz.Close()
	}
	return s.file.Close()
}
