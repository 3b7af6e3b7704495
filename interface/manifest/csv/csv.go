package csv

import (
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/interface/manifest"
	"github.com/google/uuid"
)

// Store implements manifest.Store with csv files: url,country,year,month,downloaded
// A manifest is rewritten as a whole through a temporary file, synced and atomically renamed,
// so that an interrupted process never leaves a partially written manifest.
type Store struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a store writing the manifests in dir
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csv.New: %w", err)
	}
	return &Store{dir: dir, now: time.Now, locks: map[string]*sync.Mutex{}}, nil
}

// Dir returns the directory of the manifests
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) lock(location string) func() {
	key := filepath.Clean(location)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Create implements manifest.Store
func (s *Store) Create(ctx context.Context, region string, descriptors []common.ExportDescriptor) (string, error) {
	id := uuid.New().String()[:8]
	location := filepath.Join(s.dir, common.ManifestFileName(region, s.now(), id))
	defer s.lock(location)()

	if _, err := os.Stat(location); err == nil {
		return "", fmt.Errorf("csv.Create: %s already exists", location)
	}
	if err := writeAtomic(location, descriptors); err != nil {
		return "", fmt.Errorf("csv.Create: %w", err)
	}
	return location, nil
}

// Load implements manifest.Store
func (s *Store) Load(ctx context.Context, location string) ([]common.ExportDescriptor, error) {
	defer s.lock(location)()
	descriptors, err := read(location)
	if err != nil {
		return nil, fmt.Errorf("csv.Load: %w", err)
	}
	return descriptors, nil
}

// Update implements manifest.Store
func (s *Store) Update(ctx context.Context, location string, index int, downloaded bool) error {
	defer s.lock(location)()
	descriptors, err := read(location)
	if err != nil {
		return fmt.Errorf("csv.Update: %w", err)
	}
	if index < 0 || index >= len(descriptors) {
		return fmt.Errorf("csv.Update[%d/%d]: %w", index, len(descriptors), manifest.ErrIndexOutOfRange)
	}
	if descriptors[index].Downloaded == downloaded {
		return nil
	}
	descriptors[index].Downloaded = downloaded
	if err := writeAtomic(location, descriptors); err != nil {
		return fmt.Errorf("csv.Update: %w", err)
	}
	return nil
}

// Locations implements manifest.Store
func (s *Store) Locations(ctx context.Context, region string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("csv.Locations: %w", err)
	}
	re := regexp.MustCompile("^" + regexp.QuoteMeta(common.ManifestPrefix(region)) + `\d{8}_\d{6}(_[0-9a-f]+)?_urls\.csv$`)
	var names []string
	for _, e := range entries {
		if !e.IsDir() && re.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	// The timestamp is the first part after the region: lexicographic order is chronological
	sort.Strings(names)
	locations := make([]string, len(names))
	for i, n := range names {
		locations[i] = filepath.Join(s.dir, n)
	}
	return locations, nil
}

func read(location string) ([]common.ExportDescriptor, error) {
	f, err := os.Open(location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", location, manifest.ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()
	return decode(f)
}

func decode(r io.Reader) ([]common.ExportDescriptor, error) {
	cr := stdcsv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty manifest")
		}
		return nil, fmt.Errorf("header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range common.ManifestColumns[:4] {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %s", c)
		}
	}
	var descriptors []common.ExportDescriptor
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			return descriptors, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(c string) string {
			if i, ok := cols[c]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}
		d := common.ExportDescriptor{URL: field(common.ColumnURL), Region: field(common.ColumnCountry)}
		if d.Window.Year, err = strconv.Atoi(field(common.ColumnYear)); err != nil {
			return nil, fmt.Errorf("line %d: year: %w", line, err)
		}
		if d.Window.Month, err = strconv.Atoi(field(common.ColumnMonth)); err != nil {
			return nil, fmt.Errorf("line %d: month: %w", line, err)
		}
		if d.Window.Month < 1 || d.Window.Month > 12 {
			return nil, fmt.Errorf("line %d: invalid month %d", line, d.Window.Month)
		}
		// pandas writes True/False
		if v := field(common.ColumnDownloaded); v != "" {
			if d.Downloaded, err = strconv.ParseBool(v); err != nil {
				return nil, fmt.Errorf("line %d: downloaded: %w", line, err)
			}
		}
		descriptors = append(descriptors, d)
	}
}

func encode(w io.Writer, descriptors []common.ExportDescriptor) error {
	cw := stdcsv.NewWriter(w)
	if err := cw.Write(common.ManifestColumns); err != nil {
		return err
	}
	for _, d := range descriptors {
		downloaded := "False"
		if d.Downloaded {
			downloaded = "True"
		}
		if err := cw.Write([]string{d.URL, d.Region, strconv.Itoa(d.Window.Year), d.Window.MonthString(), downloaded}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeAtomic writes the manifest in a temporary file of the same directory, then renames it
func writeAtomic(location string, descriptors []common.ExportDescriptor) error {
	dir := filepath.Dir(location)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(location)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writeAtomic.CreateTemp: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename
	if err := encode(tmp, descriptors); err != nil {
		tmp.Close()
		return fmt.Errorf("writeAtomic.Encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("writeAtomic.Sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writeAtomic.Close: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("writeAtomic.Chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), location); err != nil {
		return fmt.Errorf("writeAtomic.Rename: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}
