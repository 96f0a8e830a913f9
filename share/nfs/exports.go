package nfs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	// DefaultExportsFile is where the kernel NFS server picks up ZFS
	// shares on boot or restart.
	DefaultExportsFile = "/etc/exports.d/zfs.exports"

	lockSuffix = ".lock"
)

// ErrNotLocked is returned when a lock token is released without being held.
// It indicates a programming error in the caller, not a runtime condition.
var ErrNotLocked = errors.New("exports file is not locked")

// exportsStore owns the on-disk exports file and its adjacent lock file.
// The lock file is the sole serialization mechanism across processes; there
// is no in-process coordination beyond it.
type exportsStore struct {
	path string
	lock string
}

func newExportsStore(path string) *exportsStore {
	return &exportsStore{path: path, lock: path + lockSuffix}
}

// exportsLock is a held exclusive lock on the exports file.
type exportsLock struct {
	f        *os.File
	released bool
}

// Lock takes the process-exclusive advisory lock guarding the exports file,
// blocking indefinitely until it is available. A successful acquisition also
// guarantees the exports file and its directory exist.
func (s *exportsStore) Lock() (*exportsLock, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create exports dir: %w", err)
	}
	f, err := os.OpenFile(s.lock, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open exports lock: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock exports: %w", err)
	}
	if err := s.ensureExists(); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, err
	}
	return &exportsLock{f: f}, nil
}

func (s *exportsStore) ensureExists() error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("create exports file: %w", err)
	}
	return f.Close()
}

// Unlock releases the lock and closes its descriptor. Releasing a lock that
// is not held reports ErrNotLocked.
func (l *exportsLock) Unlock() error {
	if l == nil || l.released {
		return ErrNotLocked
	}
	l.released = true
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// writeEntries writes one export record per host directive of the share:
//
//	<mountpoint> <host>(sec=<flavor>,<access>,<extra>)
func writeEntries(w io.Writer, mountpoint, shareopts, linuxOpts string) error {
	bw := bufio.NewWriter(w)
	for d := range hostDirectives(shareopts) {
		fmt.Fprintf(bw, "%s %s(sec=%s,%s,%s)\n",
			mountpoint, linuxHost(d.host), d.security, d.access, linuxOpts)
	}
	return bw.Flush()
}

// appendEntries appends the share's records to the exports file, fsyncing
// before close. The exports lock must be held by the caller.
func (s *exportsStore) appendEntries(mountpoint, shareopts, linuxOpts string) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open exports file: %w", err)
	}
	err = writeEntries(f, mountpoint, shareopts, linuxOpts)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// rewrite atomically replaces the exports file: every record for mountpoint
// is dropped, then add (if non-nil) writes the replacement records. Built in
// a uniquely named temp file in the same directory so the final rename is
// atomic; on any failure the temp file is removed and the committed file is
// left untouched. The exports lock must be held by the caller.
func (s *exportsStore) rewrite(mountpoint string, add func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp exports file: %w", err)
	}
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := s.copyEntries(tmp, mountpoint); err != nil {
		return err
	}
	if add != nil {
		if err := add(tmp); err != nil {
			return err
		}
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp exports file: %w", err)
	}
	name := tmp.Name()
	if err := tmp.Close(); err != nil {
		tmp = nil
		os.Remove(name)
		return fmt.Errorf("close temp exports file: %w", err)
	}
	tmp = nil
	if err := os.Rename(name, s.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace exports file: %w", err)
	}
	return nil
}

// copyEntries copies the current exports file into w, dropping every line
// whose leading token exactly matches the given mountpoint.
func (s *exportsStore) copyEntries(w io.Writer, mountpoint string) error {
	src, err := os.Open(s.path)
	if err != nil {
		// Nothing to preserve yet.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open exports file: %w", err)
	}
	defer src.Close()

	bw := bufio.NewWriter(w)
	sc := bufio.NewScanner(src)
	for sc.Scan() {
		line := sc.Text()
		if entryMountpoint(line) == mountpoint {
			continue
		}
		fmt.Fprintln(bw, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read exports file: %w", err)
	}
	return bw.Flush()
}

// truncate empties the exports file. The exports lock must be held.
func (s *exportsStore) truncate() error {
	if err := os.Truncate(s.path, 0); err != nil {
		return fmt.Errorf("truncate exports file: %w", err)
	}
	return nil
}

// IsShared reports whether any record for the mountpoint exists. It reads
// without the lock: a possibly stale snapshot is fine for status reporting.
// A missing exports file means nothing is shared.
func (s *exportsStore) IsShared(mountpoint string) bool {
	f, err := os.Open(s.path)
	if err != nil {
		return false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if entryMountpoint(sc.Text()) == mountpoint {
			return true
		}
	}
	return false
}

// entryMountpoint returns the leading space-delimited token of an export
// line. Mountpoint paths are assumed to contain no whitespace.
func entryMountpoint(line string) string {
	mp, _, _ := strings.Cut(line, " ")
	return mp
}

// ExportEntry is one parsed record of the exports file.
type ExportEntry struct {
	Mountpoint string `json:"mountpoint"`
	Host       string `json:"host"`
	Options    string `json:"options"`
}

// List parses the exports file into its records, skipping blank lines and
// comments. Like IsShared it reads without the lock.
func (s *exportsStore) List() ([]ExportEntry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open exports file: %w", err)
	}
	defer f.Close()

	var entries []ExportEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		mp, rest, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		host, opts, _ := strings.Cut(rest, "(")
		entries = append(entries, ExportEntry{
			Mountpoint: mp,
			Host:       host,
			Options:    strings.TrimSuffix(opts, ")"),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read exports file: %w", err)
	}
	return entries, nil
}
