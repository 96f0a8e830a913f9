// Package nfs implements the NFS share protocol: it translates ZFS share
// options into Linux export options, maintains the exports file consumed by
// the kernel NFS server, and reloads the live export table via exportfs.
package nfs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/zfskit/exportd/share"
	"github.com/zfskit/exportd/utils"
)

// ProtocolName is the share type this package registers under.
const ProtocolName = "nfs"

// Protocol maintains the exports file for NFS shares and reloads the kernel
// export table through exportfs. It is safe for concurrent use across
// goroutines and processes; the exports lock is the sole serialization
// mechanism.
type Protocol struct {
	store *exportsStore
	bin   string
	cmd   utils.Runner
}

// New returns a protocol over the given exports file, reloading through the
// given exportfs binary.
func New(exportsFile, exportfsBin string) *Protocol {
	return &Protocol{
		store: newExportsStore(exportsFile),
		bin:   exportfsBin,
		cmd:   utils.ExecRunner{},
	}
}

// Register wires a protocol into the share registry under the nfs type and
// creates the exports directory if it is missing. Called once at process
// initialization.
func Register(exportsFile, exportfsBin string) *Protocol {
	p := New(exportsFile, exportfsBin)
	share.Register(ProtocolName, p)
	if err := os.MkdirAll(filepath.Dir(exportsFile), 0o755); err != nil {
		log.Error().Err(err).Str("dir", filepath.Dir(exportsFile)).Msg("failed to create exports dir")
	}
	return p
}

// ValidateOptions checks a share option string for syntax errors without
// touching the exports file.
func (p *Protocol) ValidateOptions(shareopts string) error {
	_, err := translateOptions(shareopts)
	return err
}

// UpdateOptions replaces the share's option string. Nothing is persisted
// until the share is enabled again.
func (p *Protocol) UpdateOptions(s *share.Share, shareopts string) error {
	s.Options = shareopts
	return nil
}

// ClearOptions drops the share's option string during descriptor teardown.
func (p *Protocol) ClearOptions(s *share.Share) {
	s.Options = ""
}

// EnableShare rewrites the exports file so it carries exactly the records
// described by the share's current options. Records for other mountpoints
// are preserved untouched; on any failure the committed file is unchanged.
func (p *Protocol) EnableShare(s *share.Share) (err error) {
	defer observeOp("enable", &err)

	linuxOpts, err := translateOptions(s.Options)
	if err != nil {
		return err
	}

	lock, err := p.store.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	err = p.store.rewrite(s.Mountpoint, func(w io.Writer) error {
		return writeEntries(w, s.Mountpoint, s.Options, linuxOpts)
	})
	if err != nil {
		return err
	}
	log.Debug().Str("mountpoint", s.Mountpoint).Str("options", linuxOpts).Msg("share enabled")
	return nil
}

// DisableShare rewrites the exports file with every record for the share's
// mountpoint removed.
func (p *Protocol) DisableShare(s *share.Share) (err error) {
	defer observeOp("disable", &err)

	lock, err := p.store.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	if err = p.store.rewrite(s.Mountpoint, nil); err != nil {
		return err
	}
	log.Debug().Str("mountpoint", s.Mountpoint).Msg("share disabled")
	return nil
}

// IsShared reports whether the share's mountpoint appears in the exports
// file. Unlocked, possibly stale read; callers use it for status only.
func (p *Protocol) IsShared(s *share.Share) bool {
	return p.store.IsShared(s.Mountpoint)
}

// GenerateShare appends the share's records to the exports file under the
// lock. A share without options is a no-op. Used when regenerating the file
// from the full share set; prior records are not removed, so callers rebuild
// from an empty file (see RegenerateShares).
func (p *Protocol) GenerateShare(s *share.Share) (err error) {
	if s.Options == "" {
		return nil
	}
	linuxOpts, err := translateOptions(s.Options)
	if err != nil {
		return err
	}

	lock, err := p.store.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	return p.store.appendEntries(s.Mountpoint, s.Options, linuxOpts)
}

// RegenerateShares rebuilds the exports file from scratch out of the given
// shares, under a single hold of the exports lock.
func (p *Protocol) RegenerateShares(shares []*share.Share) (err error) {
	lock, err := p.store.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil && err == nil {
			err = uerr
		}
	}()

	if err = p.store.truncate(); err != nil {
		return err
	}
	for _, s := range shares {
		if s.Options == "" {
			continue
		}
		linuxOpts, terr := translateOptions(s.Options)
		if terr != nil {
			log.Warn().Err(terr).Str("mountpoint", s.Mountpoint).Msg("skipping share with invalid options")
			continue
		}
		if err = p.store.appendEntries(s.Mountpoint, s.Options, linuxOpts); err != nil {
			return err
		}
	}
	return nil
}

// ListExports parses the exports file into its records.
func (p *Protocol) ListExports() ([]ExportEntry, error) {
	return p.store.List()
}

// CommitShares tells the kernel NFS server to re-read the exports file.
// Failure is reported to the caller, not retried.
func (p *Protocol) CommitShares(ctx context.Context) (err error) {
	defer observeOp("reload", &err)

	if _, err = p.cmd.Run(ctx, p.bin, "-ra"); err != nil {
		return err
	}
	log.Debug().Str("bin", p.bin).Msg("exports reloaded")
	return nil
}
