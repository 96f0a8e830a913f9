// Package share holds the share descriptor and the registry that maps share
// types (e.g. "nfs") to their protocol implementations. The framework that
// owns the descriptors creates and destroys them; protocols only read and
// replace the option string.
package share

import (
	"context"
	"fmt"
	"sync"
)

// Share describes one exportable filesystem mountpoint. Mountpoint is the
// unique key within a protocol's backing store and must not contain
// whitespace. Options is the vendor share option string; "" means unset and
// "on" means share with defaults.
type Share struct {
	Mountpoint string
	Options    string
}

// Protocol is the operation set a share protocol registers for its type.
type Protocol interface {
	// EnableShare publishes the share per its current option string,
	// replacing any previously published records for its mountpoint.
	EnableShare(s *Share) error

	// DisableShare withdraws every published record for the share's
	// mountpoint.
	DisableShare(s *Share) error

	// IsShared reports whether the share's mountpoint is currently
	// published. Best-effort snapshot, safe to call without coordination.
	IsShared(s *Share) bool

	// ValidateOptions checks an option string for syntax errors without
	// any side effect.
	ValidateOptions(opts string) error

	// UpdateOptions replaces the share's option string. Nothing is
	// persisted until the share is enabled again.
	UpdateOptions(s *Share, opts string) error

	// ClearOptions drops the share's option string during teardown.
	ClearOptions(s *Share)

	// GenerateShare appends the share's records to the backing store.
	// Used when regenerating the store from the full share set.
	GenerateShare(s *Share) error

	// CommitShares makes the host's live state match the backing store.
	CommitShares(ctx context.Context) error
}

var (
	regMu     sync.RWMutex
	protocols = map[string]Protocol{}
)

// Register associates a protocol with a share type. Called once per protocol
// at process initialization; registering a duplicate type panics.
func Register(shareType string, p Protocol) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, ok := protocols[shareType]; ok {
		panic(fmt.Sprintf("share: protocol %q registered twice", shareType))
	}
	protocols[shareType] = p
}

// Get returns the protocol registered for a share type.
func Get(shareType string) (Protocol, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	p, ok := protocols[shareType]
	if !ok {
		return nil, fmt.Errorf("share: no protocol registered for type %q", shareType)
	}
	return p, nil
}
