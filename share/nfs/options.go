package nfs

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

// defaultOptions is what the "on" sentinel expands to.
const defaultOptions = "rw,crossmnt"

// defaultSecurity is the security flavor used until a sec token is seen.
const defaultSecurity = "sys"

// ErrSyntax reports an option token the Linux export mechanism does not know.
var ErrSyntax = errors.New("unrecognized share option")

type option struct {
	key      string
	value    string
	hasValue bool
}

// options yields every non-empty comma-separated token of a share option
// string, split on the first '=' into key and value. The "on" sentinel
// expands to the default option set first.
func options(shareopts string) iter.Seq[option] {
	if shareopts == "on" {
		shareopts = defaultOptions
	}
	return func(yield func(option) bool) {
		for seg := range strings.SplitSeq(shareopts, ",") {
			if seg == "" {
				continue
			}
			key, value, ok := strings.Cut(seg, "=")
			if !yield(option{key: key, value: value, hasValue: ok}) {
				return
			}
		}
	}
}

// hostDirective is one resolved (host, security flavor, access mode) grant.
// The host still carries vendor syntax; see linuxHost.
type hostDirective struct {
	host     string
	security string
	access   string
}

// hostDirectives expands the ro/rw tokens of a share option string into one
// directive per host. A sec token switches the security flavor for the access
// tokens parsed after it; an access token without a value grants all hosts.
// Tokens other than ro, rw and sec are ignored here.
func hostDirectives(shareopts string) iter.Seq[hostDirective] {
	return func(yield func(hostDirective) bool) {
		security := defaultSecurity
		for opt := range options(shareopts) {
			if opt.key == "sec" {
				security = opt.value
			}
			if opt.key != "ro" && opt.key != "rw" {
				continue
			}
			hosts := opt.value
			if !opt.hasValue {
				hosts = "*"
			}
			for host := range strings.SplitSeq(hosts, ":") {
				d := hostDirective{host: host, security: security, access: opt.key}
				if !yield(d) {
					return
				}
			}
		}
	}
}

// linuxHost converts a vendor host spec to exportfs syntax. CIDR specs carry
// a leading '@' marker the Linux side does not understand.
func linuxHost(host string) string {
	return strings.TrimPrefix(host, "@")
}

// renames maps vendor option names to their Linux equivalents.
var renames = map[string]string{
	"anon":  "anonuid",
	"nosub": "subtree_check",
}

// linuxOptions is the set of option names accepted by the Linux export
// mechanism. Anything else is a syntax error.
var linuxOptions = map[string]struct{}{
	"insecure":         {},
	"secure":           {},
	"async":            {},
	"sync":             {},
	"no_wdelay":        {},
	"wdelay":           {},
	"nohide":           {},
	"hide":             {},
	"crossmnt":         {},
	"no_subtree_check": {},
	"subtree_check":    {},
	"insecure_locks":   {},
	"secure_locks":     {},
	"no_auth_nlm":      {},
	"auth_nlm":         {},
	"no_acl":           {},
	"mountpoint":       {},
	"mp":               {},
	"fsuid":            {},
	"refer":            {},
	"replicas":         {},
	"root_squash":      {},
	"no_root_squash":   {},
	"all_squash":       {},
	"no_all_squash":    {},
	"fsid":             {},
	"anonuid":          {},
	"anongid":          {},
}

// translateOptions converts a vendor share option string into the Linux
// export option list. Host-specific tokens (ro, rw, sec) are skipped here;
// hostDirectives handles them. A syntax error discards the whole result.
func translateOptions(shareopts string) (string, error) {
	// no_subtree_check - default as of nfs-utils v1.1.0
	// mountpoint - restrict exports to ZFS mountpoints
	opts := []string{"no_subtree_check", "mountpoint"}

	for opt := range options(shareopts) {
		key := opt.key
		switch key {
		case "ro", "rw", "sec":
			continue
		case "root_mapping":
			opts = append(opts, "root_squash")
			key = "anonuid"
		default:
			if to, ok := renames[key]; ok {
				key = to
			}
		}
		if _, ok := linuxOptions[key]; !ok {
			return "", fmt.Errorf("%w: %q", ErrSyntax, opt.key)
		}
		if opt.hasValue {
			opts = append(opts, key+"="+opt.value)
		} else {
			opts = append(opts, key)
		}
	}
	return strings.Join(opts, ","), nil
}
