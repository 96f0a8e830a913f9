package nfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zfskit/exportd/share"
	"github.com/zfskit/exportd/utils"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

func newTestProtocol(t *testing.T, cmd utils.Runner) *Protocol {
	t.Helper()
	if cmd == nil {
		cmd = &utils.MockRunner{}
	}
	return &Protocol{
		store: newExportsStore(filepath.Join(t.TempDir(), "zfs.exports")),
		bin:   "exportfs",
		cmd:   cmd,
	}
}

func TestEnableShare(t *testing.T) {
	t.Run("writes one record per host", func(t *testing.T) {
		p := newTestProtocol(t, nil)
		s := &share.Share{
			Mountpoint: "/export/data",
			Options:    "sec=krb5,rw=192.168.1.0/24:@10.0.0.0/8",
		}

		if err := p.EnableShare(s); err != nil {
			t.Fatalf("EnableShare() error: %v", err)
		}

		got := readFile(t, p.store.path)
		want := []string{
			"/export/data 192.168.1.0/24(sec=krb5,rw,no_subtree_check,mountpoint)",
			"/export/data 10.0.0.0/8(sec=krb5,rw,no_subtree_check,mountpoint)",
		}
		if got != strings.Join(want, "\n")+"\n" {
			t.Errorf("exports file:\n%s\nwant:\n%s", got, strings.Join(want, "\n"))
		}
		if !p.IsShared(s) {
			t.Error("IsShared() should be true after EnableShare()")
		}
	})

	t.Run("replaces prior records for the mountpoint", func(t *testing.T) {
		p := newTestProtocol(t, nil)
		s := &share.Share{Mountpoint: "/pool/a", Options: "rw=hosta:hostb"}

		if err := p.EnableShare(s); err != nil {
			t.Fatalf("EnableShare() error: %v", err)
		}
		s.Options = "ro=hostc"
		if err := p.EnableShare(s); err != nil {
			t.Fatalf("EnableShare() error: %v", err)
		}

		got := readFile(t, p.store.path)
		if strings.Contains(got, "hosta") || strings.Contains(got, "hostb") {
			t.Errorf("old records must be replaced:\n%s", got)
		}
		if !strings.Contains(got, "/pool/a hostc(sec=sys,ro,") {
			t.Errorf("new record missing:\n%s", got)
		}
	})

	t.Run("preserves other mountpoints", func(t *testing.T) {
		p := newTestProtocol(t, nil)
		a := &share.Share{Mountpoint: "/pool/a", Options: "rw"}
		ab := &share.Share{Mountpoint: "/pool/ab", Options: "ro"}

		for _, s := range []*share.Share{a, ab} {
			if err := p.EnableShare(s); err != nil {
				t.Fatalf("EnableShare(%s) error: %v", s.Mountpoint, err)
			}
		}
		if err := p.DisableShare(a); err != nil {
			t.Fatalf("DisableShare() error: %v", err)
		}

		if p.IsShared(a) {
			t.Error("IsShared(/pool/a) should be false after disable")
		}
		if !p.IsShared(ab) {
			t.Error("IsShared(/pool/ab) must survive disabling /pool/a")
		}
	})

	t.Run("syntax error leaves file untouched", func(t *testing.T) {
		p := newTestProtocol(t, nil)
		s := &share.Share{Mountpoint: "/pool/a", Options: "rw"}
		if err := p.EnableShare(s); err != nil {
			t.Fatalf("EnableShare() error: %v", err)
		}
		before := readFile(t, p.store.path)

		s.Options = "rw,bogus"
		err := p.EnableShare(s)
		if err == nil {
			t.Fatal("EnableShare() should fail on unknown option")
		}
		if got := readFile(t, p.store.path); got != before {
			t.Errorf("exports file changed after failed enable:\nbefore:\n%s\nafter:\n%s", before, got)
		}
	})
}

func TestDisableShare(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		p := newTestProtocol(t, nil)
		s := &share.Share{Mountpoint: "/pool/a"}
		if err := p.DisableShare(s); err != nil {
			t.Fatalf("DisableShare() error: %v", err)
		}
		if p.IsShared(s) {
			t.Error("IsShared() should be false")
		}
	})
}

func TestValidateOptions(t *testing.T) {
	p := newTestProtocol(t, nil)

	if err := p.ValidateOptions("on"); err != nil {
		t.Errorf("ValidateOptions(on) error: %v", err)
	}
	if err := p.ValidateOptions("rw=10.0.0.1,async,anon=65534"); err != nil {
		t.Errorf("ValidateOptions() error: %v", err)
	}
	if err := p.ValidateOptions("bogus"); err == nil {
		t.Error("ValidateOptions(bogus) should fail")
	}
	// validate has no side effect
	if _, err := os.Stat(p.store.path); !os.IsNotExist(err) {
		t.Error("ValidateOptions() must not create the exports file")
	}
}

func TestUpdateAndClearOptions(t *testing.T) {
	p := newTestProtocol(t, nil)
	s := &share.Share{Mountpoint: "/pool/a"}

	if err := p.UpdateOptions(s, "ro"); err != nil {
		t.Fatalf("UpdateOptions() error: %v", err)
	}
	if s.Options != "ro" {
		t.Errorf("Options = %q, want %q", s.Options, "ro")
	}
	p.ClearOptions(s)
	if s.Options != "" {
		t.Errorf("Options = %q after ClearOptions, want empty", s.Options)
	}
}

func TestGenerateShare(t *testing.T) {
	t.Run("no options is a no-op", func(t *testing.T) {
		p := newTestProtocol(t, nil)
		if err := p.GenerateShare(&share.Share{Mountpoint: "/pool/a"}); err != nil {
			t.Fatalf("GenerateShare() error: %v", err)
		}
	})

	t.Run("appends records", func(t *testing.T) {
		p := newTestProtocol(t, nil)
		if err := p.GenerateShare(&share.Share{Mountpoint: "/pool/a", Options: "rw"}); err != nil {
			t.Fatalf("GenerateShare() error: %v", err)
		}
		if err := p.GenerateShare(&share.Share{Mountpoint: "/pool/b", Options: "ro=hostb"}); err != nil {
			t.Fatalf("GenerateShare() error: %v", err)
		}

		got := readFile(t, p.store.path)
		want := []string{
			"/pool/a *(sec=sys,rw,no_subtree_check,mountpoint)",
			"/pool/b hostb(sec=sys,ro,no_subtree_check,mountpoint)",
		}
		if got != strings.Join(want, "\n")+"\n" {
			t.Errorf("exports file:\n%s\nwant:\n%s", got, strings.Join(want, "\n"))
		}
	})
}

func TestRegenerateShares(t *testing.T) {
	p := newTestProtocol(t, nil)
	stale := &share.Share{Mountpoint: "/pool/stale", Options: "rw"}
	if err := p.EnableShare(stale); err != nil {
		t.Fatal(err)
	}

	shares := []*share.Share{
		{Mountpoint: "/pool/a", Options: "rw"},
		{Mountpoint: "/pool/b"},
		{Mountpoint: "/pool/c", Options: "ro=hostc"},
	}
	if err := p.RegenerateShares(shares); err != nil {
		t.Fatalf("RegenerateShares() error: %v", err)
	}

	got := readFile(t, p.store.path)
	if strings.Contains(got, "/pool/stale") {
		t.Errorf("regeneration must start from an empty file:\n%s", got)
	}
	if !strings.Contains(got, "/pool/a *") || !strings.Contains(got, "/pool/c hostc") {
		t.Errorf("regenerated records missing:\n%s", got)
	}
	if strings.Contains(got, "/pool/b") {
		t.Errorf("share without options must be skipped:\n%s", got)
	}
}

func TestCommitShares(t *testing.T) {
	t.Run("invokes exportfs -ra", func(t *testing.T) {
		m := &utils.MockRunner{}
		p := newTestProtocol(t, m)

		if err := p.CommitShares(context.Background()); err != nil {
			t.Fatalf("CommitShares() error: %v", err)
		}
		if len(m.Calls) != 1 {
			t.Fatalf("expected 1 call, got %d", len(m.Calls))
		}
		if got := strings.Join(m.Calls[0], " "); got != "exportfs -ra" {
			t.Errorf("command = %q, want %q", got, "exportfs -ra")
		}
	})

	t.Run("error propagates", func(t *testing.T) {
		m := &utils.MockRunner{Err: fmt.Errorf("exportfs failed")}
		p := newTestProtocol(t, m)

		if err := p.CommitShares(context.Background()); err == nil {
			t.Fatal("CommitShares() should return error")
		}
	})
}

func TestConcurrentEnable(t *testing.T) {
	p := newTestProtocol(t, nil)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := &share.Share{
				Mountpoint: fmt.Sprintf("/pool/vol%02d", i),
				Options:    "rw",
			}
			errs[i] = p.EnableShare(s)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("EnableShare(vol%02d) error: %v", i, err)
		}
	}

	// every mountpoint has exactly one well-formed record
	counts := map[string]int{}
	for line := range strings.SplitSeq(strings.TrimSuffix(readFile(t, p.store.path), "\n"), "\n") {
		mp, rest, ok := strings.Cut(line, " ")
		if !ok || !strings.HasSuffix(rest, ")") {
			t.Fatalf("malformed line: %q", line)
		}
		counts[mp]++
	}
	if len(counts) != n {
		t.Fatalf("got %d mountpoints, want %d", len(counts), n)
	}
	for mp, c := range counts {
		if c != 1 {
			t.Errorf("mountpoint %s has %d records, want 1", mp, c)
		}
	}
}
