// Package retrieve implements the Source Retriever (SPEC_FULL §4.3):
// deterministic acquisition of a single remote file or a git repository at a
// pinned ref, with content-hash enforcement.
//
// FetchFile is grounded on distr1-distri/internal/repo/reader.go's HTTP-GET-
// with-caching shape (If-Modified-Since conditional requests, transparent
// gzip decode, a tuned http.Client). FetchRepo's git invocation is grounded
// on distr1-distri/cmd/autobuilder/autobuilder.go's
// exec.Command("sh", "-c", "git clone ... && git reset --hard ...") pattern.
package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/c-star-org/cstar"
	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// ConnectTimeout and TotalTimeout implement SPEC_FULL §5's network fetch
// timeouts: 60s connect, 15min total.
const (
	ConnectTimeout = 60 * time.Second
	TotalTimeout   = 15 * time.Minute
)

var httpClient = &http.Client{
	Transport: &http.Transport{
		DialContext:           (&net.Dialer{Timeout: ConnectTimeout}).DialContext,
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: ConnectTimeout,
	},
}

// LocalStatus is the classification VerifyLocal assigns to a pre-existing
// directory (SPEC_FULL §4.3).
type LocalStatus string

const (
	StatusMatches     LocalStatus = "matches"
	StatusWrongRemote LocalStatus = "wrong-remote"
	StatusWrongRef    LocalStatus = "wrong-ref"
	StatusNotARepo    LocalStatus = "not-a-repo"
)

// Retriever fetches files and repositories. runCommand/httpGet are
// injectable for tests.
type Retriever struct {
	runCommand func(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)
	httpGet    func(ctx context.Context, url string) (*http.Response, error)
}

// New returns a Retriever that shells out to the real `git` binary and
// performs real HTTP GETs.
func New() *Retriever {
	return &Retriever{
		runCommand: runCommand,
		httpGet:    httpGet,
	}
}

func runCommand(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func httpGet(ctx context.Context, rawurl string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, TotalTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// cancel() is intentionally not deferred: the caller streams resp.Body
	// and is responsible for resp.Body.Close(), which we wrap to also cancel.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// FetchFile streams url to dest via a temp file, verifies expectedHash (if
// non-empty) against the downloaded bytes, and renames atomically into
// place only on success — so a failed or mismatched download never leaves a
// partial or wrong file at dest (SPEC_FULL §8 Invariant 2, Scenario S2).
func (r *Retriever) FetchFile(ctx context.Context, rawurl, dest, expectedHash string) (string, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", cstar.Wrap(cstar.KindNetwork, err, "parsing url %q", rawurl)
	}
	var body io.ReadCloser
	if u.Scheme == "" || u.Scheme == "file" {
		f, err := os.Open(u.Path)
		if err != nil {
			if u.Scheme == "" {
				f, err = os.Open(rawurl)
			}
			if err != nil {
				return "", cstar.Wrap(cstar.KindNetwork, err, "opening local file %q", rawurl)
			}
		}
		body = f
	} else {
		resp, err := r.httpGet(ctx, rawurl)
		if err != nil {
			return "", cstar.Wrap(cstar.KindNetwork, err, "fetching %s", rawurl)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return "", cstar.New(cstar.KindNetwork, "fetching %s: HTTP status %s", rawurl, resp.Status)
		}
		body = resp.Body
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", cstar.Wrap(cstar.KindNetwork, err, "creating destination directory for %s", dest)
	}

	t, err := renameio.TempFile("", dest)
	if err != nil {
		return "", cstar.Wrap(cstar.KindNetwork, err, "creating temp file for %s", dest)
	}
	defer t.Cleanup()

	h := sha256.New()
	if _, err := io.Copy(t, io.TeeReader(body, h)); err != nil {
		return "", cstar.Wrap(cstar.KindNetwork, err, "downloading %s", rawurl)
	}

	if expectedHash != "" {
		got := hex.EncodeToString(h.Sum(nil))
		if got != expectedHash {
			return "", cstar.New(cstar.KindIntegrity, "hash mismatch fetching %s: got %s, want %s", rawurl, got, expectedHash)
		}
	}

	if err := t.CloseAtomicallyReplace(); err != nil {
		return "", cstar.Wrap(cstar.KindNetwork, err, "finalizing %s", dest)
	}
	return dest, nil
}

// FetchRepo clones url at dest and checks out ref detached, shallow-cloning
// when ref looks like a branch/tag and doing a full clone + hard reset when
// it looks like a raw commit SHA (SPEC_FULL §4.3). If dest already contains
// a clone whose remote matches url, it is reused (fetch + checkout) instead
// of re-cloned, unless fresh is true.
func (r *Retriever) FetchRepo(ctx context.Context, rawurl, ref, dest string, fresh bool) (string, error) {
	if !fresh {
		status, err := r.VerifyLocal(ctx, dest, rawurl, ref)
		if err == nil && status == StatusMatches {
			return dest, nil
		}
		if err == nil && status == StatusWrongRef {
			if _, _, err := r.runCommand(ctx, dest, "git", "fetch", "--all"); err != nil {
				return "", cstar.New(cstar.KindNetwork, "git fetch in %s failed", dest)
			}
			if _, stderr, err := r.runCommand(ctx, dest, "git", "checkout", "--detach", ref); err != nil {
				return "", cstar.New(cstar.KindIntegrity, "git checkout %s in %s failed: %s", ref, dest, stderr)
			}
			return dest, nil
		}
		if err == nil && (status == StatusWrongRemote) {
			return "", cstar.New(cstar.KindIntegrity, "%s already contains a clone of a different remote than %s", dest, rawurl)
		}
	}

	if err := os.RemoveAll(dest); err != nil {
		return "", cstar.Wrap(cstar.KindNetwork, err, "clearing %s before clone", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", cstar.Wrap(cstar.KindNetwork, err, "creating parent of %s", dest)
	}

	if looksLikeCommit(ref) {
		if _, stderr, err := r.runCommand(ctx, "", "git", "clone", rawurl, dest); err != nil {
			return "", cstar.New(cstar.KindNetwork, "git clone %s failed: %s", rawurl, stderr)
		}
		if _, stderr, err := r.runCommand(ctx, dest, "git", "reset", "--hard", ref); err != nil {
			return "", cstar.New(cstar.KindIntegrity, "git reset --hard %s in %s failed: %s", ref, dest, stderr)
		}
	} else {
		if _, stderr, err := r.runCommand(ctx, "", "git", "clone", "--depth=1", "--branch", ref, rawurl, dest); err != nil {
			return "", cstar.New(cstar.KindNetwork, "git clone --branch %s %s failed: %s", ref, rawurl, stderr)
		}
	}
	return dest, nil
}

func looksLikeCommit(ref string) bool {
	if len(ref) < 7 || len(ref) > 40 {
		return false
	}
	for _, c := range ref {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// VerifyLocal classifies a pre-existing directory at path as matching
// (remote, ref), wrong-remote, wrong-ref, or not-a-repo (SPEC_FULL §4.3).
func (r *Retriever) VerifyLocal(ctx context.Context, path, remote, ref string) (LocalStatus, error) {
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return StatusNotARepo, nil
	}
	stdout, _, err := r.runCommand(ctx, path, "git", "remote", "get-url", "origin")
	if err != nil {
		return StatusNotARepo, nil
	}
	if strings.TrimSpace(stdout) != remote {
		return StatusWrongRemote, nil
	}
	stdout, _, err = r.runCommand(ctx, path, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", xerrors.Errorf("git rev-parse HEAD in %s: %w", path, err)
	}
	head := strings.TrimSpace(stdout)
	if looksLikeCommit(ref) {
		if strings.HasPrefix(head, ref) || strings.HasPrefix(ref, head) {
			return StatusMatches, nil
		}
		return StatusWrongRef, nil
	}
	// ref is a branch/tag name; resolve it and compare to HEAD.
	stdout, _, err = r.runCommand(ctx, path, "git", "rev-parse", ref)
	if err != nil {
		return StatusWrongRef, nil
	}
	if strings.TrimSpace(stdout) == head {
		return StatusMatches, nil
	}
	return StatusWrongRef, nil
}

// CanonicalPath tilde-expands and absolutizes p, per SPEC_FULL §4.3: "All
// paths are canonical (tilde-expanded, absolute)."
func CanonicalPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("canonicalizing %q: %w", p, err)
	}
	return abs, nil
}
