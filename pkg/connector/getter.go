package connector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jpillora/backoff"
	"golang.org/x/xerrors"

	"github.com/repoflow/repoflow/pkg/checksum"
	"github.com/repoflow/repoflow/pkg/tempfile"
	"github.com/repoflow/repoflow/pkg/transfer"
)

// maxResumeAttempts bounds how often a download restarts from its
// current offset after a mid-stream I/O error before giving up.
const maxResumeAttempts = 3

// getTask downloads one resource through the phases
// CLAIM -> FETCH -> VERIFY -> COMMIT -> CLEANUP.
type getTask struct {
	base

	c *Connector
	d *transfer.Download

	url           string
	resumeAllowed bool
	emitter       *transfer.Emitter
	digester      *checksum.Digester
}

func (c *Connector) newGetTask(d *transfer.Download, resumeAllowed bool) *getTask {
	return &getTask{
		c:             c,
		d:             d,
		url:           c.endpoint.ResolveURL(d.Path),
		resumeAllowed: resumeAllowed,
		emitter: transfer.NewEmitter(c.cfg.Listener, c.log, transfer.Resource{
			Repository: c.endpoint.URL,
			Path:       d.Path,
			File:       d.File,
		}, transfer.RequestGet),
	}
}

func (t *getTask) finalize(err error) {
	if terr, ok := t.terminal(); ok {
		err = terr
	}
	t.d.MarkDone(err)
}

func (t *getTask) run(ctx context.Context) {
	t.d.MarkActive()
	defer t.guard.countDown()

	// Existence probe: HEAD only, no destination, no partial, no events.
	if t.d.ExistenceCheck || t.d.File == "" {
		t.complete(t.head(ctx))
		return
	}

	// CLAIM
	entry, err := t.c.registry.Claim(t.d.File, t.d.Path, t.resumeAllowed)
	if err != nil {
		t.complete(t.wrap("failed to claim partial file", err))
		return
	}

	t.emitter.Initiated()

	// FETCH / VERIFY / COMMIT
	err = t.fetch(ctx, entry)
	if err == nil && t.d.Policy != transfer.ChecksumIgnore {
		err = t.verify(ctx)
	}
	if err == nil {
		if mvErr := t.c.files.Move(entry.Path, t.d.File); mvErr != nil {
			err = t.wrap("failed to publish downloaded file", mvErr)
		}
	}

	// CLEANUP
	if err != nil {
		t.c.registry.Release(entry, true)
		t.emitter.Failed(err)
		t.complete(err)
		return
	}
	t.c.registry.Release(entry, false)
	t.emitter.Succeeded()
	t.complete(nil)
}

// head issues the existence check and classifies the response.
func (t *getTask) head(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, t.url, nil)
	if err != nil {
		return t.wrap("unable to create a HTTP request", err)
	}
	prepare(req, t.c.endpoint, t.c.cfg)

	resp, err := t.c.client.Do(req)
	if err != nil {
		return t.wrap("failed to look for file", err)
	}
	resp.Body.Close()
	return classify(t.d.Kind, t.url, resp.StatusCode, resp.Status)
}

// fetch streams the resource into the partial, resuming from the
// current offset after transient mid-stream failures.
func (t *getTask) fetch(ctx context.Context, entry *tempfile.Entry) error {
	if err := t.c.files.Mkdirs(filepath.Dir(entry.Path)); err != nil {
		return t.wrap("failed to create parent directories", err)
	}

	f, err := os.OpenFile(entry.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return t.wrap("failed to open partial file", err)
	}
	defer f.Close()

	if t.d.Policy != transfer.ChecksumIgnore {
		t.digester = checksum.NewDigester()
	}

	// When resuming, the digest must still cover the whole file, so the
	// bytes already on disk run through the digester first.
	offset := int64(0)
	if entry.Resumed {
		n, err := io.Copy(writerOrDiscard(t.digester), f)
		if err != nil {
			return t.wrap("failed to read existing partial file", err)
		}
		offset = n
	}

	retryWait := &backoff.Backoff{
		Min:    50 * time.Millisecond,
		Max:    time.Second,
		Jitter: true,
	}
	var attempts int
	for {
		err := t.fetchOnce(ctx, f, &offset)
		if err == nil {
			return nil
		}
		var re *resumableError
		if !xerrors.As(err, &re) || attempts >= maxResumeAttempts || ctx.Err() != nil {
			return err
		}
		attempts++
		t.c.log.Debug("Resuming interrupted download",
			slog.String("url", t.url), slog.Int64("offset", offset), slog.Int("attempt", attempts))
		select {
		case <-ctx.Done():
			return t.wrap("download cancelled", ctx.Err())
		case <-time.After(retryWait.Duration()):
		}
	}
}

// fetchOnce performs a single GET, ranged when offset is non-zero, and
// appends the body to the partial. Mid-stream read errors come back as
// resumableError so the caller can retry from the new offset.
func (t *getTask) fetchOnce(ctx context.Context, f *os.File, offset *int64) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return t.wrap("unable to create a HTTP request", err)
	}
	prepare(req, t.c.endpoint, t.c.cfg)
	if !t.c.cfg.UseCache {
		req.Header.Set("Pragma", "no-cache")
	}

	// Ranged requests go through the compression-disabled client: a
	// byte offset into a gzip stream would not line up with the file.
	client := t.c.client
	if *offset > 0 && !t.c.cfg.DisableResumable {
		client = t.c.resume
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", *offset))
	}

	resp, err := client.Do(req)
	if err != nil {
		return t.wrap("http get error", err)
	}
	defer resp.Body.Close()

	if err := classify(t.d.Kind, t.url, resp.StatusCode, resp.Status); err != nil {
		return err
	}

	// The server honored the range request only if it says so; without
	// a usable Content-Range the response is the full body and the
	// partial starts over.
	acceptRange := false
	if cr := resp.Header.Get("Content-Range"); cr != "" && !strings.EqualFold(cr, "none") {
		acceptRange = true
	}
	if acceptRange {
		if _, err := f.Seek(*offset, io.SeekStart); err != nil {
			return t.wrap("failed to seek partial file", err)
		}
	} else {
		if err := f.Truncate(0); err != nil {
			return t.wrap("failed to truncate partial file", err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return t.wrap("failed to seek partial file", err)
		}
		*offset = 0
		if t.digester != nil {
			t.digester = checksum.NewDigester()
		}
	}

	if resp.ContentLength > 0 {
		t.emitter.SetSize(*offset + resp.ContentLength)
	}

	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return t.wrap("failed to write partial file", werr)
			}
			if t.digester != nil {
				t.digester.Write(buf[:n])
			}
			*offset += int64(n)
			t.emitter.Progressed(int64(n))
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return t.wrap("download cancelled", ctx.Err())
			}
			return &resumableError{cause: rerr}
		}
	}
}

// verify applies the checksum policy to the streamed digests.
func (t *getTask) verify(ctx context.Context) error {
	err := t.verifySidecars(ctx)
	if err == nil {
		return nil
	}
	if t.d.Policy == transfer.ChecksumStrict {
		return err
	}
	// WARN: surface the corruption, accept the file anyway.
	t.emitter.Corrupted(err)
	return nil
}

// verifySidecars fetches the remote sidecar digests in preference order
// and compares them against the streamed digest. A missing or garbled
// sidecar falls through to the next algorithm; a present-but-different
// one fails immediately.
func (t *getTask) verifySidecars(ctx context.Context) error {
	for _, ext := range []string{checksum.ExtSHA1, checksum.ExtMD5} {
		expected, ok := t.fetchSidecar(ctx, ext)
		if !ok {
			continue
		}
		actual := t.digester.Hex(ext)
		if !checksum.Matches(expected, actual) {
			return &transfer.ChecksumError{URL: t.url + ext, Expected: expected, Actual: actual}
		}
		t.publishSidecar(ext, expected)
		return nil
	}
	return &transfer.ChecksumError{URL: t.url}
}

// fetchSidecar downloads and parses one sidecar digest. ok is false
// when the sidecar is absent or unusable.
func (t *getTask) fetchSidecar(ctx context.Context, ext string) (string, bool) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, t.url+ext, nil)
	if err != nil {
		return "", false
	}
	prepare(req, t.c.endpoint, t.c.cfg)

	resp, err := t.c.client.Do(req)
	if err != nil {
		t.c.log.Warn("Failed to fetch checksum sidecar",
			slog.String("url", t.url+ext), slog.String("error", err.Error()))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	if err != nil {
		return "", false
	}
	expected, err := checksum.Parse(string(body))
	if err != nil {
		// e.g. https://repo.maven.apache.org/maven2/org/wso2/msf4j/msf4j-swagger/2.5.2/msf4j-swagger-2.5.2.jar.sha1
		t.c.log.Warn("Unusable checksum sidecar", slog.String("url", t.url+ext))
		return "", false
	}
	return expected, true
}

// publishSidecar drops the verified digest next to the destination.
// Best effort; the download stands either way.
func (t *getTask) publishSidecar(ext, hex string) {
	dst := t.d.File + ext
	if err := t.c.files.Write(dst, []byte(hex+"\n")); err != nil {
		t.c.log.Warn("Failed to write checksum sidecar",
			slog.String("path", dst), slog.String("error", err.Error()))
	}
}

func (t *getTask) wrap(msg string, err error) error {
	return &transfer.Error{Kind: t.d.Kind, URL: t.url, Msg: msg, Err: err}
}

// resumableError marks a mid-stream I/O failure eligible for a ranged
// retry from the current partial length.
type resumableError struct {
	cause error
}

func (e *resumableError) Error() string {
	return fmt.Sprintf("interrupted transfer: %v", e.cause)
}

func (e *resumableError) Unwrap() error { return e.cause }

// writerOrDiscard lets the pre-feed copy run whether or not a digester
// is registered.
func writerOrDiscard(d *checksum.Digester) io.Writer {
	if d == nil {
		return io.Discard
	}
	return d
}
