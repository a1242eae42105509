package connector

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/repoflow/repoflow/pkg/checksum"
	"github.com/repoflow/repoflow/pkg/transfer"
)

// putTask uploads one local file and then publishes its checksum
// sidecars next to it on the remote.
type putTask struct {
	base

	c *Connector
	u *transfer.Upload

	url     string
	emitter *transfer.Emitter
}

func (c *Connector) newPutTask(u *transfer.Upload) *putTask {
	return &putTask{
		c:   c,
		u:   u,
		url: c.endpoint.ResolveURL(u.Path),
		emitter: transfer.NewEmitter(c.cfg.Listener, c.log, transfer.Resource{
			Repository: c.endpoint.URL,
			Path:       u.Path,
			File:       u.File,
		}, transfer.RequestPut),
	}
}

func (t *putTask) finalize(err error) {
	if terr, ok := t.terminal(); ok {
		err = terr
	}
	t.u.MarkDone(err)
}

func (t *putTask) run(ctx context.Context) {
	t.u.MarkActive()
	defer t.guard.countDown()

	// The upload size is known up front; carry it on INITIATED already.
	if info, err := os.Stat(t.u.File); err == nil {
		t.emitter.SetSize(info.Size())
	}
	t.emitter.Initiated()

	err := t.send(ctx)
	if err != nil {
		t.emitter.Failed(err)
		t.complete(err)
		return
	}

	// Sidecar uploads are attempted before the terminal signal but
	// never fail the parent upload; some remotes reject the extensions.
	t.uploadSidecars(ctx)

	t.emitter.Succeeded()
	t.complete(nil)
}

// send streams the local file to the remote and classifies the response.
func (t *putTask) send(ctx context.Context) error {
	f, err := os.Open(t.u.File)
	if err != nil {
		return t.wrap("failed to open upload source", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return t.wrap("failed to stat upload source", err)
	}

	body := &progressReader{r: f, emitter: t.emitter}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, t.url, body)
	if err != nil {
		return t.wrap("unable to create a HTTP request", err)
	}
	req.ContentLength = info.Size()
	prepare(req, t.c.endpoint, t.c.cfg)

	resp, err := t.c.client.Do(req)
	if err != nil {
		return t.wrap("http put error", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return classify(t.u.Kind, t.url, resp.StatusCode, resp.Status)
}

// uploadSidecars computes both digests of the source file and PUTs each
// as "<url><ext>" with the hex string as body. Failures are logged and
// swallowed.
func (t *putTask) uploadSidecars(ctx context.Context) {
	d, err := checksum.File(t.u.File)
	if err != nil {
		t.c.log.Warn("Failed to compute checksums for upload",
			slog.String("file", t.u.File), slog.String("error", err.Error()))
		return
	}

	for _, ext := range []string{checksum.ExtSHA1, checksum.ExtMD5} {
		if err := t.putSidecar(ctx, ext, d.Hex(ext)); err != nil {
			t.c.log.Warn("Failed to upload checksum sidecar",
				slog.String("url", t.url+ext), slog.String("error", err.Error()))
		}
	}
}

func (t *putTask) putSidecar(ctx context.Context, ext, hex string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, t.url+ext, bytes.NewReader([]byte(hex)))
	if err != nil {
		return err
	}
	prepare(req, t.c.endpoint, t.c.cfg)

	resp, err := t.c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return classify(t.u.Kind, t.url+ext, resp.StatusCode, resp.Status)
}

func (t *putTask) wrap(msg string, err error) error {
	return &transfer.Error{Kind: t.u.Kind, URL: t.url, Msg: msg, Err: err}
}

// progressReader feeds upload progress events as the transport drains
// the request body.
type progressReader struct {
	r       io.ReadSeeker
	emitter *transfer.Emitter
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.emitter.Progressed(int64(n))
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	return p.r.Seek(offset, whence)
}
