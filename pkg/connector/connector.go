package connector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"

	"github.com/repoflow/repoflow/pkg/fileproc"
	"github.com/repoflow/repoflow/pkg/remote"
	"github.com/repoflow/repoflow/pkg/tempfile"
	"github.com/repoflow/repoflow/pkg/transfer"
)

// Connector moves batches of artifacts and metadata between one remote
// repository and the local filesystem. Get and Put block until every
// descriptor in the batch is terminal; per-descriptor results are read
// off the descriptors afterwards, the calls themselves only fail for
// connector-level conditions.
type Connector struct {
	endpoint remote.Endpoint
	cfg      SessionConfig
	files    fileproc.Processor
	log      *slog.Logger

	// client serves plain requests with compression enabled; resume
	// serves ranged requests and has compression disabled.
	client *retryablehttp.Client
	resume *retryablehttp.Client

	registry *tempfile.Registry
	limit    *semaphore.Weighted
	closed   atomic.Bool
}

// New validates the endpoint and builds a connector for it. Endpoints
// with a content type other than "default" or a scheme outside
// {http, https, dav, dav:http, dav:https} are refused with
// NoConnectorError.
func New(endpoint remote.Endpoint, cfg SessionConfig, files fileproc.Processor, log *slog.Logger) (*Connector, error) {
	if endpoint.ContentType != remote.ContentTypeDefault {
		return nil, &transfer.NoConnectorError{
			URL:    endpoint.URL,
			Reason: "unsupported content type " + endpoint.ContentType,
		}
	}
	if !endpoint.Supported() {
		return nil, &transfer.NoConnectorError{
			URL:    endpoint.URL,
			Reason: "unsupported scheme",
		}
	}

	cfg = cfg.withDefaults()
	if log == nil {
		log = cfg.Logger
	}
	if files == nil {
		files = fileproc.Default{}
	}

	return &Connector{
		endpoint: endpoint,
		cfg:      cfg,
		files:    files,
		log:      log,
		client:   newClient(endpoint, cfg, true),
		resume:   newClient(endpoint, cfg, false),
		registry: tempfile.NewRegistry(tempfile.Option{
			DisableResume: cfg.DisableResumable,
			Logger:        log,
		}),
		limit: semaphore.NewWeighted(cfg.Concurrency),
	}, nil
}

// Get downloads the given artifacts and metadata concurrently and
// returns once every descriptor is DONE. Nil slices are fine.
func (c *Connector) Get(ctx context.Context, artifacts, metadata []*transfer.Download) error {
	if c.closed.Load() {
		return transfer.ErrClosed
	}

	tasks := make([]task, 0, len(artifacts)+len(metadata))
	for _, d := range lo.Compact(metadata) {
		d.Kind = transfer.KindMetadata
		// Metadata documents are small and freshly generated; resuming
		// a stale partial buys nothing.
		tasks = append(tasks, c.newGetTask(d, false))
	}
	for _, d := range lo.Compact(artifacts) {
		d.Kind = transfer.KindArtifact
		tasks = append(tasks, c.newGetTask(d, true))
	}

	c.run(ctx, tasks)
	return nil
}

// Put uploads the given artifacts and metadata concurrently and returns
// once every descriptor is DONE. Nil slices are fine.
func (c *Connector) Put(ctx context.Context, artifacts, metadata []*transfer.Upload) error {
	if c.closed.Load() {
		return transfer.ErrClosed
	}

	tasks := make([]task, 0, len(artifacts)+len(metadata))
	for _, u := range lo.Compact(artifacts) {
		u.Kind = transfer.KindArtifact
		tasks = append(tasks, c.newPutTask(u))
	}
	for _, u := range lo.Compact(metadata) {
		u.Kind = transfer.KindMetadata
		tasks = append(tasks, c.newPutTask(u))
	}

	c.run(ctx, tasks)
	return nil
}

// Close shuts the connector down. Idempotent; Get and Put calls made
// after Close fail with ErrClosed. In-flight batches drain on their own.
func (c *Connector) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.client.HTTPClient.CloseIdleConnections()
	c.resume.HTTPClient.CloseIdleConnections()
}

// task is one unit of a batch: a download or an upload worker.
type task interface {
	// attach wires the task's latch guard to the batch barrier.
	attach(done func())
	// run performs the transfer and releases the barrier exactly once,
	// no matter how many terminal paths fire.
	run(ctx context.Context)
	// complete records a terminal error without running (dispatch
	// failure, cancellation) and releases the barrier.
	complete(err error)
	// finalize writes the terminal outcome onto the descriptor. err is
	// only used when the task recorded none of its own.
	finalize(err error)
}

// base carries the terminal-error slot and the idempotent barrier
// release shared by get and put tasks.
type base struct {
	guard latchGuard

	mu     sync.Mutex
	err    error
	errSet bool
}

func (b *base) attach(done func()) {
	b.guard.done = done
}

// complete records the task's terminal error (first writer wins) and
// releases the barrier. Safe to call from any number of paths.
func (b *base) complete(err error) {
	b.mu.Lock()
	if !b.errSet {
		b.err = err
		b.errSet = true
	}
	b.mu.Unlock()
	b.guard.countDown()
}

func (b *base) terminal() (error, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err, b.errSet
}

// run dispatches one worker per task and blocks until all of them have
// released the barrier, then finalizes every descriptor. When ctx is
// cancelled while waiting, pending descriptors finalize as Cancelled
// and the call returns; network I/O already in flight drains in the
// background.
func (c *Connector) run(ctx context.Context, tasks []task) {
	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for _, t := range tasks {
		t.attach(wg.Done)
		go func(t task) {
			if err := c.limit.Acquire(ctx, 1); err != nil {
				t.complete(transfer.ErrCancelled)
				return
			}
			defer c.limit.Release(1)
			t.run(ctx)
		}(t)
	}

	barrier := make(chan struct{})
	go func() {
		wg.Wait()
		close(barrier)
	}()

	select {
	case <-barrier:
		for _, t := range tasks {
			t.finalize(nil)
		}
	case <-ctx.Done():
		for _, t := range tasks {
			t.finalize(transfer.ErrCancelled)
		}
	}
}

// latchGuard lets a worker's error path and normal path both signal
// completion while releasing the batch barrier at most once.
type latchGuard struct {
	once sync.Once
	done func()
}

func (g *latchGuard) countDown() {
	g.once.Do(func() {
		if g.done != nil {
			g.done()
		}
	})
}
