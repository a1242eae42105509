package progress

import (
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/repoflow/repoflow/pkg/transfer"
)

// Listener renders one byte-count bar for the whole batch. Uploads know
// their size at INITIATED; downloads learn theirs once response headers
// arrive, so every event may announce a resource total and the bar
// grows as totals come in.
type Listener struct {
	mu     sync.Mutex
	bar    *pb.ProgressBar
	totals map[string]int64 // per-resource size already added to the bar
}

func NewListener() *Listener {
	return &Listener{}
}

func (l *Listener) Initiated(ev transfer.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bar == nil {
		l.bar = pb.New64(0)
		l.bar.Set(pb.Bytes, true)
		l.bar.Start()
		l.totals = make(map[string]int64)
	}
	l.grow(ev)
}

func (l *Listener) Progressed(ev transfer.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bar == nil {
		return
	}
	l.grow(ev)
	l.bar.Add64(ev.Delta)
	if l.bar.Current() > l.bar.Total() {
		l.bar.SetTotal(l.bar.Current())
	}
}

func (l *Listener) Succeeded(transfer.Event) {}
func (l *Listener) Corrupted(transfer.Event) {}
func (l *Listener) Failed(transfer.Event)    {}

// grow folds a newly announced resource total into the bar. A resource
// that re-announces a different size (a resume that started over, say)
// adjusts its contribution instead of counting twice.
func (l *Listener) grow(ev transfer.Event) {
	if ev.Resource.Size <= 0 {
		return
	}
	key := ev.RequestType.String() + " " + ev.Resource.Repository + ev.Resource.Path
	if prev := l.totals[key]; ev.Resource.Size != prev {
		l.bar.SetTotal(l.bar.Total() + ev.Resource.Size - prev)
		l.totals[key] = ev.Resource.Size
	}
}

// Finish stops the bar once the batch returns.
func (l *Listener) Finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bar != nil {
		l.bar.Finish()
		l.bar = nil
		l.totals = nil
	}
}
