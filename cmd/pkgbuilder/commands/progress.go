package commands

import (
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progressBar renders artifact download progress. The bar is created on the
// first update so builds that never download print nothing.
type progressBar struct {
	out  io.Writer
	once sync.Once
	p    *mpb.Progress
	bar  *mpb.Bar
}

func newProgressBar(out io.Writer) *progressBar {
	return &progressBar{out: out}
}

func (b *progressBar) Update(percent int, task string) {
	b.once.Do(func() {
		b.p = mpb.New(mpb.WithOutput(b.out), mpb.WithWidth(40), mpb.WithRefreshRate(180*time.Millisecond))
		b.bar = b.p.New(100,
			mpb.BarStyle().Rbound("|"),
			mpb.PrependDecorators(decor.Name(task+" ")),
			mpb.AppendDecorators(decor.Percentage()),
		)
	})
	b.bar.SetCurrent(int64(percent))
}

// Finish waits for the bar to render its last frame. Safe on a nil receiver.
func (b *progressBar) Finish() {
	if b == nil || b.p == nil {
		return
	}
	if !b.bar.Completed() {
		b.bar.Abort(false)
	}
	b.p.Wait()
}
