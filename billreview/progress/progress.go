package progress

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Bar reports progress over a fixed number of items. A nil writer disables rendering.
type Bar struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func New(w io.Writer, name string, total int) *Bar {
	p := mpb.New(mpb.WithOutput(w), mpb.WithWidth(48))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{C: decor.DindentRight | decor.DextraSpace}),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Name(" "),
			decor.EwmaETA(decor.ET_STYLE_GO, 30),
		),
	)
	return &Bar{p: p, bar: bar}
}

func (b *Bar) Increment() {
	b.bar.EwmaIncrement(0)
}

// Done waits for rendering to finish. A bar that stopped short of its total is aborted first.
func (b *Bar) Done() {
	if !b.bar.Completed() {
		b.bar.Abort(false)
	}
	b.p.Wait()
}
