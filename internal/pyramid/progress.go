package pyramid

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	barWidth       = 30
	redrawInterval = 100 * time.Millisecond
)

// progressBar redraws a one-line bar for a pass over total work items.
// Increment may be called from any goroutine.
type progressBar struct {
	out   io.Writer
	label string
	unit  string
	total int64
	start time.Time

	done      atomic.Int64
	stop      chan struct{}
	finish    sync.Once
	drawMu    sync.Mutex
	lastDrawn int64
}

// newProgressBar starts a bar drawing to out. With a nil out the bar only
// counts.
func newProgressBar(out io.Writer, label, unit string, total int64) *progressBar {
	pb := &progressBar{
		out:       out,
		label:     label,
		unit:      unit,
		total:     total,
		start:     time.Now(),
		stop:      make(chan struct{}),
		lastDrawn: -1,
	}
	if out != nil {
		go pb.loop()
	}
	return pb
}

func (pb *progressBar) Increment() { pb.done.Add(1) }

// Finish stops redrawing and prints the final line. Later calls do nothing.
func (pb *progressBar) Finish() {
	pb.finish.Do(func() {
		close(pb.stop)
		if pb.out != nil {
			pb.draw(true)
		}
	})
}

func (pb *progressBar) loop() {
	t := time.NewTicker(redrawInterval)
	defer t.Stop()
	for {
		select {
		case <-pb.stop:
			return
		case <-t.C:
			pb.draw(false)
		}
	}
}

func (pb *progressBar) draw(final bool) {
	pb.drawMu.Lock()
	defer pb.drawMu.Unlock()

	n := pb.done.Load()
	if n == pb.lastDrawn && !final {
		return
	}
	pb.lastDrawn = n
	end := "\033[K"
	if final {
		end += "\n"
	}
	fmt.Fprint(pb.out, "\r"+pb.line(n, time.Since(pb.start), final)+end)
}

// line renders the bar after n items and elapsed time.
func (pb *progressBar) line(n int64, elapsed time.Duration, final bool) string {
	frac := 1.0
	if pb.total > 0 {
		frac = min(float64(n)/float64(pb.total), 1)
	}
	filled := int(barWidth * frac)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	var rate float64
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(n) / s
	}
	tail := formatDuration(elapsed)
	if !final && rate > 0 && n < pb.total {
		eta := time.Duration(float64(pb.total-n) / rate * float64(time.Second))
		tail += " eta " + formatDuration(eta)
	}
	return fmt.Sprintf("%s [%s] %3.0f%%  %d/%d %s  %.0f/s  %s",
		pb.label, bar, frac*100, n, pb.total, pb.unit, rate, tail)
}

// formatDuration formats a duration concisely, e.g. "1m23s" or "45s".
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	return fmt.Sprintf("%dm%02ds", m, int(d.Seconds())-m*60)
}
