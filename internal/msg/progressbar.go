package msg

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const barWidth = 30

// ProgressBar is an io.Writer that renders a single-line progress bar
// for a byte stream. Made for archive downloads: put it behind a
// TeeReader and call Finish once the stream is drained. Total <= 0
// (servers that omit Content-Length) degrades to a byte counter.
type ProgressBar struct {
	Total     int64
	Current   int64
	Indent    int
	W         io.Writer
	lastPrint time.Time
}

func NewProgressBar(total int64, indent int, w io.Writer) *ProgressBar {
	return &ProgressBar{
		Total:     total,
		Indent:    indent,
		W:         w,
		lastPrint: time.Now(),
	}
}

func (pb *ProgressBar) Write(p []byte) (int, error) {
	pb.Current += int64(len(p))

	if time.Since(pb.lastPrint) > 100*time.Millisecond {
		pb.render(false)
		pb.lastPrint = time.Now()
	}
	return len(p), nil
}

func (pb *ProgressBar) render(done bool) {
	pad := strings.Repeat(" ", pb.Indent)

	if pb.Total <= 0 {
		fmt.Fprintf(pb.W, "\r%s%.2f MB", pad, float64(pb.Current)/1e6)
		return
	}

	percent := float64(pb.Current) / float64(pb.Total)
	if done {
		percent = 1
	}
	filled := min(int(percent*barWidth), barWidth)

	fmt.Fprintf(pb.W, "\r%s[%s%s] %5.1f%% of %.2f MB",
		pad,
		strings.Repeat("=", filled),
		strings.Repeat(" ", barWidth-filled),
		percent*100,
		float64(pb.Total)/1e6,
	)
}

// Finish draws the completed bar and ends the line.
func (pb *ProgressBar) Finish() {
	pb.render(true)
	fmt.Fprintln(pb.W)
}
