// Package progress provides io wrappers that periodically report how many
// bytes moved through them, for long-running copies like image saves and
// archive uploads.
package progress

import (
	"fmt"
	"io"
	"time"
)

const printEvery = 500 * time.Millisecond

// Reader wraps an io.Reader and writes progress updates to out.
type Reader struct {
	r           io.Reader
	out         io.Writer
	label       string
	total       int64
	done        int64
	lastPrinted time.Time
}

// NewReader creates a progress Reader. If total is 0 the percentage is
// omitted and only the byte count is shown.
func NewReader(r io.Reader, total int64, label string, out io.Writer) *Reader {
	return &Reader{r: r, out: out, label: label, total: total}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.maybePrint()
	}
	if err == io.EOF {
		p.print()
		if p.out != nil {
			fmt.Fprint(p.out, "\n")
		}
	}
	return n, err
}

func (p *Reader) maybePrint() {
	now := time.Now()
	if now.Sub(p.lastPrinted) >= printEvery {
		p.print()
		p.lastPrinted = now
	}
}

func (p *Reader) print() {
	if p.out == nil {
		return
	}
	if p.total > 0 {
		pct := float64(p.done) / float64(p.total) * 100
		fmt.Fprintf(p.out, "\r[%s] %.1f%% (%s/%s)", p.label, pct, human(p.done), human(p.total))
	} else {
		fmt.Fprintf(p.out, "\r[%s] %s", p.label, human(p.done))
	}
}

// Writer is the write-side counterpart, used when a producer pushes bytes
// into a staged file rather than being read from.
type Writer struct {
	w           io.Writer
	out         io.Writer
	label       string
	done        int64
	lastPrinted time.Time
}

func NewWriter(w io.Writer, label string, out io.Writer) *Writer {
	return &Writer{w: w, out: out, label: label}
}

func (p *Writer) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.done += int64(n)
		p.maybePrint()
	}
	return n, err
}

// Finish prints the final count and a trailing newline.
func (p *Writer) Finish() {
	p.print()
	if p.out != nil {
		fmt.Fprint(p.out, "\n")
	}
}

func (p *Writer) maybePrint() {
	now := time.Now()
	if now.Sub(p.lastPrinted) >= printEvery {
		p.print()
		p.lastPrinted = now
	}
}

func (p *Writer) print() {
	if p.out == nil {
		return
	}
	fmt.Fprintf(p.out, "\r[%s] %s", p.label, human(p.done))
}

func human(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
