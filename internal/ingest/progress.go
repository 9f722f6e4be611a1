package ingest

import "io"

// reportEvery is the minimum number of bytes between progress callbacks.
const reportEvery = 1 << 20

// ProgressReader wraps a source reader and reports bytes consumed, at most
// once per megabyte plus once at the end. The tokenizer pulls from it, so
// progress tracks the parse position through the input, not row counts.
type ProgressReader struct {
	r          io.Reader
	total      int64
	read       int64
	lastReport int64
	report     func(read, total int64)
}

// NewProgressReader wraps r. total may be 0 when the input size is unknown.
func NewProgressReader(r io.Reader, total int64, report func(read, total int64)) *ProgressReader {
	return &ProgressReader{r: r, total: total, report: report}
}

func (p *ProgressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		if p.read-p.lastReport >= reportEvery || (p.total > 0 && p.read >= p.total) {
			p.report(p.read, p.total)
			p.lastReport = p.read
		}
	}
	return n, err
}
