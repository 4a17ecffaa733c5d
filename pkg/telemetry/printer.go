package telemetry

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Printer writes unformatted operator output: stack events and build console lines.
// Structured diagnostics go through Logger instead.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter creates a printer writing to w. A nil writer means stdout.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w}
}

// Println writes one line.
func (p *Printer) Println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}

// Printf writes a formatted line. A trailing newline is added.
func (p *Printer) Printf(format string, args ...interface{}) {
	p.Println(fmt.Sprintf(format, args...))
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}
