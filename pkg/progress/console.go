package progress

import (
	"fmt"
	"io"
)

// Console prints a running row counter per file, such as "data.csv: 42",
// redrawing the same line.
type Console struct {
	w io.Writer
}

// NewConsole creates a Console writing to w, usually os.Stderr.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) FileStarted(info FileInfo) {
	fmt.Fprintf(c.w, "%s: 0", info.Input)
}

func (c *Console) RowWritten(info FileInfo, row Row) {
	fmt.Fprintf(c.w, "\r%s: %d", info.Input, row.Seq)
}

func (c *Console) FileFinished(s Summary) {
	fmt.Fprintf(c.w, "\r%s: %d\n", s.Input, s.Rows)
}
