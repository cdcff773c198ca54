package mapper

import (
	"bytes"
	"fmt"
)

// Diagnostics collects the incidental output of one transform invocation.
// A fresh value is created for every row; it is not safe for concurrent use.
type Diagnostics struct {
	Stdout bytes.Buffer
	Stderr bytes.Buffer
}

// Printf appends informational output.
func (d *Diagnostics) Printf(format string, args ...any) {
	fmt.Fprintf(&d.Stdout, format, args...)
}

// Println appends informational output followed by a newline.
func (d *Diagnostics) Println(args ...any) {
	fmt.Fprintln(&d.Stdout, args...)
}

// Eprintf appends error output.
func (d *Diagnostics) Eprintf(format string, args ...any) {
	fmt.Fprintf(&d.Stderr, format, args...)
}

// Output returns captured informational output.
func (d *Diagnostics) Output() string {
	return d.Stdout.String()
}

// ErrorOutput returns captured error output.
func (d *Diagnostics) ErrorOutput() string {
	return d.Stderr.String()
}
