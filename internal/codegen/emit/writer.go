package emit

import (
	"bufio"
	"io"
)

// WriteOptions controls text output.
type WriteOptions struct {
	// KeepEmpty prints an empty line in place of every dead entry.
	KeepEmpty bool
	// StripComments drops comment entries.
	StripComments bool
}

// Write prints the sequence one entry per line: labels at column zero,
// instructions and comments indented by a tab.
func (s *Sequence) Write(w io.Writer, opts WriteOptions) error {
	bw := bufio.NewWriter(w)
	for _, in := range s.insts {
		if in.Kind == KindComment && opts.StripComments {
			continue
		}
		text := in.Text()
		if in.dead || text == "" {
			if opts.KeepEmpty {
				bw.WriteByte('\n')
			}
			continue
		}
		if in.Kind != KindLabel {
			bw.WriteByte('\t')
		}
		bw.WriteString(text)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
