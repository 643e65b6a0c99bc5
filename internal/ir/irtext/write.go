package irtext

import (
	"io"

	"github.com/orizon-lang/minic/internal/ir"
)

// Write prints m in the form Parse reads.
func Write(w io.Writer, m *ir.Module) error {
	_, err := io.WriteString(w, m.String())
	return err
}
