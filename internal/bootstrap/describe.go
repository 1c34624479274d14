package bootstrap

import (
	"fmt"
	"io"
)

// Describe writes a human readable plan for --dry-run.
func (p Plan) Describe(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "platform: %s\n", p.Platform); err != nil {
		return err
	}
	if p.Empty() {
		_, err := fmt.Fprintln(w, "nothing to do")
		return err
	}
	for i, step := range p.Steps {
		line := fmt.Sprintf("%2d. %s", i+1, step.Name)
		if step.Check != nil {
			line += fmt.Sprintf(" [check: %s]", step.Check)
		}
		if step.Command != nil {
			line += fmt.Sprintf(" $ %s", step.Command)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	for _, e := range p.Exports {
		if _, err := fmt.Fprintf(w, "export %s=%s\n", e.Key, shellQuote(e.Value)); err != nil {
			return err
		}
	}
	return nil
}
