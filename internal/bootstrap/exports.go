package bootstrap

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// WriteExports prints exports as POSIX shell statements so callers can
// `eval "$(cictl bootstrap)"`.
func WriteExports(w io.Writer, exports []Export) error {
	for _, e := range exports {
		if _, err := fmt.Fprintf(w, "export %s=%s\n", e.Key, shellQuote(e.Value)); err != nil {
			return err
		}
	}
	return nil
}

// AppendEnvFile appends KEY=VALUE lines to path, creating it if needed.
func AppendEnvFile(path string, exports []Export) error {
	if len(exports) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open env file %s: %w", path, err)
	}
	defer f.Close()

	for _, e := range exports {
		if _, err := fmt.Fprintf(f, "%s=%s\n", e.Key, e.Value); err != nil {
			return fmt.Errorf("write env file %s: %w", path, err)
		}
	}
	return nil
}

func shellQuote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}
