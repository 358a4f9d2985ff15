// Package actions writes step outputs in the format the hosted CI runner
// reads from the file named by GITHUB_OUTPUT.
package actions

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// OutputEnv names the environment variable that points at the outputs file.
const OutputEnv = "GITHUB_OUTPUT"

// WriteOutputs writes outputs to w in sorted key order. Single-line values
// use key=value; multi-line values use the heredoc form with a random
// delimiter that cannot collide with the value.
func WriteOutputs(w io.Writer, outputs map[string]string) error {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.ContainsAny(k, "=\n") || k == "" {
			return fmt.Errorf("invalid output name %q", k)
		}
		v := outputs[k]

		var err error
		if strings.Contains(v, "\n") {
			delim := "EOF_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			_, err = fmt.Fprintf(w, "%s<<%s\n%s\n%s\n", k, delim, v, delim)
		} else {
			_, err = fmt.Fprintf(w, "%s=%s\n", k, v)
		}
		if err != nil {
			return fmt.Errorf("write output %s: %w", k, err)
		}
	}
	return nil
}

// AppendOutputs appends outputs to the file at path.
func AppendOutputs(path string, outputs map[string]string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open outputs file: %w", err)
	}
	if err := WriteOutputs(f, outputs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Emit appends outputs to $GITHUB_OUTPUT when it is set and otherwise writes
// them to fallback.
func Emit(fallback io.Writer, outputs map[string]string) error {
	if path := os.Getenv(OutputEnv); path != "" {
		return AppendOutputs(path, outputs)
	}
	return WriteOutputs(fallback, outputs)
}
