package pipeline

import (
	"path/filepath"
	"strings"

	gferrors "github.com/vnykmshr/parcsv/pkg/common/errors"
)

// OutputPath derives the output file for input: same directory, the input
// stem followed by suffix, then ext. It refuses a name that would overwrite
// the input itself.
func OutputPath(input, suffix, ext string) (string, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	dir, base := filepath.Split(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	out := filepath.Join(dir, stem+suffix+ext)

	if filepath.Clean(out) == filepath.Clean(input) {
		return "", gferrors.NewValidationError("pipeline", "suffix", suffix, "output would overwrite the input file").
			WithHint("use a non-empty suffix or a different extension")
	}
	return out, nil
}
