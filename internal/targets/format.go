package targets

import (
	"fmt"
	"strings"
)

// Format is the module-wrapping convention of a compiled artifact.
type Format string

const (
	FormatESModule Format = "es"
	FormatCommonJS Format = "cjs"
	FormatUMD      Format = "umd"
)

// ParseFormat parses a format string
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "es", "esm", "module", "ecmascriptmodule":
		return FormatESModule, nil
	case "cjs", "commonjs":
		return FormatCommonJS, nil
	case "umd", "universalmoduledefinition":
		return FormatUMD, nil
	default:
		return "", fmt.Errorf("invalid format: %s (valid: es, cjs, umd)", s)
	}
}

// String returns the short name of the format
func (f Format) String() string {
	return string(f)
}

// Valid reports whether f is one of the known formats
func (f Format) Valid() bool {
	switch f {
	case FormatESModule, FormatCommonJS, FormatUMD:
		return true
	}
	return false
}
