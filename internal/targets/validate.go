package targets

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrMultipleInputs  = errors.New("targets must share a single input path")
	ErrDuplicateOutput = errors.New("output path used by more than one target")
	ErrGlobalName      = errors.New("global name is required for umd targets only")
	ErrNoPlugins       = errors.New("target has no plugins")
	ErrUnknownFormat   = errors.New("unknown output format")
)

// globalNameRegex matches a dotted JavaScript identifier path such as "deck.gl.layers"
var globalNameRegex = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)*$`)

// ValidGlobalName reports whether name can be assigned as a browser global
func ValidGlobalName(name string) bool {
	return globalNameRegex.MatchString(name)
}

// Validate checks list against the registry rules and returns every
// violation joined together, or nil.
func Validate(list []BuildTarget) error {
	var errs []error

	inputs := make(map[string]bool)
	outputs := make(map[string]string)

	for _, t := range list {
		inputs[t.InputPath] = true

		if prev, ok := outputs[t.OutputPath]; ok {
			errs = append(errs, fmt.Errorf("%w: %s (%s, %s)", ErrDuplicateOutput, t.OutputPath, prev, t.Name))
		} else {
			outputs[t.OutputPath] = t.Name
		}

		if !t.Format.Valid() {
			errs = append(errs, fmt.Errorf("%w: %q on target %s", ErrUnknownFormat, t.Format, t.Name))
		}

		switch {
		case t.Format == FormatUMD && t.GlobalName == "":
			errs = append(errs, fmt.Errorf("%w: target %s is missing a global name", ErrGlobalName, t.Name))
		case t.Format == FormatUMD && !ValidGlobalName(t.GlobalName):
			errs = append(errs, fmt.Errorf("%w: %q on target %s is not an identifier", ErrGlobalName, t.GlobalName, t.Name))
		case t.Format != FormatUMD && t.GlobalName != "":
			errs = append(errs, fmt.Errorf("%w: target %s (%s) must not set one", ErrGlobalName, t.Name, t.Format))
		}

		if len(t.Plugins) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoPlugins, t.Name))
		}
	}

	if len(inputs) > 1 {
		errs = append(errs, fmt.Errorf("%w: found %d", ErrMultipleInputs, len(inputs)))
	}

	return errors.Join(errs...)
}
