// Package pkgjson reads the library's package.json and checks that its entry
// fields point at the artifacts the build produces.
package pkgjson

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"

	"github.com/geoarrow/distbuild/internal/targets"
)

// Manifest holds the package.json fields that reference build artifacts
type Manifest struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Main     string `json:"main,omitempty"`
	Module   string `json:"module,omitempty"`
	Types    string `json:"types,omitempty"`
	Unpkg    string `json:"unpkg,omitempty"`
	JSDelivr string `json:"jsdelivr,omitempty"`
	Browser  string `json:"browser,omitempty"`

	ExportImport  string `json:"exports_import,omitempty"`
	ExportRequire string `json:"exports_require,omitempty"`
	ExportTypes   string `json:"exports_types,omitempty"`
}

// Load reads and parses the package.json at path
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the build configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses package.json contents
func Parse(data []byte) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("package.json is not valid JSON")
	}

	doc := gjson.ParseBytes(data)
	m := &Manifest{
		Name:     doc.Get("name").String(),
		Version:  doc.Get("version").String(),
		Main:     doc.Get("main").String(),
		Module:   doc.Get("module").String(),
		Types:    doc.Get("types").String(),
		Unpkg:    doc.Get("unpkg").String(),
		JSDelivr: doc.Get("jsdelivr").String(),
	}
	if m.Types == "" {
		m.Types = doc.Get("typings").String()
	}
	// "browser" may also be an object of replacements; only a path is an entry
	if browser := doc.Get("browser"); browser.Type == gjson.String {
		m.Browser = browser.String()
	}

	exports := doc.Get("exports")
	switch {
	case exports.Type == gjson.String:
		m.ExportImport = exports.String()
	case exports.IsObject():
		root := exports
		// Either a conditions object or a subpath map with a "." entry
		if dot := exports.Get(`\.`); dot.Exists() {
			root = dot
		}
		if root.Type == gjson.String {
			m.ExportImport = root.String()
		} else {
			m.ExportImport, m.ExportTypes = conditionTarget(root.Get("import"))
			var requireTypes string
			m.ExportRequire, requireTypes = conditionTarget(root.Get("require"))
			if types, _ := conditionTarget(root.Get("types")); types != "" {
				m.ExportTypes = types
			} else if m.ExportTypes == "" {
				m.ExportTypes = requireTypes
			}
			// "default" is what a resolver picks when no listed condition matches
			if m.ExportImport == "" {
				m.ExportImport, _ = conditionTarget(root.Get("default"))
			}
		}
	}

	if m.Name == "" {
		return nil, fmt.Errorf("package.json has no name")
	}
	if m.Version != "" {
		if _, err := semver.StrictNewVersion(m.Version); err != nil {
			return nil, fmt.Errorf("package.json version %q is not valid semver: %w", m.Version, err)
		}
	}

	return m, nil
}

// conditionTarget resolves an export condition to a path. Nested conditions
// such as {"types": ..., "default": ...} yield their default and types entries.
func conditionTarget(cond gjson.Result) (target, types string) {
	switch {
	case cond.Type == gjson.String:
		return cond.String(), ""
	case cond.IsObject():
		target, _ = conditionTarget(cond.Get("default"))
		if target == "" {
			target, _ = conditionTarget(cond.Get("import"))
		}
		if target == "" {
			target, _ = conditionTarget(cond.Get("require"))
		}
		types, _ = conditionTarget(cond.Get("types"))
		return target, types
	default:
		return "", ""
	}
}

// Severity classifies a finding
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding describes one package.json field that disagrees with the build
type Finding struct {
	Field    string   `json:"field"`
	Want     string   `json:"want"`
	Got      string   `json:"got"`
	Severity Severity `json:"severity"`
}

func (f Finding) String() string {
	if f.Got == "" {
		return fmt.Sprintf("%s: %s is missing (want %s)", f.Severity, f.Field, f.Want)
	}
	return fmt.Sprintf("%s: %s is %s (want %s)", f.Severity, f.Field, f.Got, f.Want)
}

// HasErrors reports whether any finding is an error
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Check compares the manifest's entry fields with the outputs of list.
// Required fields missing or pointing elsewhere are errors; optional CDN
// fields that are absent are warnings.
func Check(m *Manifest, list []targets.BuildTarget) []Finding {
	var esm, dts, cjs, umd string
	for _, t := range list {
		switch {
		case t.IsDeclaration():
			dts = t.OutputPath
		case t.Format == targets.FormatESModule:
			esm = t.OutputPath
		case t.Format == targets.FormatCommonJS:
			cjs = t.OutputPath
		case t.Format == targets.FormatUMD:
			umd = t.OutputPath
		}
	}

	var findings []Finding
	required := func(field, got, want string) {
		if want == "" {
			return
		}
		if !samePath(got, want) {
			findings = append(findings, Finding{Field: field, Want: want, Got: got, Severity: SeverityError})
		}
	}
	optional := func(field, got, want string) {
		if want == "" {
			return
		}
		switch {
		case got == "":
			findings = append(findings, Finding{Field: field, Want: want, Severity: SeverityWarning})
		case !samePath(got, want):
			findings = append(findings, Finding{Field: field, Want: want, Got: got, Severity: SeverityError})
		}
	}

	required("module", m.Module, esm)
	required("types", m.Types, dts)
	required("main", m.Main, cjs)
	optional("unpkg", m.Unpkg, umd)
	optional("jsdelivr", m.JSDelivr, umd)
	if m.Browser != "" {
		optional("browser", m.Browser, umd)
	}

	if m.ExportImport != "" || m.ExportRequire != "" || m.ExportTypes != "" {
		optional(`exports["."].import`, m.ExportImport, esm)
		optional(`exports["."].require`, m.ExportRequire, cjs)
		optional(`exports["."].types`, m.ExportTypes, dts)
	}

	return findings
}

// samePath compares package-relative paths, ignoring a leading "./"
func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return path.Clean(strings.TrimPrefix(a, "./")) == path.Clean(strings.TrimPrefix(b, "./"))
}
