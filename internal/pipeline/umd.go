package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// umdBanner returns the opening of the UMD wrapper placed before the
// CommonJS body. The body sees a local require that resolves externals
// through module loaders or, as a browser global, through globals.
func umdBanner(globalName string, globals map[string]string) string {
	deps := make([]string, 0, len(globals))
	for dep := range globals {
		deps = append(deps, dep)
	}
	sort.Strings(deps)

	amdDeps, _ := json.Marshal(append([]string{"require"}, deps...))
	globalMap, _ := json.Marshal(globals)
	if globals == nil {
		globalMap = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("(function (root, factory) {\n")
	b.WriteString("  if (typeof exports === \"object\" && typeof module !== \"undefined\") {\n")
	b.WriteString("    module.exports = factory(require);\n")
	b.WriteString("  } else if (typeof define === \"function\" && define.amd) {\n")
	fmt.Fprintf(&b, "    define(%s, function (req) {\n", amdDeps)
	b.WriteString("      return factory(req);\n")
	b.WriteString("    });\n")
	b.WriteString("  } else {\n")
	fmt.Fprintf(&b, "    var globals = %s;\n", globalMap)
	b.WriteString("    var target = root;\n")
	segments := strings.Split(globalName, ".")
	for _, seg := range segments[:len(segments)-1] {
		fmt.Fprintf(&b, "    target = target[%q] = target[%q] || {};\n", seg, seg)
	}
	fmt.Fprintf(&b, "    target[%q] = factory(function (id) {\n", segments[len(segments)-1])
	b.WriteString("      return root[globals[id]];\n")
	b.WriteString("    });\n")
	b.WriteString("  }\n")
	b.WriteString("})(typeof globalThis !== \"undefined\" ? globalThis : typeof self !== \"undefined\" ? self : this, function (require) {\n")
	b.WriteString("var module = { exports: {} }, exports = module.exports;")
	return b.String()
}

// umdFooter closes the wrapper opened by umdBanner
func umdFooter() string {
	return "return module.exports;\n});"
}
