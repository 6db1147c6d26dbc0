package engine

import (
	"sort"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

type functionType interface {
	ParamTypes() []api.ValueType
	ResultTypes() []api.ValueType
}

func sameSignature(a, b functionType) bool {
	return equalTypes(a.ParamTypes(), b.ParamTypes()) && equalTypes(a.ResultTypes(), b.ResultTypes())
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// signature renders a function type as "(i32, i64) -> f32".
func signature(f functionType) string {
	var b strings.Builder
	b.WriteByte('(')
	writeTypes(&b, f.ParamTypes())
	b.WriteString(") -> ")
	results := f.ResultTypes()
	switch len(results) {
	case 0:
		b.WriteString("()")
	case 1:
		b.WriteString(api.ValueTypeName(results[0]))
	default:
		b.WriteByte('(')
		writeTypes(&b, results)
		b.WriteByte(')')
	}
	return b.String()
}

func writeTypes(b *strings.Builder, types []api.ValueType) {
	for i, t := range types {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(t))
	}
}

func sortedNames(defs map[string]api.FunctionDefinition) []string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
