package rename

import (
	"strings"

	"codeshrink/internal/syntax"
)

func words(list string) map[string]bool {
	fields := strings.Fields(list)
	m := make(map[string]bool, len(fields))
	for _, f := range fields {
		m[f] = true
	}
	return m
}

var pythonReserved = words(`
	False None True and as assert async await break class continue def del
	elif else except finally for from global if import in is lambda nonlocal
	not or pass raise return try while with yield
	match case type _
	self cls
	abs aiter all anext any ascii bin bool breakpoint bytearray bytes callable
	chr classmethod compile complex delattr dict dir divmod enumerate eval exec
	filter float format frozenset getattr globals hasattr hash help hex id input
	int isinstance issubclass iter len list locals map max memoryview min next
	object oct open ord pow print property range repr reversed round set setattr
	slice sorted staticmethod str sum super tuple vars zip
	Exception BaseException ValueError TypeError KeyError IndexError
	AttributeError RuntimeError StopIteration NotImplemented Ellipsis
`)

var javascriptReserved = words(`
	break case catch class const continue debugger default delete do else
	export extends false finally for function if import in instanceof new null
	return super switch this throw true try typeof var void while with yield
	let static enum await implements package protected interface private public
	async of get set arguments eval
	undefined NaN Infinity globalThis
	console window document require module exports process
	Math JSON Object Array Promise String Number Boolean Error Date RegExp
	Map Set WeakMap WeakSet Symbol BigInt Reflect Proxy
	parseInt parseFloat isNaN isFinite setTimeout clearTimeout setInterval
	clearInterval
`)

// ReservedNames returns the names that must never be renamed in lang.
// The returned set is shared and must not be modified.
func ReservedNames(lang syntax.Language) map[string]bool {
	switch lang {
	case syntax.LangPython:
		return pythonReserved
	case syntax.LangJavaScript:
		return javascriptReserved
	default:
		return nil
	}
}

// IsDunder reports names with a leading or trailing double underscore.
func IsDunder(name string) bool {
	return strings.HasPrefix(name, "__") || strings.HasSuffix(name, "__")
}

// IsPrivate reports names with a leading underscore.
func IsPrivate(name string) bool {
	return strings.HasPrefix(name, "_")
}

// IsConstant reports names made only of uppercase ASCII letters and underscores.
func IsConstant(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'A' || c > 'Z') && c != '_' {
			return false
		}
	}
	return true
}

// IsReserved reports whether name is excluded from renaming in lang.
func IsReserved(lang syntax.Language, name string) bool {
	return ReservedNames(lang)[name] || IsDunder(name) || IsPrivate(name) || IsConstant(name)
}
