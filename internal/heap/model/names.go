package model

import "strings"

// JavaClassName converts a JVM internal class name to source form:
// "java/lang/String" -> "java.lang.String", "[[I" -> "int[][]",
// "[Ljava/lang/Object;" -> "java.lang.Object[]".
func JavaClassName(internal string) string {
	dims := 0
	for dims < len(internal) && internal[dims] == '[' {
		dims++
	}
	if dims == 0 {
		return strings.ReplaceAll(internal, "/", ".")
	}

	elem := internal[dims:]
	var base string
	switch {
	case strings.HasPrefix(elem, "L") && strings.HasSuffix(elem, ";"):
		base = strings.ReplaceAll(elem[1:len(elem)-1], "/", ".")
	case len(elem) == 1:
		base = descriptorName(elem[0])
	default:
		base = strings.ReplaceAll(elem, "/", ".")
	}

	return base + strings.Repeat("[]", dims)
}

func descriptorName(c byte) string {
	switch c {
	case 'Z':
		return "boolean"
	case 'C':
		return "char"
	case 'F':
		return "float"
	case 'D':
		return "double"
	case 'B':
		return "byte"
	case 'S':
		return "short"
	case 'I':
		return "int"
	case 'J':
		return "long"
	default:
		return string(c)
	}
}

// PrimitiveArrayName returns e.g. "byte[]" for a primitive array element type
func PrimitiveArrayName(elem FieldType) string {
	return elem.JavaName() + "[]"
}
