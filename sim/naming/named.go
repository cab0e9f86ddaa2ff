// Package naming defines the hierarchical names used by components, ports,
// links and buffers.
package naming

import (
	"strconv"
	"strings"
)

// Named describes an object that has a name.
type Named interface {
	// Name returns the name of the object.
	Name() string
}

// NamedBase is a base implementation of Named.
type NamedBase struct {
	name string
}

// Name returns the name.
func (b NamedBase) Name() string {
	return b.name
}

// MakeNamedBase creates a new NamedBase after checking the name.
func MakeNamedBase(name string) NamedBase {
	NameMustBeValid(name)

	return NamedBase{name: name}
}

// NameMustBeValid panics if the name does not follow the naming convention.
//
// A name is a dot-separated list of elements, for example
// "Platform.DelayLine[1].Cache". Every element must be non-empty, start with
// a capital letter, and must not contain "_", "-", or quotes. Elements in a
// series use square-bracket indices.
func NameMustBeValid(name string) {
	for _, token := range strings.Split(name, ".") {
		if err := tokenError(token); err != "" {
			panic("name " + name + " is not valid: " + err)
		}
	}
}

func tokenError(token string) string {
	elem, indexPart, _ := strings.Cut(token, "[")

	if elem == "" {
		return "element must not be empty"
	}

	if elem[0] < 'A' || elem[0] > 'Z' {
		return "element must start with a capital letter"
	}

	if strings.ContainsAny(elem, "_-\"' ") {
		return "element contains an invalid character"
	}

	if indexPart == "" {
		return ""
	}

	return indexError("[" + indexPart)
}

func indexError(s string) string {
	for s != "" {
		if s[0] != '[' {
			return "unexpected " + s
		}

		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "bracket must match"
		}

		if _, err := strconv.Atoi(s[1:end]); err != nil {
			return "index must be an integer"
		}

		s = s[end+1:]
	}

	return ""
}

// BuildName builds a name from a parent name and an element name.
func BuildName(parentName, elementName string) string {
	if parentName == "" {
		return elementName
	}

	return parentName + "." + elementName
}

// BuildNameWithIndex builds a name from a parent name, an element name and an
// index.
func BuildNameWithIndex(parentName, elementName string, index int) string {
	return BuildName(parentName, elementName+"["+strconv.Itoa(index)+"]")
}
