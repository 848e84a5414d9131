package main

import (
	"path/filepath"
	"strings"
)

// sanitizeNoExt keeps letters, digits, '-' and '_' of a base name.
func sanitizeNoExt(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "document"
	}
	return b.String()
}

// baseName is the sanitized file name of an upload without its extension.
func baseName(filename string) string {
	name := filepath.Base(filepath.ToSlash(strings.ReplaceAll(filename, `\`, "/")))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return sanitizeNoExt(strings.ReplaceAll(name, " ", "_"))
}

// safeName reports whether name is a plain file name (no directories).
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}
