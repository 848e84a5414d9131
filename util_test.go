package main

import "testing"

func TestBaseName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"report.pdf":             "report",
		"My Report (final).PDF":  "My_Report_final",
		`C:\Users\me\scan 1.pdf`: "scan_1",
		"../../etc/passwd":       "passwd",
		"ả.pdf":                  "document",
		"noext":                  "noext",
	}
	for in, want := range tests {
		if got := baseName(in); got != want {
			t.Errorf("baseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSafeName(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"a.pdf", "merged_1a2b3c4d.pdf", "..a.pdf"} {
		if !safeName(ok) {
			t.Errorf("safeName(%q) = false", ok)
		}
	}
	for _, bad := range []string{"", ".", "..", "a/b.pdf", `a\b.pdf`, "/a.pdf"} {
		if safeName(bad) {
			t.Errorf("safeName(%q) = true", bad)
		}
	}
}
