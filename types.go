package main

import "time"

// ======================= CONFIG =======================

const (
	defaultAddr      = ":8080"
	defaultOut       = "pdfdesk_output" // nơi lưu file merge / split đã tạo
	defaultRetention = time.Hour
	defaultMaxMB     = 32
	defaultFetchWait = 60 * time.Second
	defaultUA        = "pdfdesk/1.0 (+https://example.local)"
	maxFileScan      = 10000 // safety cap when listing outputs
)

// ======================= DATA TYPES ===================

// FileItem is a stored output listed on the index page.
type FileItem struct {
	Name string
	Size int64
	Mod  time.Time
}

// MergeRequest is the JSON body of POST /api/merge.
type MergeRequest struct {
	Files []string `json:"files"` // danh sách PDF URL
	Out   string   `json:"out"`   // tên file output (không có .pdf)
}

// MergeResponse answers POST /api/merge.
type MergeResponse struct {
	OK       int      `json:"ok"`
	Download string   `json:"download"`
	Skipped  []string `json:"skipped"`
	Pages    int      `json:"pages"`
	Words    int      `json:"words"`
}

// viewData backs the single document page (read, merge, view).
type viewData struct {
	Filename    string
	NumPages    int
	NumWords    int
	MergedFiles []string
	PDFURL      string
	Download    string
}

type splitFile struct {
	Filename string
	Label    string
	Pages    int
	Download string
}

type splitData struct {
	Original string
	Pages    int
	Files    []splitFile
	Warnings []string
}
