package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"example.com/pdfdesk/internal/apperrors"
	"example.com/pdfdesk/internal/pdftest"
)

type upload struct {
	field string
	name  string
	data  []byte
}

func newTestServer(t *testing.T, mutate func(*Config)) *server {
	t.Helper()
	cfg := defaultConfig()
	cfg.OutputDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := newServer(cfg, log)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	s.fetch.backoff = 0
	return s
}

func multipartRequest(t *testing.T, target string, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(f.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, target, &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func serve(s *server, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, r)
	return rec
}

func parseHTML(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(rec.Body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

// redirectFlashes checks for a See Other to location and returns the
// flashes carried by the response cookie.
func redirectFlashes(t *testing.T, rec *httptest.ResponseRecorder, location string) []flash {
	t.Helper()
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, http.StatusSeeOther, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != location {
		t.Fatalf("Location = %q, want %q", got, location)
	}
	next := httptest.NewRequest(http.MethodGet, location, nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	return readFlashes(next)
}

func storedFiles(t *testing.T, s *server) []string {
	t.Helper()
	files, err := s.store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names
}

func TestIndexListsOutputs(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	name, err := s.store.Save("merged", pdftest.Pages("a", 1))
	if err != nil {
		t.Fatal(err)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rows := parseHTML(t, rec).Find("#outputs tr.fileRow")
	if rows.Length() != 1 {
		t.Fatalf("rows = %d, want 1", rows.Length())
	}
	if got, _ := rows.Attr("data-name"); got != name {
		t.Fatalf("row name = %q, want %q", got, name)
	}
}

func TestFormPagesRender(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	for path, field := range map[string]string{"/read": "file", "/merge": "files[]", "/split": "pdf_file"} {
		rec := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		if parseHTML(t, rec).Find(fmt.Sprintf(`input[name=%q]`, field)).Length() != 1 {
			t.Fatalf("%s: no %s input", path, field)
		}
	}
}

func TestReadUpload(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	r := multipartRequest(t, "/read", nil, upload{"file", "report.pdf", pdftest.Pages("a", 3)})

	rec := serve(s, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}
	doc := parseHTML(t, rec)
	if got := doc.Find("#filename").Text(); got != "report.pdf" {
		t.Fatalf("filename = %q", got)
	}
	if got := doc.Find("#num-pages").Text(); got != "3" {
		t.Fatalf("pages = %q, want 3", got)
	}
	if got := doc.Find("#num-words").Text(); got != "9" {
		t.Fatalf("words = %q, want 9", got)
	}
	if len(storedFiles(t, s)) != 1 {
		t.Fatalf("upload not stored for preview")
	}
}

func TestReadRejectsNonPDF(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	r := multipartRequest(t, "/read", nil, upload{"file", "notes.txt", []byte("hello")})

	msgs := redirectFlashes(t, serve(s, r), "/read")
	if len(msgs) != 1 || msgs[0].Category != "error" || msgs[0].Message != "Please upload a PDF file" {
		t.Fatalf("flashes = %+v", msgs)
	}
}

func TestReadWithoutFile(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	r := multipartRequest(t, "/read", map[string]string{"url": ""})

	msgs := redirectFlashes(t, serve(s, r), "/read")
	if len(msgs) != 1 || msgs[0].Message != "No file uploaded" {
		t.Fatalf("flashes = %+v", msgs)
	}
}

func TestReadCorruptUpload(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	r := multipartRequest(t, "/read", nil, upload{"file", "broken.pdf", []byte("%PDF-1.4 nothing here")})

	msgs := redirectFlashes(t, serve(s, r), "/read")
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].Message, "Error processing PDF: ") {
		t.Fatalf("flashes = %+v", msgs)
	}
	if len(storedFiles(t, s)) != 0 {
		t.Fatalf("corrupt upload was stored")
	}
}

func TestMergeUploads(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	r := multipartRequest(t, "/merge", nil,
		upload{"files[]", "first.pdf", pdftest.Pages("first", 2)},
		upload{"files[]", "second.pdf", pdftest.Pages("second", 3)},
	)

	rec := serve(s, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}
	doc := parseHTML(t, rec)
	if got := doc.Find("#num-pages").Text(); got != "5" {
		t.Fatalf("pages = %q, want 5", got)
	}
	if got := doc.Find("#num-words").Text(); got != "15" {
		t.Fatalf("words = %q, want 15", got)
	}
	var sources []string
	doc.Find("#merged-files li").Each(func(_ int, li *goquery.Selection) {
		sources = append(sources, li.Text())
	})
	if strings.Join(sources, ",") != "first.pdf,second.pdf" {
		t.Fatalf("sources = %v", sources)
	}
	href, ok := doc.Find("#download").Attr("href")
	if !ok || !strings.HasPrefix(href, "/download/merged_") {
		t.Fatalf("download link = %q", href)
	}
}

func TestMergeNeedsTwoFiles(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	r := multipartRequest(t, "/merge", nil, upload{"files[]", "only.pdf", pdftest.Pages("a", 1)})

	msgs := redirectFlashes(t, serve(s, r), "/merge")
	if len(msgs) != 1 || msgs[0].Message != "Please upload at least 2 PDF files" {
		t.Fatalf("flashes = %+v", msgs)
	}
}

func TestMergeRejectsNonPDF(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	r := multipartRequest(t, "/merge", nil,
		upload{"files[]", "a.pdf", pdftest.Pages("a", 1)},
		upload{"files[]", "b.docx", []byte("not a pdf")},
	)

	msgs := redirectFlashes(t, serve(s, r), "/merge")
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].Message, "Please upload PDF files only") {
		t.Fatalf("flashes = %+v", msgs)
	}
	if len(storedFiles(t, s)) != 0 {
		t.Fatalf("failed merge left output behind")
	}
}

func TestSplitRanges(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	r := multipartRequest(t, "/split", map[string]string{"page_ranges": "1-3, 7-9"},
		upload{"pdf_file", "book.pdf", pdftest.Pages("book", 9)})

	rec := serve(s, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}
	doc := parseHTML(t, rec)
	var counts []string
	doc.Find("#parts tr.part td.count").Each(func(_ int, td *goquery.Selection) {
		counts = append(counts, td.Text())
	})
	if strings.Join(counts, ",") != "3,3" {
		t.Fatalf("part page counts = %v", counts)
	}
	if doc.Find(".flash.warning").Length() != 0 {
		t.Fatalf("unexpected warnings")
	}
	names := storedFiles(t, s)
	if len(names) != 2 {
		t.Fatalf("stored = %v", names)
	}
	for _, n := range names {
		if !strings.HasPrefix(n, "split_1_book_") && !strings.HasPrefix(n, "split_2_book_") {
			t.Fatalf("unexpected part name %q", n)
		}
	}
}

func TestSplitModes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode   string
		spec   string
		counts string
	}{
		{"at", "2", "2,3"},
		{"pages", "5, 1, 3, 1", "1,1,1"},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, nil)
			r := multipartRequest(t, "/split", map[string]string{"mode": tt.mode, "page_ranges": tt.spec},
				upload{"pdf_file", "doc.pdf", pdftest.Pages("doc", 5)})

			rec := serve(s, r)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
			}
			var counts []string
			parseHTML(t, rec).Find("#parts tr.part td.count").Each(func(_ int, td *goquery.Selection) {
				counts = append(counts, td.Text())
			})
			if got := strings.Join(counts, ","); got != tt.counts {
				t.Fatalf("counts = %s, want %s", got, tt.counts)
			}
		})
	}
}

func TestSplitClampWarns(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(c *Config) { c.RangePolicy = "clamp" })
	r := multipartRequest(t, "/split", map[string]string{"page_ranges": "4-8"},
		upload{"pdf_file", "doc.pdf", pdftest.Pages("doc", 5)})

	rec := serve(s, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}
	doc := parseHTML(t, rec)
	if got := doc.Find("#parts tr.part td.count").Text(); got != "2" {
		t.Fatalf("clamped part pages = %q, want 2", got)
	}
	warn := doc.Find(".flash.warning").Text()
	if !strings.Contains(warn, "clamped") {
		t.Fatalf("warning = %q", warn)
	}
}

func TestSplitErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		fields map[string]string
		file   upload
		prefix string
	}{
		{"bad format", map[string]string{"page_ranges": "1-a"}, upload{"pdf_file", "d.pdf", pdftest.Pages("d", 3)}, "Invalid page range format"},
		{"out of bounds", map[string]string{"page_ranges": "2-9"}, upload{"pdf_file", "d.pdf", pdftest.Pages("d", 3)}, "Page selection out of range"},
		{"empty ranges", map[string]string{"page_ranges": "  "}, upload{"pdf_file", "d.pdf", pdftest.Pages("d", 3)}, "Please enter page ranges"},
		{"not a pdf", map[string]string{"page_ranges": "1"}, upload{"pdf_file", "d.txt", []byte("x")}, "Please upload a PDF file"},
		{"unknown mode", map[string]string{"page_ranges": "1", "mode": "odd"}, upload{"pdf_file", "d.pdf", pdftest.Pages("d", 3)}, "Invalid page range format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, nil)
			msgs := redirectFlashes(t, serve(s, multipartRequest(t, "/split", tt.fields, tt.file)), "/split")
			if len(msgs) != 1 || !strings.HasPrefix(msgs[0].Message, tt.prefix) {
				t.Fatalf("flashes = %+v, want prefix %q", msgs, tt.prefix)
			}
			if len(storedFiles(t, s)) != 0 {
				t.Fatalf("failed split left output behind")
			}
		})
	}
}

func TestFlashShownOnNextPage(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	first := serve(s, multipartRequest(t, "/merge", nil))

	next := httptest.NewRequest(http.MethodGet, "/merge", nil)
	for _, c := range first.Result().Cookies() {
		next.AddCookie(c)
	}
	rec := serve(s, next)
	if got := parseHTML(t, rec).Find(".flash.error").Text(); got != "No files uploaded" {
		t.Fatalf("flash = %q", got)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == flashCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("flash cookie not cleared")
	}
}

func TestViewStoredFile(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	name, err := s.store.Save("view_x", pdftest.Pages("x", 2))
	if err != nil {
		t.Fatal(err)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/view/"+name, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	doc := parseHTML(t, rec)
	if got := doc.Find("#num-pages").Text(); got != "2" {
		t.Fatalf("pages = %q", got)
	}
	if src, _ := doc.Find("iframe").Attr("src"); !strings.HasPrefix(src, "/files/"+name) {
		t.Fatalf("preview src = %q", src)
	}

	msgs := redirectFlashes(t, serve(s, httptest.NewRequest(http.MethodGet, "/view/missing.pdf", nil)), "/")
	if len(msgs) != 1 || msgs[0].Message != "File not found" {
		t.Fatalf("flashes = %+v", msgs)
	}
}

func TestDownloadAndInline(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	data := pdftest.Pages("dl", 1)
	name, err := s.store.Save("merged", data)
	if err != nil {
		t.Fatal(err)
	}

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/download/"+name, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="`+name+`"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Fatalf("download body differs")
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/files/"+name, nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Disposition") != "" {
		t.Fatalf("inline: status %d, disposition %q", rec.Code, rec.Header().Get("Content-Disposition"))
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestFileRejectsBadNames(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, nil)
	if err := os.WriteFile(s.cfg.OutputDir+"/notes.txt", []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		path string
		code int
	}{
		{"/files/notes.txt", http.StatusBadRequest},
		{"/download/..%5Cnotes.pdf", http.StatusBadRequest},
		{"/download/missing.pdf", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := serve(s, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.code {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.code)
		}
	}
}

func remotePDFs(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdftest.Pages("remote a", 2))
	})
	mux.HandleFunc("/files/b.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdftest.Pages("remote b", 3))
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><body><a href="/about">About</a><a href="files/b.pdf">Get it</a></body></html>`)
	})
	mux.HandleFunc("/gone.pdf", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, s *server, v any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/merge", bytes.NewReader(raw))
	r.Header.Set("Content-Type", "application/json")
	return serve(s, r)
}

func TestAPIMergeURLs(t *testing.T) {
	t.Parallel()
	ts := remotePDFs(t)
	s := newTestServer(t, nil)

	rec := postJSON(t, s, MergeRequest{
		Files: []string{ts.URL + "/a.pdf", ts.URL + "/gone.pdf", ts.URL + "/landing"},
		Out:   "my merge",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}
	var resp MergeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.OK != 1 || resp.Pages != 5 {
		t.Fatalf("response = %+v", resp)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0] != ts.URL+"/gone.pdf" {
		t.Fatalf("skipped = %v", resp.Skipped)
	}
	if !strings.HasPrefix(resp.Download, "/download/mymerge_") {
		t.Fatalf("download = %q", resp.Download)
	}
	dl := serve(s, httptest.NewRequest(http.MethodGet, resp.Download, nil))
	if dl.Code != http.StatusOK || !bytes.HasPrefix(dl.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("download status %d", dl.Code)
	}
}

func TestAPIMergeErrors(t *testing.T) {
	t.Parallel()
	ts := remotePDFs(t)
	s := newTestServer(t, nil)

	rec := postJSON(t, s, MergeRequest{Files: []string{ts.URL + "/a.pdf"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("one url: status = %d", rec.Code)
	}

	rec = postJSON(t, s, MergeRequest{Files: []string{ts.URL + "/a.pdf", ts.URL + "/gone.pdf"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("one valid url: status = %d", rec.Code)
	}
	var body struct {
		Error   string   `json:"error"`
		Skipped []string `json:"skipped"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "not enough valid PDFs to merge" || len(body.Skipped) != 1 {
		t.Fatalf("body = %+v", body)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/merge", strings.NewReader("{"))
	if rec := serve(s, r); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status = %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", apperrors.ErrInvalidRangeFormat), http.StatusBadRequest},
		{apperrors.ErrOutOfBounds, http.StatusBadRequest},
		{apperrors.ErrInsufficientInputs, http.StatusBadRequest},
		{apperrors.ErrNotAPDF, http.StatusBadRequest},
		{fmt.Errorf("a.pdf: %w", apperrors.ErrCorruptDocument), http.StatusUnprocessableEntity},
		{apperrors.ErrIO, http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
