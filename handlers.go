package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"example.com/pdfdesk/internal/apperrors"
	"example.com/pdfdesk/internal/pages"
	"example.com/pdfdesk/internal/pdfops"
)

const formMemory = 8 << 20

func (s *server) handleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := s.store.List()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		render(w, r, http.StatusOK, "index", "PDF Desk", files)
	}
}

func (s *server) handleForm(name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, r, http.StatusOK, name, title, nil)
	}
}

// fail flashes msg and sends the browser back to the form at to.
func (s *server) fail(w http.ResponseWriter, r *http.Request, to, msg string) {
	addFlash(w, r, "error", msg)
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// parseUpload limits the body to the configured size and parses the form.
func (s *server) parseUpload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.maxUploadBytes())
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("upload exceeds %d MB", s.cfg.MaxUploadMB)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return errors.New("no file uploaded")
		}
		return fmt.Errorf("invalid form data: %v", err)
	}
	return nil
}

// formFile returns the first named file of a parsed multipart form.
func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	for _, fh := range r.MultipartForm.File[field] {
		if fh.Filename != "" {
			return fh
		}
	}
	return nil
}

func readUpload(fh *multipart.FileHeader) (pdfops.Input, error) {
	f, err := fh.Open()
	if err != nil {
		return pdfops.Input{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return pdfops.Input{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return pdfops.Input{Filename: fh.Filename, Data: data}, nil
}

// userMessage turns an error kind into the text shown to the user.
func userMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidRangeFormat):
		return `Invalid page range format. Please use format like "1-3, 4-6, 7" (` + err.Error() + `)`
	case errors.Is(err, apperrors.ErrOutOfBounds):
		return "Page selection out of range: " + err.Error()
	case errors.Is(err, apperrors.ErrInsufficientInputs):
		return "Please upload at least 2 PDF files"
	case errors.Is(err, apperrors.ErrNotAPDF):
		return "Please upload PDF files only (" + err.Error() + ")"
	default:
		return "Error processing PDF: " + err.Error()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidRangeFormat),
		errors.Is(err, apperrors.ErrOutOfBounds),
		errors.Is(err, apperrors.ErrInsufficientInputs),
		errors.Is(err, apperrors.ErrNotAPDF):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrCorruptDocument):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.parseUpload(w, r); err != nil {
			s.fail(w, r, "/read", err.Error())
			return
		}

		var in pdfops.Input
		if fh := formFile(r, "file"); fh != nil {
			if !pdfops.IsPDFName(fh.Filename) {
				s.fail(w, r, "/read", "Please upload a PDF file")
				return
			}
			var err error
			if in, err = readUpload(fh); err != nil {
				s.fail(w, r, "/read", err.Error())
				return
			}
		} else if u := strings.TrimSpace(r.FormValue("url")); u != "" {
			name, data, err := s.fetch.fetchPDF(r.Context(), u)
			if err != nil {
				s.log.WithError(err).WithField("url", u).Warn("[read] fetch failed")
				s.fail(w, r, "/read", "Could not download PDF: "+err.Error())
				return
			}
			in = pdfops.Input{Filename: name, Data: data}
		} else {
			s.fail(w, r, "/read", "No file uploaded")
			return
		}

		info, err := s.docs.Info(r.Context(), in.Data)
		if err != nil {
			s.fail(w, r, "/read", userMessage(err))
			return
		}
		stored, err := s.store.Save("view_"+baseName(in.Filename), in.Data)
		if err != nil {
			s.log.WithError(err).Error("[read] cannot store upload")
			s.fail(w, r, "/read", "Could not store the file")
			return
		}
		s.log.WithFields(logrus.Fields{"file": in.Filename, "pages": info.Pages, "words": info.Words}).Info("[read] done")
		render(w, r, http.StatusOK, "view", "Read PDF", viewData{
			Filename: in.Filename,
			NumPages: info.Pages,
			NumWords: info.Words,
			PDFURL:   "/files/" + stored,
			Download: "/download/" + stored,
		})
	}
}

func (s *server) handleMerge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.parseUpload(w, r); err != nil {
			s.fail(w, r, "/merge", err.Error())
			return
		}
		files := r.MultipartForm.File["files[]"]
		if len(files) == 0 {
			s.fail(w, r, "/merge", "No files uploaded")
			return
		}

		inputs := make([]pdfops.Input, 0, len(files))
		for _, fh := range files {
			in, err := readUpload(fh)
			if err != nil {
				s.fail(w, r, "/merge", err.Error())
				return
			}
			inputs = append(inputs, in)
		}

		res, err := s.docs.Merge(r.Context(), inputs)
		if err != nil {
			s.fail(w, r, "/merge", userMessage(err))
			return
		}
		stored, err := s.store.Save("merged_"+s.now().Format("20060102_150405"), res.Data)
		if err != nil {
			s.log.WithError(err).Error("[merge] cannot store result")
			s.fail(w, r, "/merge", "Could not store the merged file")
			return
		}
		render(w, r, http.StatusOK, "view", "Merged PDF", viewData{
			Filename:    stored,
			NumPages:    res.TotalPages,
			NumWords:    res.TotalWords,
			MergedFiles: res.Sources,
			PDFURL:      "/files/" + stored,
			Download:    "/download/" + stored,
		})
	}
}

// handleMergeURLs merges remote PDFs; URLs that cannot be fetched are
// skipped and reported back.
func (s *server) handleMergeURLs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in MergeRequest
		body := http.MaxBytesReader(w, r.Body, 1<<20)
		if err := json.NewDecoder(bufio.NewReader(body)).Decode(&in); err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad request", nil)
			return
		}
		if len(in.Files) < 2 {
			writeJSONError(w, http.StatusBadRequest, "select at least 2 files", nil)
			return
		}

		var (
			inputs  []pdfops.Input
			skipped = []string{}
		)
		for _, u := range in.Files {
			name, data, err := s.fetch.fetchPDF(r.Context(), u)
			if err != nil {
				s.log.WithError(err).WithField("url", u).Warn("[merge] skip")
				skipped = append(skipped, u)
				continue
			}
			inputs = append(inputs, pdfops.Input{Filename: name, Data: data})
		}
		if len(inputs) < 2 {
			writeJSONError(w, http.StatusBadRequest, "not enough valid PDFs to merge", skipped)
			return
		}

		res, err := s.docs.Merge(r.Context(), inputs)
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error(), skipped)
			return
		}
		outName := strings.TrimSpace(in.Out)
		if outName == "" {
			outName = "merged"
		}
		stored, err := s.store.Save(sanitizeNoExt(outName), res.Data)
		if err != nil {
			s.log.WithError(err).Error("[merge] cannot store result")
			writeJSONError(w, http.StatusInternalServerError, "cannot store merged file", skipped)
			return
		}
		writeJSON(w, http.StatusOK, MergeResponse{
			OK:       1,
			Download: "/download/" + stored,
			Skipped:  skipped,
			Pages:    res.TotalPages,
			Words:    res.TotalWords,
		})
	}
}

func (s *server) handleSplit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.parseUpload(w, r); err != nil {
			s.fail(w, r, "/split", err.Error())
			return
		}
		fh := formFile(r, "pdf_file")
		if fh == nil {
			s.fail(w, r, "/split", "No file selected")
			return
		}
		if !pdfops.IsPDFName(fh.Filename) {
			s.fail(w, r, "/split", "Please upload a PDF file")
			return
		}
		spec := strings.TrimSpace(r.FormValue("page_ranges"))
		if spec == "" {
			s.fail(w, r, "/split", "Please enter page ranges")
			return
		}
		sel, err := s.selector(r.FormValue("mode"), spec)
		if err != nil {
			s.fail(w, r, "/split", userMessage(err))
			return
		}
		in, err := readUpload(fh)
		if err != nil {
			s.fail(w, r, "/split", err.Error())
			return
		}

		res, err := s.docs.SplitBy(r.Context(), in.Data, sel)
		if err != nil {
			s.fail(w, r, "/split", userMessage(err))
			return
		}

		base := baseName(in.Filename)
		out := splitData{Original: in.Filename, Pages: res.SourcePages}
		for i, part := range res.Parts {
			stored, err := s.store.Save(fmt.Sprintf("split_%d_%s", i+1, base), part.Data)
			if err != nil {
				s.log.WithError(err).Error("[split] cannot store part")
				s.fail(w, r, "/split", "Could not store the split files")
				return
			}
			out.Files = append(out.Files, splitFile{
				Filename: stored,
				Label:    part.Label,
				Pages:    part.PageCount,
				Download: "/download/" + stored,
			})
		}
		for _, a := range res.Adjustments {
			out.Warnings = append(out.Warnings, a.String())
		}
		render(w, r, http.StatusOK, "split_result", "Split result", out)
	}
}

// selector maps the split form's mode to the ranges it selects.
func (s *server) selector(mode, spec string) (pdfops.Selector, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "ranges":
		// syntax errors surface before the document is opened
		if _, _, err := pages.Parse(spec, 0, s.policy); err != nil {
			return nil, err
		}
		return func(total int) ([]pages.Range, []pages.Adjustment, error) {
			return pages.Parse(spec, total, s.policy)
		}, nil
	case "at":
		n, err := strconv.Atoi(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a page number", apperrors.ErrInvalidRangeFormat, spec)
		}
		return func(total int) ([]pages.Range, []pages.Adjustment, error) {
			r, err := pages.SplitAt(n, total)
			return r, nil, err
		}, nil
	case "pages":
		if _, err := pages.Singles(spec, 0); err != nil {
			return nil, err
		}
		return func(total int) ([]pages.Range, []pages.Adjustment, error) {
			r, err := pages.Singles(spec, total)
			return r, nil, err
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown split mode %q", apperrors.ErrInvalidRangeFormat, mode)
}

func (s *server) handleView() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		data, err := s.store.Read(name)
		if err != nil {
			s.fail(w, r, "/", "File not found")
			return
		}
		info, err := s.docs.Info(r.Context(), data)
		if err != nil {
			s.fail(w, r, "/", userMessage(err))
			return
		}
		render(w, r, http.StatusOK, "view", "View PDF", viewData{
			Filename: name,
			NumPages: info.Pages,
			NumWords: info.Words,
			PDFURL:   "/files/" + name,
			Download: "/download/" + name,
		})
	}
}

// handleFile serves a stored output inline or as an attachment.
func (s *server) handleFile(attachment bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		p, err := s.store.Path(name)
		switch {
		case errors.Is(err, errBadName):
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		case errors.Is(err, os.ErrNotExist):
			http.NotFound(w, r)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		if attachment {
			w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		}
		http.ServeFile(w, r, p)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string, skipped []string) {
	body := map[string]any{"error": msg}
	if skipped != nil {
		body["skipped"] = skipped
	}
	writeJSON(w, status, body)
}
