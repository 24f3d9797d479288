package orchestrator

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/drawcompress/internal/filetype"
	"github.com/local/drawcompress/internal/imagecodec"
	"github.com/local/drawcompress/internal/jobs"
)

const (
	uploadPrefix   = "upload-"
	resultFilename = "extracted_drawing.pdf"
)

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/analyze", o.handleAnalyze)
	mux.HandleFunc("/compress", o.handleCompress)
	mux.HandleFunc("/status/", o.handleStatus)
	mux.HandleFunc("/download/", o.handleDownload)
	mux.HandleFunc("/ws/", o.handleWS)
}

type statusResp struct {
	Status   string  `json:"status"`
	Progress int     `json:"progress"`
	Error    *string `json:"error"`
}

func statusBody(s jobs.Snapshot) statusResp {
	resp := statusResp{Status: s.StatusLabel(), Progress: s.Progress}
	if s.Error != "" {
		e := s.Error
		resp.Error = &e
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (o *Orchestrator) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path, code, msg := o.saveUpload(w, r)
	if code != 0 {
		writeError(w, code, msg)
		return
	}
	defer os.Remove(path)

	a, err := o.Analyze(r.Context(), path)
	if err != nil {
		log.Error().Err(err).Msg("/analyze error")
		writeError(w, http.StatusInternalServerError, "Failed to analyze PDF")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (o *Orchestrator) handleCompress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path, code, msg := o.saveUpload(w, r)
	if code != 0 {
		writeError(w, code, msg)
		return
	}
	s, err := settingsFromForm(r)
	if err != nil {
		_ = os.Remove(path)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := o.Submit(r.Context(), path, s)
	if err != nil {
		_ = os.Remove(path)
		if jobs.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("/compress error")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/status/")
	snap, err := o.GetStatus(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found", "status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, statusBody(snap))
}

func (o *Orchestrator) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/download/")
	data, err := o.GetResult(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not ready or found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+resultFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// saveUpload stores the multipart "file" field in TempDir. A non-zero code
// means the request was rejected with msg.
func (o *Orchestrator) saveUpload(w http.ResponseWriter, r *http.Request) (path string, code int, msg string) {
	r.Body = http.MaxBytesReader(w, r.Body, o.cfg.MaxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return "", http.StatusRequestEntityTooLarge, "File too large"
		case errors.Is(err, http.ErrMissingFile):
			return "", http.StatusBadRequest, "No file part"
		default:
			return "", http.StatusBadRequest, "Invalid upload"
		}
	}
	defer f.Close()
	if !filetype.HasPDFName(hdr.Filename) {
		return "", http.StatusBadRequest, "Please upload a PDF file"
	}
	info, err := filetype.New().Detect(f)
	if err != nil || !info.Supported {
		return "", http.StatusBadRequest, "Please upload a PDF file"
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", http.StatusInternalServerError, err.Error()
	}

	if err := os.MkdirAll(o.cfg.TempDir, 0o755); err != nil {
		return "", http.StatusInternalServerError, err.Error()
	}
	tmp, err := os.CreateTemp(o.cfg.TempDir, uploadPrefix+"*.pdf")
	if err != nil {
		return "", http.StatusInternalServerError, err.Error()
	}
	if _, err := io.Copy(tmp, f); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", http.StatusInternalServerError, err.Error()
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", http.StatusInternalServerError, err.Error()
	}
	return tmp.Name(), 0, ""
}

// settingsFromForm reads the /compress form fields. Unparseable page entries
// are ignored; unparseable numbers are a validation error.
func settingsFromForm(r *http.Request) (jobs.Settings, error) {
	s := jobs.DefaultSettings()
	var err error
	if s.Quality, err = formInt(r, "quality", jobs.DefaultQuality); err != nil {
		return s, err
	}
	if s.MaxDimension, err = formInt(r, "max_dimension", jobs.DefaultMaxDimension); err != nil {
		return s, err
	}
	if m := strings.TrimSpace(r.FormValue("drawing_mode")); m != "" {
		s.Mode = imagecodec.Mode(m)
	}
	s.Pages = parsePageList(r.FormValue("extract_pages"))
	switch strings.ToLower(strings.TrimSpace(r.FormValue("extreme_compression"))) {
	case "1", "true", "yes", "on":
		s.Extreme = true
	}
	return s, nil
}

func formInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &jobs.ValidationError{Message: key + " must be an integer"}
	}
	return n, nil
}

func parsePageList(v string) []int {
	var pages []int
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" || strings.Trim(p, "0123456789") != "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		pages = append(pages, n)
	}
	return pages
}
