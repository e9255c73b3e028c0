package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/revlab-dev/revpanel/internal/diff"
	"github.com/revlab-dev/revpanel/internal/github"
	"github.com/revlab-dev/revpanel/internal/model"
	"github.com/revlab-dev/revpanel/internal/orchestrator"
)

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Review ---

type reviewRequest struct {
	Diff    string `json:"diff"`
	Context string `json:"context,omitempty"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Diff == "" {
		writeError(w, http.StatusBadRequest, "diff is required")
		return
	}

	doc, err := diff.Parse(req.Diff)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parsing diff: "+err.Error())
		return
	}

	result, err := s.orchestrate(nil).Review(r.Context(), doc, req.Context)
	if err != nil {
		writeReviewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Review PR ---

type reviewPRRequest struct {
	URL string `json:"url"`
}

type reviewPRResponse struct {
	PR     string              `json:"pr"`
	Title  string              `json:"title,omitempty"`
	Result *model.ReviewResult `json:"result"`
}

func (s *Server) handleReviewPR(w http.ResponseWriter, r *http.Request) {
	if s.gh == nil {
		writeError(w, http.StatusServiceUnavailable, "GitHub fetching is not configured")
		return
	}

	var req reviewPRRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	ref, err := github.ParsePRURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := s.gh.FetchDiff(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	doc, err := diff.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parsing PR diff: "+err.Error())
		return
	}

	// Metadata is best-effort context; the review proceeds without it.
	var reviewCtx, title string
	if meta, err := s.gh.FetchMetadata(r.Context(), ref); err == nil {
		reviewCtx = meta.Context()
		title = meta.Title
	}

	result, err := s.orchestrate(nil).Review(r.Context(), doc, reviewCtx)
	if err != nil {
		writeReviewError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewPRResponse{
		PR:     ref.String(),
		Title:  title,
		Result: result,
	})
}

// --- Parse ---

type parseRequest struct {
	Diff string `json:"diff"`
}

type parseResponse struct {
	Files []fileJSON    `json:"files"`
	Stats diffStatsJSON `json:"stats"`
}

type fileJSON struct {
	Name      string `json:"name"`
	OldPath   string `json:"old_path,omitempty"`
	IsNew     bool   `json:"is_new,omitempty"`
	IsDeleted bool   `json:"is_deleted,omitempty"`
	IsRenamed bool   `json:"is_renamed,omitempty"`
	IsBinary  bool   `json:"is_binary,omitempty"`
	Added     int    `json:"added"`
	Deleted   int    `json:"deleted"`
	Hunks     int    `json:"hunks"`
}

type diffStatsJSON struct {
	Files   int `json:"files"`
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Diff == "" {
		writeError(w, http.StatusBadRequest, "diff is required")
		return
	}

	doc, err := diff.Parse(req.Diff)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parsing diff: "+err.Error())
		return
	}

	nFiles, added, deleted := doc.Stats()
	resp := parseResponse{
		Stats: diffStatsJSON{Files: nFiles, Added: added, Deleted: deleted},
	}
	for _, f := range doc.Files {
		resp.Files = append(resp.Files, fileJSON{
			Name:      f.Name(),
			OldPath:   f.OldPath,
			IsNew:     f.IsNew,
			IsDeleted: f.IsDeleted,
			IsRenamed: f.IsRenamed,
			IsBinary:  f.IsBinary,
			Added:     f.Added,
			Deleted:   f.Deleted,
			Hunks:     len(f.Hunks),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeReviewError maps orchestration failures onto HTTP statuses.
func writeReviewError(w http.ResponseWriter, err error) {
	var tooLarge *orchestrator.DiffTooLargeError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("diff too large: %d chars exceeds limit of %d", tooLarge.Size, tooLarge.Max))
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
