package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/bascanada/logmerge/internal/engine/entry"
	"github.com/bascanada/logmerge/internal/engine/filter"
	"github.com/bascanada/logmerge/internal/engine/pagination"
	"github.com/bascanada/logmerge/internal/engine/session"
)

// SetManifestDirRequest is the `setManifestDir` request.
type SetManifestDirRequest struct {
	Dir string `json:"dir"`
}

// SetFilterRequest is the `setFilter` request; a nil Filter clears the
// active filter.
type SetFilterRequest struct {
	Filter *filter.Filter `json:"filter"`
}

// ReadRangeRequest is the `readRangeByIdx` request, 1-based inclusive.
type ReadRangeRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SearchAllRequest is the `searchAll` request.
type SearchAllRequest struct {
	Q       string                   `json:"q"`
	Options pagination.SearchOptions `json:"options"`
}

// CancelRequest is the `cancel` request, keyed by the session key
// returned from a prior merge/start call.
type CancelRequest struct {
	Key string `json:"key"`
}

// MergeStartRequest starts a merge session against an input directory,
// writing chunks and a manifest to outDir.
type MergeStartRequest struct {
	Dir             string                 `json:"dir"`
	OutDir          string                 `json:"outDir"`
	BatchSize       int                    `json:"batchSize,omitempty"`
	ChunkMaxLines   int                    `json:"chunkMaxLines,omitempty"`
	JumpThresholdMs int64                  `json:"jumpThresholdMs,omitempty"`
	MinSuspectLines int                    `json:"minSuspectLines,omitempty"`
	Warmup          *session.WarmupOptions `json:"warmup,omitempty"`
}

// MergeStartResponse acknowledges a started session with the key future
// `cancel` calls must reference.
type MergeStartResponse struct {
	Key string `json:"key"`
}

// PageResponse is the `logs.page.response` shape.
type PageResponse struct {
	StartIdx int              `json:"startIdx"`
	EndIdx   int              `json:"endIdx"`
	Logs     []entry.LogEntry `json:"logs,omitempty"`
	Version  int              `json:"version"`
}

// StateResponse is the `logs.state` shape.
type StateResponse struct {
	Total       int    `json:"total"`
	Version     int    `json:"version"`
	Warm        bool   `json:"warm"`
	ManifestDir string `json:"manifestDir"`
}

// SearchResponse is the `search.results` shape.
type SearchResponse struct {
	Hits    []pagination.Hit `json:"hits"`
	Q       string           `json:"q"`
	Version int              `json:"version"`
}

// ProgressEvent is the `merge.progress` shape.
type ProgressEvent struct {
	Inc    int  `json:"inc"`
	Done   int  `json:"done"`
	Total  int  `json:"total"`
	Active bool `json:"active"`
}

// SavedEvent is the `merge.saved` shape.
type SavedEvent struct {
	OutDir       string `json:"outDir"`
	ManifestPath string `json:"manifestPath"`
	ChunkCount   int    `json:"chunkCount"`
	Merged       int    `json:"merged"`
	Total        int    `json:"total"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stateResponse() StateResponse {
	return StateResponse{
		Total:       s.pagination.GetFilteredTotal(),
		Version:     s.pagination.Version(),
		Warm:        s.pagination.IsWarmupActive(),
		ManifestDir: s.pagination.GetManifestDir(),
	}
}

func (s *Server) setManifestDirHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, ErrInternal, "", "POST required")
		return
	}
	var req SetManifestDirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "setManifestDir", "invalid request body")
		return
	}
	if err := validateSetManifestDirRequest(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "setManifestDir", err.Error())
		return
	}
	if err := s.pagination.SetManifestDir(req.Dir); err != nil {
		s.writeError(w, statusForKind(ErrManifestError), ErrManifestError, "setManifestDir", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.pagination.Reload(); err != nil {
		s.writeError(w, statusForKind(ErrManifestError), ErrManifestError, "reload", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) setFilterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, ErrInternal, "", "POST required")
		return
	}
	var req SetFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "setFilter", "invalid request body")
		return
	}
	if err := req.Filter.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "setFilter", err.Error())
		return
	}
	if err := s.pagination.SetFilter(r.Context(), req.Filter); err != nil {
		s.writeError(w, statusForKind(ErrIOError), ErrIOError, "setFilter", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) readRangeByIdxHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseReadRangeRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "readRangeByIdx", err.Error())
		return
	}
	if err := validateReadRangeRequest(req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "readRangeByIdx", err.Error())
		return
	}

	page, err := s.pagination.ReadRangeByIdx(r.Context(), req.Start, req.End)
	if err != nil {
		s.writeError(w, statusForKind(ErrIOError), ErrIOError, "readRangeByIdx", err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, PageResponse{
		StartIdx: page.StartIdx,
		EndIdx:   page.EndIdx,
		Logs:     page.Logs,
		Version:  page.Version,
	})
}

func parseReadRangeRequest(r *http.Request) (*ReadRangeRequest, error) {
	if r.Method == http.MethodGet {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		end, _ := strconv.Atoi(r.URL.Query().Get("end"))
		return &ReadRangeRequest{Start: start, End: end}, nil
	}
	var req ReadRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Server) searchAllHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchAllRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "searchAll", err.Error())
		return
	}
	if err := validateSearchAllRequest(req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "searchAll", err.Error())
		return
	}

	hits, version, err := s.pagination.SearchAll(r.Context(), req.Q, req.Options)
	if err != nil {
		s.writeError(w, statusForKind(ErrIOError), ErrIOError, "searchAll", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, SearchResponse{Hits: hits, Q: req.Q, Version: version})
}

func parseSearchAllRequest(r *http.Request) (*SearchAllRequest, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("q")
		top, _ := strconv.Atoi(r.URL.Query().Get("top"))
		return &SearchAllRequest{Q: q, Options: pagination.SearchOptions{Top: top}}, nil
	}
	var req SearchAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "cancel", "invalid request body")
		return
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.active == nil || s.activeKey != req.Key {
		s.writeError(w, http.StatusNotFound, ErrInternal, "cancel", "no active session with that key")
		return
	}
	s.active.Cancel()
	s.writeJSON(w, http.StatusOK, map[string]string{"key": req.Key})
}

func (s *Server) mergeStartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, ErrInternal, "", "POST required")
		return
	}
	var req MergeStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "merge.start", "invalid request body")
		return
	}
	if err := validateMergeStartRequest(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrConfigError, "merge.start", err.Error())
		return
	}

	s.sessionMu.Lock()
	if s.active != nil {
		s.sessionMu.Unlock()
		s.writeError(w, http.StatusConflict, ErrInternal, "merge.start", "a session is already active")
		return
	}
	key := uuid.New().String()

	orch := session.New(session.Config{
		Dir:             req.Dir,
		OutDir:          req.OutDir,
		BatchSize:       req.BatchSize,
		ChunkMaxLines:   req.ChunkMaxLines,
		Rules:           s.getRules(),
		JumpThresholdMs: req.JumpThresholdMs,
		MinSuspectLines: req.MinSuspectLines,
		Warmup:          req.Warmup,
		OnWarmupBatch: func(batch []entry.LogEntry) {
			s.pagination.SetWarmup(len(batch))
			s.eventBroker.Broadcast(Event{Type: EventLogsState, Data: s.stateResponse()})
		},
		OnProgress: func(inc, done, total int) {
			s.eventBroker.Broadcast(Event{Type: EventProgress, Data: ProgressEvent{Inc: inc, Done: done, Total: total, Active: true}})
		},
		OnSaved: func(info session.SavedInfo) {
			if err := s.pagination.SetManifestDir(info.OutDir); err != nil {
				s.logger.Error("failed to open manifest after merge", "err", err)
			}
			s.eventBroker.Broadcast(Event{Type: EventSaved, Data: SavedEvent{
				OutDir:       info.OutDir,
				ManifestPath: info.ManifestPath,
				ChunkCount:   info.ChunkCount,
				Merged:       info.Merged,
				Total:        info.Total,
			}})
			s.clearActiveSession(key)
		},
		OnError: func(err error) {
			s.eventBroker.Broadcast(Event{Type: EventError, Data: ErrorResponse{Code: ErrIOError, Message: err.Error(), InReplyTo: "merge.start"}})
			s.clearActiveSession(key)
		},
	})
	s.active = orch
	s.activeKey = key
	s.sessionMu.Unlock()

	go func() {
		// context.Background, not r.Context: the session outlives this
		// request and is canceled cooperatively via the cancel endpoint,
		// not by the request's own lifecycle.
		if _, err := orch.Start(context.Background()); err != nil {
			s.logger.Error("merge session ended with error", "err", err)
		}
		s.clearActiveSession(key)
	}()

	s.writeJSON(w, http.StatusAccepted, MergeStartResponse{Key: key})
}

func (s *Server) clearActiveSession(key string) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.activeKey == key {
		s.active = nil
		s.activeKey = ""
	}
}
