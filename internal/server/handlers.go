package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ironsheep/drawdiff/internal/compare"
	"github.com/ironsheep/drawdiff/internal/inspect"
	"github.com/ironsheep/drawdiff/internal/pipeline"
)

const (
	defaultWait   = 600 * time.Second
	defaultPad    = 24
	defaultZoom   = 2.0
	errToolFailed = -32000
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "drawdiff_compare").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Debug("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, errToolFailed, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Jobs
	case "drawdiff_compare":
		return s.handleCompare(ctx, args)
	case "drawdiff_status":
		return s.handleStatus(args)
	case "drawdiff_wait":
		return s.handleWait(ctx, args)
	case "drawdiff_cancel":
		return s.handleCancel(args)
	case "drawdiff_retry":
		return s.handleRetry(ctx, args)

	// Results
	case "drawdiff_page":
		return s.handlePage(args)
	case "drawdiff_region_crop":
		return s.handleRegionCrop(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	resp := &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
		},
	}
	if data != "" {
		resp.Error.Data = data
	}
	return resp
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// PageSummary is the per-page part of a job report.
type PageSummary struct {
	Page            int     `json:"page"`
	Name            string  `json:"name,omitempty"`
	State           string  `json:"state"`
	Kind            string  `json:"failure_kind,omitempty"`
	Error           string  `json:"error,omitempty"`
	AlignmentScore  float64 `json:"alignment_score,omitempty"`
	ChangesDetected bool    `json:"changes_detected,omitempty"`
	ChangeCount     int     `json:"change_count,omitempty"`
}

// JobSummary is the result of drawdiff_status and drawdiff_wait.
type JobSummary struct {
	JobID     string        `json:"job_id"`
	State     string        `json:"state"`
	RetryOf   string        `json:"retry_of,omitempty"`
	Error     string        `json:"error,omitempty"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Pending   int           `json:"pending"`
	Pages     []PageSummary `json:"pages"`
}

func pageSummary(u pipeline.PageResult) PageSummary {
	p := PageSummary{Page: u.Page, Name: u.Name, State: string(u.State), Kind: string(u.Kind)}
	if u.Err != nil {
		p.Error = u.Err.Error()
	}
	if r := u.Record; r != nil {
		p.AlignmentScore = r.AlignmentScore
		p.ChangesDetected = r.ChangesDetected
		p.ChangeCount = r.ChangeCount
	}
	return p
}

func summarize(snap pipeline.JobSnapshot) *JobSummary {
	c := snap.Counts()
	sum := &JobSummary{
		JobID:     string(snap.ID),
		State:     string(snap.State),
		RetryOf:   string(snap.RetryOf),
		Completed: c[pipeline.UnitCompleted],
		Failed:    c[pipeline.UnitFailed],
		Pending:   c[pipeline.UnitPending] + c[pipeline.UnitInProgress],
		Pages:     make([]PageSummary, 0, len(snap.Units)),
	}
	if snap.Err != nil {
		sum.Error = snap.Err.Error()
	}
	for _, u := range snap.Units {
		sum.Pages = append(sum.Pages, pageSummary(u))
	}
	return sum
}

// === Job Handlers ===

type compareArgs struct {
	OldDir         string   `json:"old_dir"`
	NewDir         string   `json:"new_dir"`
	OldPaths       []string `json:"old_paths"`
	NewPaths       []string `json:"new_paths"`
	Wait           bool     `json:"wait"`
	Notify         bool     `json:"notify"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

func (s *Server) pages(dir string, paths []string) ([]pipeline.PageInput, error) {
	switch {
	case dir != "" && len(paths) > 0:
		return nil, errors.New("give either a directory or a list of paths, not both")
	case dir != "":
		return pipeline.PagesFromDir(dir, s.dpi)
	default:
		return pipeline.PagesFromFiles(paths, s.dpi), nil
	}
}

func (s *Server) handleCompare(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a compareArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	oldPages, err := s.pages(a.OldDir, a.OldPaths)
	if err != nil {
		return nil, fmt.Errorf("old revision: %w", err)
	}
	newPages, err := s.pages(a.NewDir, a.NewPaths)
	if err != nil {
		return nil, fmt.Errorf("new revision: %w", err)
	}

	id, err := s.engine.Submit(ctx, oldPages, newPages)
	if err != nil {
		return nil, err
	}

	var delivered sync.WaitGroup
	if a.Notify {
		delivered.Add(len(newPages))
		if _, err := s.engine.Subscribe(id, func(r pipeline.PageResult) {
			defer delivered.Done()
			level := "info"
			if r.State == pipeline.UnitFailed {
				level = "warning"
			}
			data := pageSummary(r)
			s.notify(level, map[string]interface{}{"job_id": string(id), "page": data})
		}); err != nil {
			return nil, err
		}
	}

	if !a.Wait {
		snap, err := s.engine.State(id)
		if err != nil {
			return nil, err
		}
		return summarize(snap), nil
	}

	snap, err := s.wait(ctx, id, a.TimeoutSeconds)
	if err != nil {
		return nil, err
	}
	if a.Notify {
		delivered.Wait()
	}
	return summarize(snap), nil
}

type jobArgs struct {
	JobID          string `json:"job_id"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (s *Server) handleStatus(args json.RawMessage) (interface{}, error) {
	var a jobArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	snap, err := s.engine.State(pipeline.JobID(a.JobID))
	if err != nil {
		return nil, err
	}
	return summarize(snap), nil
}

func (s *Server) handleWait(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a jobArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	snap, err := s.wait(ctx, pipeline.JobID(a.JobID), a.TimeoutSeconds)
	if err != nil {
		return nil, err
	}
	return summarize(snap), nil
}

func (s *Server) wait(ctx context.Context, id pipeline.JobID, seconds int) (pipeline.JobSnapshot, error) {
	d := defaultWait
	if seconds > 0 {
		d = time.Duration(seconds) * time.Second
	}
	wctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	snap, err := s.engine.Wait(wctx, id)
	if errors.Is(err, context.DeadlineExceeded) {
		return snap, fmt.Errorf("job %s still %s after %s", id, snap.State, d)
	}
	return snap, err
}

func (s *Server) handleCancel(args json.RawMessage) (interface{}, error) {
	var a jobArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := s.engine.Cancel(pipeline.JobID(a.JobID)); err != nil {
		return nil, err
	}
	return map[string]interface{}{"job_id": a.JobID, "cancelled": true}, nil
}

type retryArgs struct {
	JobID string `json:"job_id"`
	Pages []int  `json:"pages"`
}

func (s *Server) handleRetry(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a retryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	id, err := s.engine.Retry(ctx, pipeline.JobID(a.JobID), a.Pages, nil)
	if err != nil {
		return nil, err
	}
	snap, err := s.engine.State(id)
	if err != nil {
		return nil, err
	}
	return summarize(snap), nil
}

// === Result Handlers ===

type pageArgs struct {
	JobID  string  `json:"job_id"`
	Page   int     `json:"page"`
	Region int     `json:"region"`
	Pad    *int    `json:"pad"`
	Scale  float64 `json:"scale"`
}

// record returns the diff record of a completed page.
func (s *Server) record(jobID string, page int) (*compare.DiffRecord, error) {
	snap, err := s.engine.State(pipeline.JobID(jobID))
	if err != nil {
		return nil, err
	}
	for _, u := range snap.Units {
		if u.Page != page {
			continue
		}
		if u.State != pipeline.UnitCompleted || u.Record == nil {
			return nil, fmt.Errorf("page %d of job %s is %s", page, jobID, u.State)
		}
		return u.Record, nil
	}
	return nil, fmt.Errorf("job %s has no page %d", jobID, page)
}

func (s *Server) handlePage(args json.RawMessage) (interface{}, error) {
	var a pageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.record(a.JobID, a.Page)
}

func (s *Server) handleRegionCrop(args json.RawMessage) (interface{}, error) {
	var a pageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	rec, err := s.record(a.JobID, a.Page)
	if err != nil {
		return nil, err
	}
	if rec.Overlay == nil {
		return nil, fmt.Errorf("page %d has no overlay", a.Page)
	}

	if a.Region == 0 {
		img := inspect.Annotate(rec.Overlay, rec.Regions, inspect.BoxColor)
		return inspect.Crop(img, img.Bounds(), a.Scale)
	}
	pad := defaultPad
	if a.Pad != nil {
		pad = *a.Pad
	}
	scale := a.Scale
	if scale == 0 {
		scale = defaultZoom
	}
	return inspect.CropRegion(rec.Overlay, rec.Regions, a.Region, pad, scale)
}
