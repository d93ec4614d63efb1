package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func jobIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Job identifier returned by drawdiff_compare or drawdiff_retry",
	}
}

func pageProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "1-based page number",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Jobs
		{
			Name: "drawdiff_compare",
			Description: "Compare two revisions of a drawing set page by page. Pages are given either as two directories " +
				"(paired by sorted file name) or as two equally long lists of image paths. Returns the job id; with " +
				"wait=true the call returns once every page has finished.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"old_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory holding the page images of the old revision",
					},
					"new_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory holding the page images of the new revision",
					},
					"old_paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Page images of the old revision, in page order",
					},
					"new_paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Page images of the new revision, in page order",
					},
					"wait": map[string]interface{}{
						"type":        "boolean",
						"description": "Block until the job is finished. Default false",
						"default":     false,
					},
					"notify": map[string]interface{}{
						"type":        "boolean",
						"description": "Send a notifications/message for every finished page. Default false",
						"default":     false,
					},
					"timeout_seconds": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum time to wait when wait=true. Default 600",
						"default":     600,
					},
				},
			},
		},
		{
			Name:        "drawdiff_status",
			Description: "Report the state of a job and the outcome of each page.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job_id": jobIDProperty(),
				},
				"required": []string{"job_id"},
			},
		},
		{
			Name:        "drawdiff_wait",
			Description: "Wait until a job is finished, then report it like drawdiff_status.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job_id": jobIDProperty(),
					"timeout_seconds": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum time to wait. Default 600",
						"default":     600,
					},
				},
				"required": []string{"job_id"},
			},
		},
		{
			Name:        "drawdiff_cancel",
			Description: "Stop dispatching the pending pages of a job. Pages already running finish normally.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job_id": jobIDProperty(),
				},
				"required": []string{"job_id"},
			},
		},
		{
			Name:        "drawdiff_retry",
			Description: "Submit a new job with failed pages of a finished job. Without pages every failed page is retried.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job_id": jobIDProperty(),
					"pages": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "integer"},
						"description": "Failed pages to retry",
					},
				},
				"required": []string{"job_id"},
			},
		},

		// Results
		{
			Name: "drawdiff_page",
			Description: "Return the diff record of a completed page: alignment score, change regions with their " +
				"bounding boxes and areas, and alignment metadata.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job_id": jobIDProperty(),
					"page":   pageProperty(),
				},
				"required": []string{"job_id", "page"},
			},
		},
		{
			Name: "drawdiff_region_crop",
			Description: "Return a close-up of a change region from a page overlay as base64-encoded PNG. Removed ink is red, " +
				"added ink blue, unchanged ink gray. Region 0 returns the whole page with every region boxed and numbered.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job_id": jobIDProperty(),
					"page":   pageProperty(),
					"region": map[string]interface{}{
						"type":        "integer",
						"description": "1-based region number as listed by drawdiff_page, or 0 for the whole page",
					},
					"pad": map[string]interface{}{
						"type":        "integer",
						"description": "Margin around the region in pixels. Default 24",
						"default":     24,
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Scale factor (e.g., 2.0 to double size). Default 2.0 for regions, 1.0 for the whole page",
					},
				},
				"required": []string{"job_id", "page", "region"},
			},
		},
	}
}
