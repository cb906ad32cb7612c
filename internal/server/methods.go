package server

// Method describes a JSON-RPC method served by the host.
type Method struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	ParamsSchema map[string]interface{} `json:"paramsSchema"`
}

var emptyParams = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{},
}

// MethodDefinitions returns the methods listed by methods/list.
func MethodDefinitions() []Method {
	return []Method{
		// Pipeline
		{
			Name:         "pipeline/state",
			Description:  "Return the pipeline state: live, capturing, frozen_no_result or frozen_result, with location, detections, labels and the visible toast.",
			ParamsSchema: emptyParams,
		},
		{
			Name:         "pipeline/capture",
			Description:  "Freeze the current camera frame, stamp the location badge, submit it for detection and draw the results. Rejected unless the pipeline is live and the camera is ready.",
			ParamsSchema: emptyParams,
		},
		{
			Name:         "pipeline/reset",
			Description:  "Discard the frozen frame and its overlays and return to the live preview. A detection still in flight is ignored when it arrives.",
			ParamsSchema: emptyParams,
		},
		{
			Name:         "pipeline/share",
			Description:  "Share the latest detection of this device. Uses the native share sheet when available and falls back to copying the link to the clipboard.",
			ParamsSchema: emptyParams,
		},

		// Frame
		{
			Name:         "frame/get",
			Description:  "Return the frozen, annotated frame as base64-encoded PNG.",
			ParamsSchema: emptyParams,
		},
		{
			Name:        "frame/save",
			Description: "Write the frozen, annotated frame to a file. The extension selects PNG, JPEG or BMP.",
			ParamsSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Destination file ending in .png, .jpg, .jpeg or .bmp",
					},
					"quality": map[string]interface{}{
						"type":        "integer",
						"description": "JPEG quality 1-100 (default: 92)",
						"minimum":     1,
						"maximum":     100,
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleMethodsList returns the list of available methods
func (s *Server) handleMethodsList(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"methods": MethodDefinitions(),
		},
	}
}
