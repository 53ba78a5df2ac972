package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers extraction tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerExtractTool(srv)
	p.registerDetectTool(srv)
	p.registerTypesTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func toolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		var res mcp.CallToolResult
		res.SetError(fmt.Errorf("marshal: %w", err))
		return &res, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func toolError(err error) (*mcp.CallToolResult, error) {
	var res mcp.CallToolResult
	res.SetError(errors.New(err.Error()))
	return &res, nil
}

// --- extract_file ---

type extractFileReq struct {
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
	ForceOCR bool   `json:"force_ocr"`
	Language string `json:"language"`
	PSM      string `json:"psm"`
}

func (p *Pipeline) registerExtractTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "extract_file",
		Description: "Extract text content and metadata from a document file (pdf, image, html, docx, odt, rtf, epub, txt, md).",
		InputSchema: inputSchema(map[string]any{
			"path":      map[string]any{"type": "string", "description": "File path to extract"},
			"mime_type": map[string]any{"type": "string", "description": "Declared mime type (detected from the file when omitted)"},
			"force_ocr": map[string]any{"type": "boolean", "description": "OCR PDFs even when they carry a text layer"},
			"language":  map[string]any{"type": "string", "description": "OCR language, e.g. eng or deu+eng"},
			"psm":       map[string]any{"type": "string", "description": "Page segmentation mode, by name (AUTO, SINGLE_BLOCK, ...) or number"},
		}, []string{"path"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r extractFileReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		cfg := DefaultConfig()
		cfg.ForceOCR = r.ForceOCR
		if r.Language != "" {
			cfg.Language = r.Language
		}
		if r.PSM != "" {
			psm, err := ParsePageSegMode(r.PSM)
			if err != nil {
				return toolError(err)
			}
			cfg.PSM = psm
		}

		result, err := p.ExtractFile(ctx, r.Path, r.MimeType, cfg)
		if err != nil {
			return toolError(err)
		}
		return toolResult(result)
	})
}

// --- detect_type ---

type detectTypeReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "detect_type",
		Description: "Detect the mime type of a file from its extension and content.",
		InputSchema: inputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to inspect"},
		}, []string{"path"}),
	}

	srv.AddTool(tool, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r detectTypeReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}

		mt, err := p.DetectFile(r.Path)
		if err != nil {
			return toolError(err)
		}
		return toolResult(map[string]any{"mime_type": mt})
	})
}

// --- list_types ---

func (p *Pipeline) registerTypesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "list_types",
		Description: "List all supported mime types.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	srv.AddTool(tool, func(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(map[string]any{"mime_types": SupportedTypes()})
	})
}
