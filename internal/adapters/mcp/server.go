// Package mcpadapter exposes document verification as an MCP tool so agents
// can check credential files on the local filesystem.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
)

const (
	ServerName     = "credential-verifier"
	ToolVerify     = "verify_document"
	defaultVersion = "dev"
)

type Server struct {
	verifier ports.DocumentVerifier
	mcp      *server.MCPServer
}

func NewServer(verifier ports.DocumentVerifier, version string) *Server {
	if version == "" {
		version = defaultVersion
	}
	s := &Server{
		verifier: verifier,
		mcp:      server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false)),
	}
	s.mcp.AddTool(verifyTool(verifier.DocumentTypes()), s.handleVerify)
	return s
}

func verifyTool(types []domain.DocumentType) mcp.Tool {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return mcp.NewTool(ToolVerify,
		mcp.WithDescription("Verify a medical credential document (PDF, PNG or JPEG) and return the classification result."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path to the document file"),
		),
		mcp.WithString("document_type",
			mcp.Required(),
			mcp.Enum(names...),
			mcp.Description("Kind of credential the document should be"),
		),
		mcp.WithString("doctor_name",
			mcp.Description("Name of the doctor the document belongs to"),
		),
	)
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleVerify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path = strings.TrimSpace(path)
	if _, err := os.Stat(path); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("document not readable: %v", err)), nil
	}

	rawType, err := request.RequireString("document_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	docType, ok := domain.ParseDocumentType(rawType)
	if !ok || !s.verifier.Supports(docType) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported document_type %q", rawType)), nil
	}

	doctor := &domain.DoctorMetadata{Name: strings.TrimSpace(request.GetString("doctor_name", ""))}
	result := s.verifier.Verify(ctx, path, docType, doctor)

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal verification result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}
