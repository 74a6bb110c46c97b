package mcp

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SourcesURI is the resource listing the documentation sources.
const SourcesURI = "hybridrag://sources"

// SourcesOutput is the JSON body of the sources resource.
type SourcesOutput struct {
	Sources []SourceInfo `json:"sources"`
}

// SourceInfo describes one accepted source filter value.
type SourceInfo struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "sources",
			URI:         SourcesURI,
			Description: "Documentation sources accepted by the source filter of the retrieve tools",
			MIMEType:    "application/json",
		},
		s.makeSourcesHandler(),
	)
}

func (s *Server) makeSourcesHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		content, err := s.readSources()
		if err != nil {
			return nil, MapError(err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      SourcesURI,
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}

// readSources renders the sources resource, sorted by name.
func (s *Server) readSources() ([]byte, error) {
	counts := s.engine.Stats().Sources
	out := SourcesOutput{Sources: make([]SourceInfo, 0, len(counts))}
	for name, n := range counts {
		out.Sources = append(out.Sources, SourceInfo{Name: name, Chunks: n})
	}
	sort.Slice(out.Sources, func(i, j int) bool { return out.Sources[i].Name < out.Sources[j].Name })
	return json.MarshalIndent(out, "", "  ")
}
