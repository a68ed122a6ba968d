package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/model"
)

// Resource URIs.
const (
	ResourceModelInfo        = "maternal-guard://model/info"
	ResourceCompatibility    = "maternal-guard://blood-groups/compatibility"
	ResourceFeedbackSummary  = "maternal-guard://feedback/summary"
	resourceAssessmentPrefix = "maternal-guard://assessments/"
	ResourceAssessment       = resourceAssessmentPrefix + "{id}"
)

type resourceHandlers struct {
	*toolHandlers
	modelInfo model.Info
}

func registerResources(s *mcp.Server, h *resourceHandlers) {
	s.AddResource(&mcp.Resource{
		URI:         ResourceModelInfo,
		Name:        "model-info",
		Description: "Name, version, feature order and class labels of the loaded risk model",
		MIMEType:    "application/json",
	}, h.readModelInfo)

	s.AddResource(&mcp.Resource{
		URI:         ResourceCompatibility,
		Name:        "blood-group-compatibility",
		Description: "Donor groups each recipient blood group can receive",
		MIMEType:    "application/json",
	}, h.readCompatibility)

	s.AddResource(&mcp.Resource{
		URI:         ResourceFeedbackSummary,
		Name:        "feedback-summary",
		Description: "Clinician agreement with recent risk assessments",
		MIMEType:    "application/json",
	}, h.readFeedbackSummary)

	s.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: ResourceAssessment,
		Name:        "assessment",
		Description: "A recent risk assessment by ID. Assessments expire with the cache TTL.",
		MIMEType:    "application/json",
	}, h.readAssessment)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (h *resourceHandlers) readModelInfo(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, h.modelInfo)
}

func (h *resourceHandlers) readCompatibility(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	table, err := h.service.CompatibilityTable()
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, table)
}

func (h *resourceHandlers) readFeedbackSummary(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	summary, err := h.service.FeedbackSummary(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, summary)
}

func (h *resourceHandlers) readAssessment(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, resourceAssessmentPrefix)
	if id == "" || id == uri {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	a, err := h.service.GetAssessment(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, a)
}
