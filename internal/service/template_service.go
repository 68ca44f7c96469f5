package service

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
)

var variableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

type templateStore interface {
	Create(ctx context.Context, t *domain.Template) (*domain.Template, error)
	Update(ctx context.Context, t *domain.Template) error
	SetDefault(ctx context.Context, campaignID, templateID int64) error
	GetByID(ctx context.Context, id int64) (*domain.Template, error)
	ListByCampaign(ctx context.Context, campaignID int64) ([]domain.Template, error)
}

type campaignGetter interface {
	GetByID(ctx context.Context, id int64) (*domain.Campaign, error)
}

type TemplateInput struct {
	Name      string
	Body      string
	Variables []string
	Status    domain.TemplateStatus
	IsDefault bool
}

type TemplateService struct {
	templates templateStore
	campaigns campaignGetter
}

func NewTemplateService(templates templateStore, campaigns campaignGetter) *TemplateService {
	return &TemplateService{templates: templates, campaigns: campaigns}
}

func (s *TemplateService) CreateTemplate(
	ctx context.Context,
	agentID, campaignID int64,
	in TemplateInput,
) (*domain.Template, error) {
	if err := requireOwnedCampaign(ctx, s.campaigns, agentID, campaignID); err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = domain.TemplateDraft
	}

	tmpl := &domain.Template{
		CampaignID: campaignID,
		Name:       strings.TrimSpace(in.Name),
		Body:       in.Body,
		Variables:  uniqueVariables(in.Variables),
		Status:     status,
		IsDefault:  in.IsDefault,
	}

	if err := validateTemplate(tmpl); err != nil {
		return nil, err
	}

	return s.templates.Create(ctx, tmpl)
}

func (s *TemplateService) UpdateTemplate(
	ctx context.Context,
	agentID, campaignID, templateID int64,
	patch domain.TemplatePatch,
) (*domain.Template, error) {
	tmpl, err := s.GetTemplate(ctx, agentID, campaignID, templateID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		tmpl.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Body != nil {
		tmpl.Body = *patch.Body
	}
	if patch.Variables != nil {
		tmpl.Variables = uniqueVariables(patch.Variables)
	}
	if patch.Status != nil {
		tmpl.Status = *patch.Status
	}

	if err := validateTemplate(tmpl); err != nil {
		return nil, err
	}

	if err := s.templates.Update(ctx, tmpl); err != nil {
		return nil, err
	}

	return s.templates.GetByID(ctx, templateID)
}

func (s *TemplateService) SetStatus(
	ctx context.Context,
	agentID, campaignID, templateID int64,
	status domain.TemplateStatus,
) (*domain.Template, error) {
	return s.UpdateTemplate(ctx, agentID, campaignID, templateID, domain.TemplatePatch{Status: &status})
}

// SetDefault makes templateID the campaign's only default template.
func (s *TemplateService) SetDefault(
	ctx context.Context,
	agentID, campaignID, templateID int64,
) (*domain.Template, error) {
	tmpl, err := s.GetTemplate(ctx, agentID, campaignID, templateID)
	if err != nil {
		return nil, err
	}

	if tmpl.Status == domain.TemplateArchived {
		return nil, domain.Validationf("archived template %d cannot be the default", templateID)
	}

	if err := s.templates.SetDefault(ctx, campaignID, templateID); err != nil {
		return nil, err
	}

	return s.templates.GetByID(ctx, templateID)
}

func (s *TemplateService) GetTemplate(
	ctx context.Context,
	agentID, campaignID, templateID int64,
) (*domain.Template, error) {
	if err := requireOwnedCampaign(ctx, s.campaigns, agentID, campaignID); err != nil {
		return nil, err
	}

	tmpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if tmpl.CampaignID != campaignID {
		return nil, domain.NotFoundf("template %d", templateID)
	}

	return tmpl, nil
}

func (s *TemplateService) ListTemplates(ctx context.Context, agentID, campaignID int64) ([]domain.Template, error) {
	if err := requireOwnedCampaign(ctx, s.campaigns, agentID, campaignID); err != nil {
		return nil, err
	}
	return s.templates.ListByCampaign(ctx, campaignID)
}

func validateTemplate(t *domain.Template) error {
	if t.Name == "" {
		return domain.Validationf("template name is required")
	}
	if len(t.Name) > 255 {
		return domain.Validationf("template name must be at most 255 characters")
	}
	if strings.TrimSpace(t.Body) == "" {
		return domain.Validationf("template body is required")
	}
	if !t.Status.Valid() {
		return domain.Validationf("unknown template status %q", t.Status)
	}

	for _, v := range t.Variables {
		if !variableNamePattern.MatchString(v) {
			return domain.Validationf("invalid variable name %q", v)
		}
	}

	var unknown []string
	for _, name := range Placeholders(t.Body) {
		if !slices.Contains(t.Variables, name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return domain.Validationf("undeclared placeholders: %s", strings.Join(unknown, ", "))
	}

	return nil
}

func uniqueVariables(in []string) domain.StringList {
	out := make(domain.StringList, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func requireOwnedCampaign(ctx context.Context, campaigns campaignGetter, agentID, campaignID int64) error {
	campaign, err := campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if campaign.AgentID != agentID {
		return domain.NotFoundf("campaign %d", campaignID)
	}
	return nil
}
