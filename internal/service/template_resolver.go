package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.\-]*)\s*\}\}`)

type templateFinder interface {
	FindActiveByID(ctx context.Context, id int64) (*domain.Template, error)
	FindDefault(ctx context.Context, campaignID int64) (*domain.Template, error)
}

// TemplateResolver picks the template a campaign sends with and renders it
// per lead.
type TemplateResolver struct {
	templates templateFinder
}

func NewTemplateResolver(templates templateFinder) *TemplateResolver {
	return &TemplateResolver{templates: templates}
}

// PickTemplate returns the explicit override when given, else the campaign's
// assigned template (falling back to its default). Only an ACTIVE template
// belonging to the campaign is returned; otherwise the result is nil.
func (r *TemplateResolver) PickTemplate(
	ctx context.Context,
	campaign *domain.Campaign,
	explicitID *int64,
) (*domain.Template, error) {
	var (
		tmpl *domain.Template
		err  error
	)

	switch {
	case explicitID != nil:
		tmpl, err = r.templates.FindActiveByID(ctx, *explicitID)
	case campaign.AssignedTemplateID != nil:
		tmpl, err = r.templates.FindActiveByID(ctx, *campaign.AssignedTemplateID)
	default:
		tmpl, err = r.templates.FindDefault(ctx, campaign.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template for campaign %d: %w", campaign.ID, err)
	}

	if tmpl == nil || tmpl.Status != domain.TemplateActive || tmpl.CampaignID != campaign.ID {
		return nil, nil
	}

	return tmpl, nil
}

// Render substitutes each declared variable with the lead's own field of that
// name, falling back to its custom fields. Missing values render empty.
// Placeholders that are not declared are left untouched.
func Render(body string, variables []string, lead *domain.Lead) string {
	declared := make(map[string]struct{}, len(variables))
	for _, v := range variables {
		declared[v] = struct{}{}
	}

	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if _, ok := declared[name]; !ok {
			return match
		}
		return leadValue(lead, name)
	})
}

func leadValue(lead *domain.Lead, name string) string {
	if v, ok := lead.Field(name); ok {
		return v
	}

	raw, ok := lead.CustomFields[name]
	if !ok || raw == nil {
		return ""
	}

	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Placeholders returns the distinct placeholder names of body in order of
// first appearance.
func Placeholders(body string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(body, -1)

	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}

	return names
}
