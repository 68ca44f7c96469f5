package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/onurcolak/outreach-campaign-service/internal/domain"
)

func seedTemplate(t *testing.T, store *memTemplates, campaignID int64, name string, status domain.TemplateStatus, isDefault bool) *domain.Template {
	t.Helper()
	tmpl, err := store.Create(context.Background(), &domain.Template{
		CampaignID: campaignID,
		Name:       name,
		Body:       "Hello from " + name,
		Status:     status,
		IsDefault:  isDefault,
	})
	if err != nil {
		t.Fatalf("failed to seed template: %v", err)
	}
	return tmpl
}

func ptrInt64(v int64) *int64 { return &v }

func TestPickTemplate(t *testing.T) {
	store := newMemTemplates()
	def := seedTemplate(t, store, 1, "default", domain.TemplateActive, true)
	assigned := seedTemplate(t, store, 1, "assigned", domain.TemplateActive, false)
	explicit := seedTemplate(t, store, 1, "explicit", domain.TemplateActive, false)
	draft := seedTemplate(t, store, 1, "draft", domain.TemplateDraft, false)
	foreign := seedTemplate(t, store, 2, "foreign", domain.TemplateActive, false)

	resolver := NewTemplateResolver(store)

	tests := []struct {
		name       string
		assignedID *int64
		explicitID *int64
		wantID     int64
	}{
		{name: "falls back to default", wantID: def.ID},
		{name: "prefers assigned", assignedID: ptrInt64(assigned.ID), wantID: assigned.ID},
		{name: "explicit overrides assigned", assignedID: ptrInt64(assigned.ID), explicitID: ptrInt64(explicit.ID), wantID: explicit.ID},
		{name: "explicit draft resolves to nothing", explicitID: ptrInt64(draft.ID)},
		{name: "assigned draft resolves to nothing", assignedID: ptrInt64(draft.ID)},
		{name: "template of another campaign is ignored", explicitID: ptrInt64(foreign.ID)},
		{name: "missing template resolves to nothing", explicitID: ptrInt64(999)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			campaign := &domain.Campaign{ID: 1, AssignedTemplateID: tt.assignedID}

			got, err := resolver.PickTemplate(context.Background(), campaign, tt.explicitID)
			if err != nil {
				t.Fatalf("PickTemplate returned error: %v", err)
			}

			if tt.wantID == 0 {
				if got != nil {
					t.Fatalf("expected no template, got %d", got.ID)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Fatalf("expected template %d, got %v", tt.wantID, got)
			}
		})
	}
}

func TestRender(t *testing.T) {
	lead := &domain.Lead{
		Name:    "Ada",
		Phone:   "+905551112233",
		Company: "Analytical Engines",
		CustomFields: domain.JSONMap{
			"product": "Loom",
			"seats":   float64(12),
			"name":    "shadowed",
			"email":   "ada@example.com",
		},
	}

	tests := []struct {
		name      string
		body      string
		variables []string
		want      string
	}{
		{
			name:      "own fields",
			body:      "Hi {{name}} from {{company}}",
			variables: []string{"name", "company"},
			want:      "Hi Ada from Analytical Engines",
		},
		{
			name:      "custom fields and inner whitespace",
			body:      "{{ product }} for {{seats}} seats",
			variables: []string{"product", "seats"},
			want:      "Loom for 12 seats",
		},
		{
			name:      "own field wins over custom field",
			body:      "{{name}}",
			variables: []string{"name"},
			want:      "Ada",
		},
		{
			name:      "blank own field falls back to custom field",
			body:      "Reach {{email}}",
			variables: []string{"email"},
			want:      "Reach ada@example.com",
		},
		{
			name:      "missing value renders empty",
			body:      "Dear {{title}} {{name}}",
			variables: []string{"title", "name"},
			want:      "Dear  Ada",
		},
		{
			name:      "undeclared placeholder is left as is",
			body:      "Hi {{name}}, {{agent}} here",
			variables: []string{"name"},
			want:      "Hi Ada, {{agent}} here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.body, tt.variables, lead); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPlaceholders_DistinctInOrder(t *testing.T) {
	got := Placeholders("{{b}} {{ a }} {{b}} {{c.d}} {{ not valid }}")
	want := []string{"b", "a", "c.d"}

	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
