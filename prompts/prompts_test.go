package prompts

import (
	"strings"
	"testing"
)

func TestTemplatesEmbedded(t *testing.T) {
	for name, text := range map[string]string{
		"Base":     Base,
		"Direct":   Direct,
		"Group":    Group,
		"Roleplay": Roleplay,
	} {
		if text == "" {
			t.Errorf("template %s should not be empty", name)
		}
	}
}

func TestRenderBase(t *testing.T) {
	got := Render(BaseTemplate, struct{ ModelName string }{ModelName: "test-model"})
	if !strings.Contains(got, "test-model") {
		t.Errorf("rendered base should contain model name, got %q", got)
	}
}

func TestRenderGroup(t *testing.T) {
	got := Render(GroupTemplate, struct {
		GroupName string
		UserName  string
	}{GroupName: "dev-team", UserName: "bob"})
	if !strings.Contains(got, "dev-team") || !strings.Contains(got, "bob") {
		t.Errorf("rendered group template missing fields: %q", got)
	}
}
