package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/revlab-dev/revpanel/internal/model"
)

func TestDefaultRegistryOrder(t *testing.T) {
	r := Default()
	defs := r.List()

	want := []string{"logic", "security", "performance", "style"}
	if len(defs) != len(want) {
		t.Fatalf("expected %d agents, got %d", len(want), len(defs))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("agent %d: got %q, want %q", i, defs[i].Name, name)
		}
		if defs[i].RolePrompt == "" {
			t.Errorf("agent %q has empty role prompt", name)
		}
	}
}

func TestListReturnsCopy(t *testing.T) {
	r := Default()
	defs := r.List()
	defs[0].Name = "mutated"

	if r.List()[0].Name != "logic" {
		t.Error("mutating List() result leaked into the registry")
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		Definition{Name: "logic"},
		Definition{Name: "logic"},
	)
	if err == nil {
		t.Fatal("expected error for duplicate agent names")
	}
}

func TestNewRegistryRejectsEmptyName(t *testing.T) {
	if _, err := NewRegistry(Definition{}); err == nil {
		t.Fatal("expected error for empty agent name")
	}
}

func TestEmptyRegistry(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 0 || len(r.List()) != 0 {
		t.Error("empty registry should list zero agents")
	}
}

const agentsYAML = `agents:
  - name: security
    concern: security
    default_severity: high
    role_prompt: "Look for vulnerabilities."
  - name: docs
    default_severity: low
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte(agentsYAML), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	defs := r.List()
	if len(defs) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(defs))
	}
	if defs[0].Name != "security" || defs[0].DefaultSeverity != model.SeverityHigh {
		t.Errorf("unexpected first agent: %+v", defs[0])
	}

	// Unset fields pick up defaults.
	if defs[1].Concern != Concern("docs") {
		t.Errorf("expected concern to default to name, got %q", defs[1].Concern)
	}
	if defs[1].RolePrompt == "" {
		t.Error("expected a generated role prompt")
	}
	if defs[1].Temperature == 0 {
		t.Error("expected a default temperature")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
