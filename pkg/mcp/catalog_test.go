package mcp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCatalog_StartsAtZero(t *testing.T) {
	c := &Catalog{}
	if v := c.Version(); v != 0 {
		t.Errorf("version = %d, want 0", v)
	}
	if tools := c.Tools(); len(tools) != 0 {
		t.Errorf("tools = %v, want empty", tools)
	}
}

func TestCatalog_ReplaceBumpsVersion(t *testing.T) {
	c := &Catalog{}

	c.replace([]Tool{{Name: "a", InputSchema: DefaultInputSchema()}})
	if v := c.Version(); v != 1 {
		t.Fatalf("version = %d, want 1", v)
	}

	// Same content still bumps: every successful reload counts.
	c.replace([]Tool{{Name: "a", InputSchema: DefaultInputSchema()}})
	if v := c.Version(); v != 2 {
		t.Fatalf("version = %d, want 2", v)
	}
}

func TestCatalog_VersionStableWithoutReload(t *testing.T) {
	c := &Catalog{}
	c.replace([]Tool{{Name: "a"}})

	v := c.Version()
	for i := 0; i < 10; i++ {
		if got := c.Version(); got != v {
			t.Fatalf("version moved from %d to %d with no reload", v, got)
		}
		c.Tools()
	}
}

func TestCatalog_ToolsReturnsCopy(t *testing.T) {
	c := &Catalog{}
	c.replace([]Tool{{Name: "a"}, {Name: "b"}})

	got := c.Tools()
	got[0].Name = "mutated"

	if diff := cmp.Diff([]Tool{{Name: "a"}, {Name: "b"}}, c.Tools()); diff != "" {
		t.Errorf("catalog was mutated through the returned slice (-want +got):\n%s", diff)
	}
}
