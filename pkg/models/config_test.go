package models

import "testing"

func TestConfigPageLookup(t *testing.T) {
	cfg := &Config{Graph: Graph{Pages: map[string]Page{
		"intro": {ID: "intro"},
	}}}

	p, ok := cfg.Page("intro")
	if !ok || p.ID != "intro" {
		t.Fatalf("Page(intro) = %v, %v", p, ok)
	}

	if _, ok := cfg.Page("missing"); ok {
		t.Fatal("expected Page(missing) to report ok=false")
	}
}

func TestPageChatComponentFindsFirstChatType(t *testing.T) {
	p := &Page{Components: []Component{
		{ID: "c1", Type: "text"},
		{ID: "c2", Type: "chat"},
		{ID: "c3", Type: "chat"},
	}}

	c, ok := p.ChatComponent()
	if !ok || c.ID != "c2" {
		t.Fatalf("ChatComponent() = %v, %v, want c2", c, ok)
	}
}

func TestPageChatComponentAbsent(t *testing.T) {
	p := &Page{Components: []Component{{ID: "c1", Type: "text"}}}
	if _, ok := p.ChatComponent(); ok {
		t.Fatal("expected ok=false when no chat component is present")
	}
}

func TestComponentAgentsExtractsStringList(t *testing.T) {
	c := &Component{Props: map[string]any{
		"agents": []any{"negotiator", "mediator"},
	}}
	got := c.Agents()
	if len(got) != 2 || got[0] != "negotiator" || got[1] != "mediator" {
		t.Fatalf("Agents() = %v", got)
	}
}

func TestComponentAgentsMissingPropIsNil(t *testing.T) {
	c := &Component{Props: map[string]any{}}
	if got := c.Agents(); got != nil {
		t.Fatalf("Agents() = %v, want nil", got)
	}
}

func TestComponentAgentsIgnoresNonStringEntries(t *testing.T) {
	c := &Component{Props: map[string]any{
		"agents": []any{"negotiator", 42, true},
	}}
	got := c.Agents()
	if len(got) != 1 || got[0] != "negotiator" {
		t.Fatalf("Agents() = %v, want [negotiator]", got)
	}
}
