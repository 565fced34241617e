package agent

import "testing"

func TestParseDirectiveBasic(t *testing.T) {
	d, found, err := ParseDirective(`Thought: need to look this up
Action: search({"query": "golang generics"})`)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !found {
		t.Fatal("Expected a directive")
	}
	if d.Name != "search" {
		t.Errorf("Expected name search, got %q", d.Name)
	}
	if d.Args["query"] != "golang generics" {
		t.Errorf("Unexpected args: %v", d.Args)
	}
}

func TestParseDirectiveNone(t *testing.T) {
	_, found, err := ParseDirective("The answer is 42.")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if found {
		t.Error("Expected no directive in a plain answer")
	}
}

func TestParseDirectiveEmptyArgs(t *testing.T) {
	d, found, err := ParseDirective("Action: list_notes()")
	if err != nil || !found {
		t.Fatalf("Expected directive, got found=%v err=%v", found, err)
	}
	if d.Name != "list_notes" || len(d.Args) != 0 {
		t.Errorf("Unexpected directive: %+v", d)
	}
}

func TestParseDirectiveBareStringWrapped(t *testing.T) {
	d, found, err := ParseDirective(`Action: search("rust ownership")`)
	if err != nil || !found {
		t.Fatalf("Expected wrapped directive, got found=%v err=%v", found, err)
	}
	if d.Args["query"] != "rust ownership" {
		t.Errorf("Expected bare string wrapped as query, got %v", d.Args)
	}
}

func TestParseDirectiveListWrapped(t *testing.T) {
	d, found, err := ParseDirective(`Action: search(["first", "second"])`)
	if err != nil || !found {
		t.Fatalf("Expected wrapped directive, got found=%v err=%v", found, err)
	}
	if d.Args["query"] != "first" {
		t.Errorf("Expected first list element as query, got %v", d.Args)
	}
}

func TestParseDirectiveMalformedArgs(t *testing.T) {
	d, found, err := ParseDirective(`Action: search({broken json)`)
	if !found {
		t.Fatal("Expected directive to be detected even with bad args")
	}
	if err == nil {
		t.Fatal("Expected parse error for malformed args")
	}
	if d.Name != "search" {
		t.Errorf("Expected tool name preserved, got %q", d.Name)
	}
}

func TestParseDirectiveFirstMatchWins(t *testing.T) {
	d, found, _ := ParseDirective("Action: first({})\nAction: second({})")
	if !found || d.Name != "first" {
		t.Errorf("Expected first directive to win, got %+v found=%v", d, found)
	}
}
