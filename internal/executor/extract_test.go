package executor

import (
	"reflect"
	"testing"
)

const guide = `# Study Guide

## Summary
Graphs model pairwise relations.

## Key Takeaways
- Vertices are connected by edges
* BFS explores level by level
2. DFS goes deep first

## Action Items
1. Implement BFS
2. Implement DFS
– Compare their complexity

## Additional Resources
- CLRS chapter 22
`

func TestExtractTakeawaysStopsAtNextHeading(t *testing.T) {
	got := ExtractTakeaways(guide)
	want := []string{"Vertices are connected by edges", "BFS explores level by level", "DFS goes deep first"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("takeaways = %q, want %q", got, want)
	}
}

func TestExtractActionItems(t *testing.T) {
	got := ExtractActionItems(guide)
	want := []string{"Implement BFS", "Implement DFS", "Compare their complexity"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("action items = %q, want %q", got, want)
	}
}

func TestExtractSectionFallbacks(t *testing.T) {
	text := "Intro line\n- first\n• second\n3. third\n12. twelfth\n21. too far\n"
	if got := ExtractTakeaways(text); !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Fatalf("takeaways fallback = %q", got)
	}
	if got := ExtractActionItems(text); !reflect.DeepEqual(got, []string{"third", "twelfth"}) {
		t.Fatalf("action items fallback = %q", got)
	}
	if got := ExtractTakeaways("no lists here"); len(got) != 0 {
		t.Fatalf("expected nothing, got %q", got)
	}
}

func TestExtractSectionBoundedToTen(t *testing.T) {
	text := "Key points\n"
	for i := 0; i < 15; i++ {
		text += "- item\n"
	}
	if got := ExtractTakeaways(text); len(got) != 10 {
		t.Fatalf("expected 10 items, got %d", len(got))
	}
}

func TestExtractChecklist(t *testing.T) {
	text := "Steps\n  Verify that tests pass  \nCompletion checklist: done\nunrelated\nverify a\nverify b\nverify c\nverify d"
	got := ExtractChecklist(text)
	if len(got) != 5 || got[0] != "Verify that tests pass" || got[1] != "Completion checklist: done" {
		t.Fatalf("checklist = %q", got)
	}
}

func TestExtractKeyConcepts(t *testing.T) {
	text := "Key concepts:\n- Recursion\n  • Base case \n-Stack frames\nplain\n- a\n- b\n- c"
	got := ExtractKeyConcepts(text)
	want := []string{"Recursion", "Base case", "Stack frames", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("key concepts = %q, want %q", got, want)
	}
}

func TestExtractorsReturnEmptyNotNil(t *testing.T) {
	text := "Plain prose with no lists at all."
	for name, got := range map[string][]string{
		"takeaways":    ExtractTakeaways(text),
		"action items": ExtractActionItems(text),
		"checklist":    ExtractChecklist(text),
		"key concepts": ExtractKeyConcepts(text),
	} {
		if got == nil || len(got) != 0 {
			t.Fatalf("%s: expected empty slice, got %#v", name, got)
		}
	}
}
