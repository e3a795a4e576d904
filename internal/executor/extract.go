package executor

import (
	"strconv"
	"strings"
)

const maxSectionItems = 10

// Section describes a headed list in generated text.
type Section struct {
	// Headings open the section when any occurs in a line (case-insensitive).
	Headings []string
	// Stops close the section once at least one item was collected.
	Stops []string
	// Fallback scans the whole text when the section yields nothing.
	Fallback func(lines []string) []string
}

// TakeawaysSection reads "Key Takeaways" style lists.
var TakeawaysSection = Section{
	Headings: []string{"key takeaways", "key takeaway", "key points"},
	Stops:    []string{"action items", "additional resources", "summary", "resources"},
	Fallback: func(lines []string) []string { return scanLines(lines, 5, plainBullet) },
}

// ActionItemsSection reads "Action Items" style lists.
var ActionItemsSection = Section{
	Headings: []string{"action items", "actions", "next steps"},
	Stops:    []string{"key takeaways", "additional resources", "summary"},
	Fallback: func(lines []string) []string { return scanLines(lines, 5, numberedItem) },
}

var bulletMarkers = []string{"- ", "• ", "* ", "– "}

// ExtractSection collects the bullet or numbered items under the first
// line mentioning one of s.Headings. A blank line or a stop heading ends
// the section once something was collected. The result is never nil.
func ExtractSection(text string, s Section) []string {
	lines := strings.Split(text, "\n")
	var (
		out       = []string{}
		inSection bool
	)
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		lower := strings.ToLower(line)
		if !inSection {
			if containsAny(lower, s.Headings) {
				inSection = true
			}
			continue
		}
		if (line == "" || containsAny(lower, s.Stops)) && len(out) > 0 {
			break
		}
		if item, ok := listItem(line); ok {
			out = append(out, item)
		}
	}
	if len(out) == 0 && s.Fallback != nil {
		if found := s.Fallback(lines); found != nil {
			out = found
		}
	}
	if len(out) > maxSectionItems {
		out = out[:maxSectionItems]
	}
	return out
}

// ExtractTakeaways returns the key takeaways of a study guide.
func ExtractTakeaways(text string) []string { return ExtractSection(text, TakeawaysSection) }

// ExtractActionItems returns the action items of a study guide.
func ExtractActionItems(text string) []string { return ExtractSection(text, ActionItemsSection) }

// ExtractChecklist returns up to five lines mentioning "checklist" or "verify".
func ExtractChecklist(text string) []string {
	out := []string{}
	for _, raw := range strings.Split(text, "\n") {
		lower := strings.ToLower(raw)
		if strings.Contains(lower, "checklist") || strings.Contains(lower, "verify") {
			out = append(out, strings.TrimSpace(raw))
			if len(out) == 5 {
				break
			}
		}
	}
	return out
}

// ExtractKeyConcepts returns up to five "-" or "•" lines with the marker removed.
func ExtractKeyConcepts(text string) []string {
	out := []string{}
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		for _, m := range []string{"-", "•"} {
			if strings.HasPrefix(line, m) {
				out = append(out, strings.TrimSpace(strings.TrimPrefix(line, m)))
				break
			}
		}
		if len(out) == 5 {
			break
		}
	}
	return out
}

func listItem(line string) (string, bool) {
	for _, m := range bulletMarkers {
		if strings.HasPrefix(line, m) {
			return strings.TrimSpace(strings.TrimPrefix(line, m)), true
		}
	}
	return numberedItem(line)
}

// numberedItem matches "N. text" for N in 1..20.
func numberedItem(line string) (string, bool) {
	dot := strings.Index(line, ". ")
	if dot <= 0 || dot > 2 {
		return "", false
	}
	n, err := strconv.Atoi(line[:dot])
	if err != nil || n < 1 || n > 20 || line[0] == '0' {
		return "", false
	}
	return strings.TrimSpace(line[dot+2:]), true
}

func plainBullet(line string) (string, bool) {
	for _, m := range bulletMarkers[:3] {
		if strings.HasPrefix(line, m) {
			return strings.TrimSpace(strings.TrimPrefix(line, m)), true
		}
	}
	return "", false
}

func scanLines(lines []string, limit int, match func(string) (string, bool)) []string {
	out := []string{}
	for _, raw := range lines {
		if item, ok := match(strings.TrimSpace(raw)); ok {
			out = append(out, item)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
