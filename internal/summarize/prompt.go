package summarize

import (
	"fmt"
	"strings"

	"github.com/dgallion1/paperdigest/internal/llm"
)

// Role is the part of a digest a summary fills.
type Role string

const (
	RoleSummary    Role = "summary"
	RoleMethod     Role = "method"
	RoleConclusion Role = "conclusion"
)

// Roles lists every role in report order.
var Roles = []Role{RoleSummary, RoleMethod, RoleConclusion}

var roleSections = map[Role][]string{
	RoleSummary:    {"Abstract", "Introduction"},
	RoleMethod:     {"Methods", "Methodology", "Materials and Methods", "Experiments"},
	RoleConclusion: {"Conclusion", "Conclusions", "Discussion", "Results"},
}

var roleInstructions = map[Role]string{
	RoleSummary: `Summarize the paper from the sections below. State the problem it addresses,
the main idea and the key contributions. Write one or two short paragraphs of plain prose.`,
	RoleMethod: `Describe the methodology from the sections below: the approach, data,
experimental setup and evaluation. Be concrete about what was done. Write one or two short paragraphs.`,
	RoleConclusion: `State the findings and conclusions from the sections below, including the
main results, limitations the authors acknowledge and future work. Write one or two short paragraphs.`,
}

const systemPrompt = `You are a careful scientific reader. You summarize research papers accurately,
without speculation, using only the text you are given. Respond with the summary only.`

// Title is the heading used for the role in reports.
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// Sections returns the section names that feed the role, in priority order.
func (r Role) Sections() []string {
	return roleSections[r]
}

func (r Role) Valid() bool {
	_, ok := roleSections[r]
	return ok
}

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// BuildPrompt composes the message list for summarizing text in role.
func BuildPrompt(role Role, title, text string) []llm.Message {
	var sb strings.Builder
	sb.WriteString(roleInstructions[role])
	sb.WriteString("\n\n---\n")
	if title != "" {
		sb.WriteString(fmt.Sprintf("Paper: %q\n", title))
	}
	sb.WriteString("---\n")
	sb.WriteString(text)
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}
