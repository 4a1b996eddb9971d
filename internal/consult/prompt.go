package consult

import (
	"fmt"
	"strings"
)

const personaPrompt = `Analyze the request below and identify the expert best qualified to answer it
with scientific and technical rigor. Begin your reply with the expert's title followed by a period.
Then describe, concisely and without bias, the skills and qualifications that make this expert
suited to the question.

Question: %s
%s`

const answerPrompt = `As %s, a widely recognized authority in the field, give a complete and
well-structured answer to the question below. Ground the analysis in evidence, avoid bias, and
cite references where they apply. Present any code in markdown with explanatory comments.

Question: %s
%s`

const refinePrompt = `As %s, review the following answer to the question %q.
%s
Answer:
%s

Improve it with academic rigor: fill gaps, remove bias, and add non-fictional references with their
URLs at the end. Return the full revised answer in the structure of a scientific paper, keeping it
coherent and logically consistent.`

const noReferencesPrompt = `
No reference material was supplied, so make the answer detailed and accurate without relying on
external sources, and say which claims would need citations.`

const evaluatePrompt = `Act as a rational evaluator. Assess the quality and accuracy of the expert's
answer below.

Expert: %s
Question: %s
%s
Answer:
%s

Provide, with interpretation of each: a SWOT analysis, a BCG matrix, a risk matrix, an ANOVA,
Q-statistics and a Q-exponential assessment. Finish with an overall verdict.`

const debatePrompt = `You are taking part in a panel debate on the topic: %s
Round %d. The transcript so far:
%s
Give your position as %s in one or two paragraphs. Respond to earlier speakers where you disagree.`

func contextBlock(label, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return fmt.Sprintf("%s:\n%s\n", label, text)
}

// parsePersona splits a persona reply into title (first sentence) and
// description (the rest).
func parsePersona(reply string) (title, description string) {
	reply = strings.ReplaceAll(reply, "**", "")
	reply = strings.TrimLeft(strings.TrimSpace(reply), "#* ")
	cut := -1
	for i, r := range reply {
		if r == '\n' {
			cut = i
			break
		}
		if r == '.' && (i+1 == len(reply) || reply[i+1] == ' ' || reply[i+1] == '\n') {
			cut = i
			break
		}
	}
	if cut < 0 {
		return strings.TrimSpace(reply), ""
	}
	title = strings.TrimSpace(reply[:cut])
	description = strings.TrimSpace(strings.TrimLeft(reply[cut:], ".\n"))
	return title, description
}
