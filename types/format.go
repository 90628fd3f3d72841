package types

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

func formatEntriesSection(title string, entries []ProfileEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString(title)
	buf.WriteString("\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Text", "Status", "Turn")
	for _, e := range entries {
		_ = table.Append(e.Text, string(e.Status), strconv.Itoa(e.SourceTurn))
	}
	_ = table.Render()
	return buf.String()
}

func formatObjectionsSection(objections []ObjectionEntry) string {
	if len(objections) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Objections:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Text", "Status", "Attempts")
	for _, o := range objections {
		_ = table.Append(o.Text, string(o.Status), strconv.Itoa(o.Attempts))
	}
	_ = table.Render()
	return buf.String()
}

// FormatQuestionLog renders the question log most recent first.
func FormatQuestionLog(log []QuestionEntry) string {
	if len(log) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Questions already asked:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Question", "Turn", "Status")
	for i := len(log) - 1; i >= 0; i-- {
		q := log[i]
		_ = table.Append(q.CoreText, strconv.Itoa(q.TurnAsked), string(q.Status))
	}
	_ = table.Render()
	return buf.String()
}

// FormatProfile renders what is known about the customer.
func FormatProfile(p CustomerProfile) string {
	var sections []string
	if s := formatEntriesSection("# Needs:", p.Needs); s != "" {
		sections = append(sections, s)
	}
	if s := formatEntriesSection("# Pain points:", p.PainPoints); s != "" {
		sections = append(sections, s)
	}
	if s := formatObjectionsSection(p.Objections); s != "" {
		sections = append(sections, s)
	}
	if len(p.Facts) > 0 {
		var buf strings.Builder
		buf.WriteString("# Known facts:\n")
		for _, k := range slices.Sorted(maps.Keys(p.Facts)) {
			buf.WriteString(fmt.Sprintf("- %s: %s\n", k, p.Facts[k]))
		}
		sections = append(sections, strings.TrimRight(buf.String(), "\n"))
	}
	if len(sections) == 0 {
		return "# Customer profile:\nnothing known yet"
	}
	return strings.Join(sections, "\n\n")
}

// FormatState renders the parts of the conversation state that every prompt
// needs as context.
func FormatState(state *ConversationState) string {
	sections := []string{
		fmt.Sprintf("# Current Date:\n%s", time.Now().Format(time.RFC3339)),
		fmt.Sprintf("# Current goal:\n%s", state.Goals.Top.Type),
	}
	if state.LastAgentAction != nil {
		action := state.LastAgentAction
		text := action.RenderedText
		if text == "" {
			text = "(not rendered)"
		}
		sections = append(sections, fmt.Sprintf("# Last agent action:\n%s\n> %s", action.Type, text))
	}
	sections = append(sections, FormatProfile(state.Profile))
	if state.ActiveProposal != nil {
		p := state.ActiveProposal
		sections = append(sections, fmt.Sprintf("# Active proposal:\n%s x%d at %.2f %s", p.ProductName, p.Quantity, p.Price, p.PriceInfo))
	}
	if state.ClosingStatus != "" && state.ClosingStatus != ClosingNotStarted {
		sections = append(sections, fmt.Sprintf("# Closing status:\n%s", state.ClosingStatus))
	}
	return strings.Join(sections, "\n\n")
}
