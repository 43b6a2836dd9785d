package ideas

import (
	"fmt"
	"strings"
	"sync/atomic"
)

var fallbackSeq atomic.Uint64

// FallbackCategories is the hand-written result shown when generation fails
// but the page should still have something to render.
func FallbackCategories() []Category {
	const name = "Process Automation"
	return []Category{{
		Name: name,
		Applications: []Application{{
			ID:          "auto-1",
			Title:       "Workflow Manager AI",
			Description: "Automates everyday tasks and business processes, streamlines the flow of work and removes repetitive chores.",
			Category:    name,
			Prompt: "You are an expert in business process automation. Help me optimize my workflow by: " +
				"1) identifying repetitive tasks, 2) designing automated workflows, 3) integrating with the tools I already use, " +
				"4) monitoring and tuning the processes, 5) reporting on how effective the automation is.",
			Examples: []string{
				"Automatic lead hand-off between sales teams",
				"Document approval workflow with notifications",
				"Automatic generation of periodic reports",
				"Reminder system for deadlines and due dates",
				"Integration between the CRM and the marketing platform",
			},
		}},
	}}
}

// FallbackApplication is appended to category when "generate more" fails.
func FallbackApplication(category string) Application {
	return Application{
		ID:          fmt.Sprintf("%s-fallback-%d", Slug(category), fallbackSeq.Add(1)),
		Title:       "Smart Process Optimizer",
		Description: "Optimizes the processes in this category by analysing workflows and automating the key tasks.",
		Category:    category,
		Prompt: fmt.Sprintf("While optimizing processes in %s, help me: 1) find the bottlenecks, "+
			"2) design more efficient workflows, 3) automate repetitive tasks, 4) measure and monitor the improvement.",
			strings.ToLower(category)),
		Examples: []string{
			"Mapping current processes with time tracking",
			"Spotting automation opportunities",
			"Redesigning workflows to remove bottlenecks",
			"Implementation plan with milestone tracking",
			"Performance measurement with KPI monitoring",
		},
		Generated: true,
	}
}
