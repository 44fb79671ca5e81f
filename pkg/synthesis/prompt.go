package synthesis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/dukex/agendaflow/pkg/models"
)

const systemPrompt = `You are a planning assistant. You build a realistic agenda for one day.
Answer with a single JSON object matching the provided schema and nothing else.
Times are 24h wall clock "HH:MM" on the target date. Never schedule anything that
overlaps a fixed commitment, and stay inside the available window.
Categories: work, health, personal, social, admin, other.
Give every item a short rationale. Tag items that advance a pursuit with its pursuit_id.`

const reformatInstruction = `Your previous output was invalid JSON for the requested schema (%s).
Reformat it as a single JSON object that matches the schema exactly, with no prose and no code fences.`

var promptTemplate = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"clock": func(r models.TimeRange) string {
		return r.Start.Format("15:04") + "-" + r.End.Format("15:04")
	},
	"hours": func(minutes int) string {
		return fmt.Sprintf("%.1fh", float64(minutes)/60)
	},
	"join": strings.Join,
}).Parse(`Target date: {{.TargetDate}}
Available window: {{clock .Window}}
{{- if .Commitments}}

Fixed commitments (must not be double-booked):
{{- range .Commitments}}
- {{clock .}} {{.Title}}
{{- end}}
{{- else}}

The calendar is free.
{{- end}}
{{- if .Pursuits}}

Active pursuits:
{{- range .Pursuits}}
- [{{.ID}}] {{.Name}} ({{.Category}}): weekly target {{printf "%.1f" .WeeklyTargetHours}}h, logged {{printf "%.1f" .LoggedHours}}h, remaining {{hours .RemainingMinutes}}
{{- end}}
{{- end}}
{{- if .Wellness}}

Wellness: slept {{printf "%.1f" .Wellness.SleepHours}}h (score {{.Wellness.SleepScore}}), recovery {{.Wellness.RecoveryScore}}, activity {{.Wellness.ActivityScore}}.
{{.Bias}}
{{- end}}
{{- if .Financial}}

Finances: spent {{printf "%.2f" .Financial.SpentThisWeek}} of a {{printf "%.2f" .Financial.WeeklyBudget}} {{.Financial.Currency}} weekly budget.
{{- if .Financial.UpcomingBills}} Upcoming bills: {{join .Financial.UpcomingBills ", "}}.{{end}}
{{- end}}
{{- if .Input}}

Additional input from the user:
{{.Input}}
{{- end}}
{{- if .Prior}}

Your previous proposal was:
{{.Prior}}

The user asked for this correction: {{.Feedback}}
Produce a revised plan that applies the correction and keeps what the user did not object to.
{{- end}}
`))

type promptData struct {
	TargetDate  string
	Window      models.TimeRange
	Commitments []models.TimeRange
	Pursuits    []models.Pursuit
	Wellness    *models.WellnessContext
	Bias        string
	Financial   *models.FinancialContext
	Input       string
	Prior       string
	Feedback    string
}

// wellnessBias turns wellness signals into a scheduling instruction.
func wellnessBias(wellness *models.WellnessContext) string {
	switch {
	case wellness.RecoveryScore > 0 && wellness.RecoveryScore < 34,
		wellness.SleepHours > 0 && wellness.SleepHours < 6:
		return "Recovery is low: prefer a lighter day, fewer demanding blocks and more breaks."
	case wellness.RecoveryScore >= 67:
		return "Recovery is high: the user can handle a fuller day and demanding training."
	default:
		return "Recovery is moderate: keep a balanced load."
	}
}

func buildPrompt(pc *models.PlanContext, prior *models.AgendaProposal, feedback string) (string, error) {
	data := promptData{
		TargetDate:  pc.TargetDate,
		Window:      pc.Window,
		Commitments: sortedCommitments(pc.Calendar.Commitments()),
		Pursuits:    pc.Pursuits,
		Wellness:    pc.Wellness,
		Financial:   pc.Financial,
		Feedback:    feedback,
	}

	if pc.Wellness != nil {
		data.Bias = wellnessBias(pc.Wellness)
	}

	if len(pc.InputData) > 0 {
		input, err := json.Marshal(pc.InputData)
		if err != nil {
			return "", fmt.Errorf("failed to marshal input data: %w", err)
		}

		data.Input = string(input)
	}

	if prior != nil {
		data.Prior = describeProposal(prior)

		if strings.TrimSpace(feedback) == "" {
			data.Feedback = "no specific feedback, try a different arrangement"
		}
	}

	var buf strings.Builder

	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}

	return buf.String(), nil
}

func sortedCommitments(commitments []models.TimeRange) []models.TimeRange {
	sort.SliceStable(commitments, func(i, j int) bool {
		return commitments[i].Start.Before(commitments[j].Start)
	})

	return commitments
}

// describeProposal renders a proposal in the same JSON shape the model answers with.
func describeProposal(proposal *models.AgendaProposal) string {
	raw := rawProposal{Summary: proposal.Summary, Items: make([]rawItem, 0, len(proposal.Items))}

	for _, item := range proposal.Items {
		raw.Items = append(raw.Items, rawItem{
			Category:  string(item.Category),
			Title:     item.Title,
			Start:     item.Start.Format("15:04"),
			End:       item.End.Format("15:04"),
			Location:  item.Location,
			Notes:     item.Notes,
			Rationale: item.Rationale,
			PursuitID: item.PursuitID,
		})
	}

	out, err := json.Marshal(raw)
	if err != nil {
		return proposal.Summary
	}

	return string(out)
}
