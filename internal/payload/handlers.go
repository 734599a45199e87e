package payload

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"

	"horizon/internal/api"
)

// streamProposal is the assistant's suggested research-stream configuration.
// A zero StreamID proposes a new stream; otherwise it amends an existing one.
type streamProposal struct {
	StreamID int64 `json:"stream_id"`
	api.StreamDraft
	Rationale string `json:"rationale"`
}

// StreamProposalHandler turns stream proposals into a diff card against the
// current configuration and applies them on accept.
type StreamProposalHandler struct {
	client       *api.Client
	colorEnabled bool
}

func NewStreamProposalHandler(client *api.Client, colorEnabled bool) *StreamProposalHandler {
	return &StreamProposalHandler{client: client, colorEnabled: colorEnabled}
}

func (h *StreamProposalHandler) Type() string { return "stream_proposal" }

func (h *StreamProposalHandler) Render(ctx context.Context, raw json.RawMessage) (Card, error) {
	var proposal streamProposal
	if err := Decode(raw, &proposal); err != nil {
		return Card{}, err
	}

	var b strings.Builder
	if proposal.Rationale != "" {
		b.WriteString(proposal.Rationale)
		b.WriteString("\n\n")
	}

	if proposal.StreamID == 0 {
		writeDraft(&b, proposal.StreamDraft)
		return Card{
			Title:   fmt.Sprintf("New research stream: %s", proposal.Name),
			Body:    strings.TrimRight(b.String(), "\n"),
			Confirm: "Create this stream?",
		}, nil
	}

	current, err := h.client.GetStream(ctx, proposal.StreamID)
	if err != nil {
		return Card{}, fmt.Errorf("fetch stream %d: %w", proposal.StreamID, err)
	}
	h.writeFieldDiff(&b, "name", current.Name, proposal.Name)
	h.writeFieldDiff(&b, "query", current.Query, proposal.Query)
	h.writeFieldDiff(&b, "sources", strings.Join(current.Sources, ", "), strings.Join(proposal.Sources, ", "))
	h.writeFieldDiff(&b, "frequency", current.Frequency, proposal.Frequency)

	return Card{
		Title:   fmt.Sprintf("Update research stream: %s", current.Name),
		Body:    strings.TrimRight(b.String(), "\n"),
		Confirm: "Apply these changes?",
	}, nil
}

func (h *StreamProposalHandler) Accept(ctx context.Context, raw json.RawMessage) (string, error) {
	var proposal streamProposal
	if err := Decode(raw, &proposal); err != nil {
		return "", err
	}
	if proposal.StreamID == 0 {
		stream, err := h.client.CreateStream(ctx, proposal.StreamDraft)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created stream %q (#%d)", stream.Name, stream.ID), nil
	}
	stream, err := h.client.UpdateStream(ctx, proposal.StreamID, proposal.StreamDraft)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Updated stream %q (#%d)", stream.Name, stream.ID), nil
}

func (h *StreamProposalHandler) Reject(_ context.Context, _ json.RawMessage) (string, error) {
	return "Proposal discarded", nil
}

func writeDraft(b *strings.Builder, draft api.StreamDraft) {
	fmt.Fprintf(b, "  name:      %s\n", draft.Name)
	fmt.Fprintf(b, "  query:     %s\n", draft.Query)
	fmt.Fprintf(b, "  sources:   %s\n", strings.Join(draft.Sources, ", "))
	fmt.Fprintf(b, "  frequency: %s\n", draft.Frequency)
}

// writeFieldDiff renders one changed field as a word-level diff. Unchanged
// fields are shown as-is so the card still reads as a full configuration.
func (h *StreamProposalHandler) writeFieldDiff(b *strings.Builder, field, before, after string) {
	if before == after {
		fmt.Fprintf(b, "  %s: %s\n", field, before)
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var line strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			line.WriteString(h.paint(color.FgRed, "[-"+d.Text+"]"))
		case diffmatchpatch.DiffInsert:
			line.WriteString(h.paint(color.FgGreen, "{+"+d.Text+"}"))
		default:
			line.WriteString(d.Text)
		}
	}
	fmt.Fprintf(b, "  %s: %s\n", field, line.String())
}

func (h *StreamProposalHandler) paint(attr color.Attribute, s string) string {
	if !h.colorEnabled {
		return s
	}
	return color.New(attr).Sprint(s)
}

// articleList is the payload behind search and digest results.
type articleList struct {
	Articles []article `json:"articles"`
}

type article struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	Source       string `json:"source"`
	AbstractHTML string `json:"abstract_html"`
}

// ArticleListHandler renders article results, flattening the HTML abstracts
// the ingestion pipeline stores.
type ArticleListHandler struct{}

func NewArticleListHandler() *ArticleListHandler { return &ArticleListHandler{} }

func (h *ArticleListHandler) Type() string { return "article_list" }

func (h *ArticleListHandler) Render(_ context.Context, raw json.RawMessage) (Card, error) {
	var list articleList
	if err := Decode(raw, &list); err != nil {
		return Card{}, err
	}

	var b strings.Builder
	for i, a := range list.Articles {
		fmt.Fprintf(&b, "%d. %s", i+1, a.Title)
		if a.Source != "" {
			fmt.Fprintf(&b, " (%s)", a.Source)
		}
		b.WriteByte('\n')
		if abstract := htmlToText(a.AbstractHTML); abstract != "" {
			for _, line := range strings.Split(abstract, "\n") {
				fmt.Fprintf(&b, "   %s\n", line)
			}
		}
		if a.URL != "" {
			fmt.Fprintf(&b, "   %s\n", a.URL)
		}
		b.WriteByte('\n')
	}

	title := fmt.Sprintf("%d articles", len(list.Articles))
	if len(list.Articles) == 1 {
		title = "1 article"
	}
	return Card{Title: title, Body: strings.TrimRight(b.String(), "\n")}, nil
}

// reportSchedule is the assistant's suggested report cadence for a stream.
type reportSchedule struct {
	StreamID int64  `json:"stream_id"`
	Cadence  string `json:"cadence"`
}

// ReportScheduleHandler confirms and applies report cadence changes.
type ReportScheduleHandler struct {
	client *api.Client
}

func NewReportScheduleHandler(client *api.Client) *ReportScheduleHandler {
	return &ReportScheduleHandler{client: client}
}

func (h *ReportScheduleHandler) Type() string { return "report_schedule" }

func (h *ReportScheduleHandler) Render(ctx context.Context, raw json.RawMessage) (Card, error) {
	var schedule reportSchedule
	if err := Decode(raw, &schedule); err != nil {
		return Card{}, err
	}
	stream, err := h.client.GetStream(ctx, schedule.StreamID)
	if err != nil {
		return Card{}, fmt.Errorf("fetch stream %d: %w", schedule.StreamID, err)
	}
	return Card{
		Title:   fmt.Sprintf("Report schedule: %s", stream.Name),
		Body:    fmt.Sprintf("Send reports %s.", schedule.Cadence),
		Confirm: "Apply this schedule?",
	}, nil
}

func (h *ReportScheduleHandler) Accept(ctx context.Context, raw json.RawMessage) (string, error) {
	var schedule reportSchedule
	if err := Decode(raw, &schedule); err != nil {
		return "", err
	}
	if err := h.client.ScheduleReport(ctx, schedule.StreamID, schedule.Cadence); err != nil {
		return "", err
	}
	return fmt.Sprintf("Reports for stream #%d now run %s", schedule.StreamID, schedule.Cadence), nil
}

func (h *ReportScheduleHandler) Reject(_ context.Context, _ json.RawMessage) (string, error) {
	return "Schedule unchanged", nil
}

// RegisterBuiltins wires the handlers this build ships with.
func RegisterBuiltins(r *Registry, client *api.Client, colorEnabled bool) error {
	handlers := []Handler{
		NewStreamProposalHandler(client, colorEnabled),
		NewArticleListHandler(),
		NewReportScheduleHandler(client),
	}
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}
