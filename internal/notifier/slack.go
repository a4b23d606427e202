package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/inboxsheet/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier posts appended records to a Slack channel via Incoming
// Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	gap        time.Duration
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts each record to Slack.
// gap is the pause between consecutive messages.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, gap time.Duration, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		gap:        gap,
		logger:     logger,
	}
}

// Notify sends each record as a separate Slack message using Block Kit.
// Returns an error only if ALL messages fail. Individual failures are logged.
func (s *SlackNotifier) Notify(records []model.JobRecord) error {
	if len(records) == 0 {
		return nil
	}

	failures := 0
	for i, r := range records {
		if i > 0 && s.gap > 0 {
			time.Sleep(s.gap)
		}

		if err := s.sendMessage(r); err != nil {
			s.logger.Error("slack notification failed", "company", r.Company(), "position", r.Position(), "error", err)
			failures++
		}
	}

	if failures == len(records) {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	s.logger.Info("slack notifications complete", "sent", len(records)-failures, "failed", failures)
	return nil
}

func (s *SlackNotifier) sendMessage(r model.JobRecord) error {
	body, err := json.Marshal(buildPayload(r))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(body)
	if err != nil {
		return err
	}
	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter)
		time.Sleep(retryAfter)
		if status, _, err = s.post(body); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
	}
	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}
	s.logger.Debug("slack message sent", "company", r.Company(), "position", r.Position())
	return nil
}

func (s *SlackNotifier) post(body []byte) (int, time.Duration, error) {
	resp, err := s.httpClient.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	if secs <= 0 {
		secs = 1
	}
	return resp.StatusCode, time.Duration(secs) * time.Second, nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style"`
}

// SendTestMessage sends a sample record to verify the integration works.
func SendTestMessage(n model.Notifier) error {
	return n.Notify([]model.JobRecord{{
		Date:        time.Now().Format("2006-01-02"),
		CompanyName: "InboxSheet Test",
		JobPosition: "Test Notification (integration verified)",
		Location:    "Everywhere",
		RoleType:    "Full-time",
		LinkOrEmail: "https://example.com/careers",
		CTC:         "n/a",
	}})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// applyURL turns the Link/Email cell into something a button can open.
func applyURL(link string) string {
	switch {
	case strings.HasPrefix(link, "http://"), strings.HasPrefix(link, "https://"):
		return link
	case strings.Contains(link, "@") && !strings.ContainsAny(link, " ,;"):
		return "mailto:" + link
	default:
		return ""
	}
}

func buildPayload(r model.JobRecord) slackPayload {
	company := orDash(r.Company())
	position := orDash(r.Position())

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: clip("💼 "+company+": "+position, 150)},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Company:*\n" + company},
				{Type: "mrkdwn", Text: "*Location:*\n" + orDash(model.CellText(r.Location))},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Role Type:*\n" + orDash(model.CellText(r.RoleType))},
				{Type: "mrkdwn", Text: "*CTC:*\n" + orDash(model.CellText(r.CTC))},
				{Type: "mrkdwn", Text: "*Deadline:*\n" + orDash(model.CellText(r.Deadline))},
				{Type: "mrkdwn", Text: "*Date:*\n" + orDash(model.CellText(r.Date))},
			},
		},
	}

	details := model.CellText(r.Details)
	if details == "" {
		details = model.CellText(r.JobDescription)
	}
	if details != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: clip(details, 500)},
		})
	}

	if url := applyURL(model.CellText(r.LinkOrEmail)); url != "" {
		blocks = append(blocks, slackBlock{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  slackText{Type: "plain_text", Text: "Apply"},
					URL:   url,
					Style: "primary",
				},
			},
		})
	}

	blocks = append(blocks, slackBlock{Type: "divider"})
	return slackPayload{Blocks: blocks}
}
