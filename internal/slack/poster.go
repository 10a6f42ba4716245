package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostMissionSummary posts the aggregation summary to the channel. Ingestion
// failures go into a thread reply so the summary stays short. Returns the
// message timestamp (ts).
func (p *Poster) PostMissionSummary(ctx context.Context, m *mission.AggregatedMission, failures []string) (string, error) {
	text := formatMissionMessage(m, len(failures))

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("posted mission summary to slack", "ts", ts, "mission", m.Name)

	if len(failures) > 0 {
		if err := p.PostThread(ctx, ts, formatFailures(failures)); err != nil {
			p.logger.Warn("failed to post ingestion failures", "error", err)
		}
	}
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatMissionMessage(m *mission.AggregatedMission, failures int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Mission:* %s (%s)\n", m.Name, formatDuration(m.Duration))
	fmt.Fprintf(&sb, "*Events:* %d merged from %d raw, %d duplicates suppressed, %d inferred links\n\n",
		m.Metrics.MergedEvents, m.Metrics.RawEventCount, m.Metrics.DuplicatesSuppressed, m.Metrics.InferredLinks)

	if len(m.Sources) == 0 {
		sb.WriteString("_No recordings could be aggregated._")
	} else {
		fmt.Fprintf(&sb, "*Recordings: %d*\n", len(m.Sources))
		for i, s := range m.Sources {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, s.StatusLine())
		}
	}

	if failures > 0 {
		fmt.Fprintf(&sb, "\n:warning: %d file(s) could not be ingested, see thread", failures)
	}
	return sb.String()
}

func formatFailures(failures []string) string {
	var sb strings.Builder
	for _, f := range failures {
		fmt.Fprintf(&sb, "• %s\n", f)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func formatDuration(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}
