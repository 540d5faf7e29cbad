package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/lvlup-dev/ascent/pkg/config"
	"github.com/lvlup-dev/ascent/pkg/models"
)

const (
	postTimeout        = 10 * time.Second
	maxBlockTextLength = 2900
)

var riskEmoji = map[models.Risk]string{
	models.RiskLow:    ":large_blue_circle:",
	models.RiskMedium: ":large_yellow_circle:",
	models.RiskHigh:   ":red_circle:",
}

// Notifier posts proposal lifecycle messages to Slack. Decision and
// execution messages thread under the original announcement. Nil-safe: all
// methods are no-ops when the notifier is nil, and delivery is fail-open.
type Notifier struct {
	api     *goslack.Client
	channel string
	logger  *slog.Logger

	mu      sync.Mutex
	threads map[string]string // proposal ID -> thread ts
}

// NewNotifier builds a notifier from config. Returns nil when notifications
// are disabled, the channel is unset, or the token env var is empty; a nil
// notifier is safe to use.
func NewNotifier(cfg config.NotifierConfig) *Notifier {
	if !cfg.Enabled || cfg.Channel == "" {
		return nil
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		slog.Default().Warn("Slack notifications enabled but token env var is empty", "env", cfg.TokenEnv)
		return nil
	}
	return newNotifier(goslack.New(token), cfg.Channel)
}

// NewNotifierWithAPIURL targets a custom Slack API URL. Useful for testing
// with a mock server.
func NewNotifierWithAPIURL(token, channel, apiURL string) *Notifier {
	return newNotifier(goslack.New(token, goslack.OptionAPIURL(apiURL)), channel)
}

func newNotifier(api *goslack.Client, channel string) *Notifier {
	return &Notifier{
		api:     api,
		channel: channel,
		logger:  slog.Default().With("component", "notifier"),
		threads: make(map[string]string),
	}
}

// ProposalCreated announces a new pending proposal and remembers the message
// timestamp so later lifecycle messages thread under it.
func (n *Notifier) ProposalCreated(ctx context.Context, p *models.Proposal) {
	if n == nil {
		return
	}
	ts, err := n.post(ctx, buildCreatedMessage(p), "")
	if err != nil {
		n.logger.Error("Failed to send proposal notification", "proposal_id", p.ID, "error", err)
		return
	}
	n.mu.Lock()
	n.threads[p.ID] = ts
	n.mu.Unlock()
}

// ProposalDecided posts the approve/reject outcome as a threaded reply.
func (n *Notifier) ProposalDecided(ctx context.Context, p *models.Proposal, reason string) {
	if n == nil {
		return
	}
	if _, err := n.post(ctx, buildDecidedMessage(p, reason), n.threadFor(p.ID)); err != nil {
		n.logger.Error("Failed to send decision notification", "proposal_id", p.ID, "error", err)
	}
	if p.Status == models.ProposalRejected {
		n.forget(p.ID)
	}
}

// ProposalExecuted posts the execution outcome and drops the thread entry;
// executed and failed are terminal states.
func (n *Notifier) ProposalExecuted(ctx context.Context, p *models.Proposal) {
	if n == nil {
		return
	}
	if _, err := n.post(ctx, buildExecutedMessage(p), n.threadFor(p.ID)); err != nil {
		n.logger.Error("Failed to send execution notification", "proposal_id", p.ID, "error", err)
	}
	n.forget(p.ID)
}

func (n *Notifier) post(ctx context.Context, blocks []goslack.Block, threadTS string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(blocks...),
	}
	if threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}
	_, ts, err := n.api.PostMessageContext(ctx, n.channel, opts...)
	if err != nil {
		return "", fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return ts, nil
}

func (n *Notifier) threadFor(id string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.threads[id]
}

func (n *Notifier) forget(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.threads, id)
}

func buildCreatedMessage(p *models.Proposal) []goslack.Block {
	emoji := riskEmoji[p.Risk]
	if emoji == "" {
		emoji = ":white_circle:"
	}
	header := fmt.Sprintf("%s *Healing proposal awaiting approval* (%s risk)", emoji, p.Risk)

	body := fmt.Sprintf("*%s*\n%s", p.Title, p.Description)
	names := make([]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		names = append(names, "`"+a.Name+"`")
	}
	footer := "Actions: " + strings.Join(names, ", ")

	return []goslack.Block{
		mdSection(header),
		mdSection(truncateForSlack(body)),
		mdSection(footer),
	}
}

func buildDecidedMessage(p *models.Proposal, reason string) []goslack.Block {
	var text string
	switch p.Status {
	case models.ProposalApproved:
		text = fmt.Sprintf(":white_check_mark: *Proposal approved* by %s", p.DecidedBy)
	case models.ProposalRejected:
		text = fmt.Sprintf(":x: *Proposal rejected* by %s", p.DecidedBy)
	default:
		text = fmt.Sprintf(":question: *Proposal %s* by %s", p.Status, p.DecidedBy)
	}
	if reason != "" {
		text += "\n\n*Reason:*\n" + truncateForSlack(reason)
	}
	return []goslack.Block{mdSection(text)}
}

func buildExecutedMessage(p *models.Proposal) []goslack.Block {
	var header string
	if p.Status == models.ProposalExecuted {
		header = ":rocket: *Proposal executed*"
	} else {
		header = ":warning: *Proposal execution failed*"
	}
	blocks := []goslack.Block{mdSection(header)}

	if len(p.ExecutionResult) > 0 {
		lines := make([]string, 0, len(p.ExecutionResult))
		for _, r := range p.ExecutionResult {
			mark := ":white_check_mark:"
			if !r.OK {
				mark = ":x:"
			}
			line := fmt.Sprintf("%s `%s`", mark, r.Action.Name)
			if r.Detail != "" {
				line += " " + r.Detail
			}
			lines = append(lines, line)
		}
		blocks = append(blocks, mdSection(truncateForSlack(strings.Join(lines, "\n"))))
	}
	return blocks
}

func mdSection(text string) goslack.Block {
	return goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
		nil, nil,
	)
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
