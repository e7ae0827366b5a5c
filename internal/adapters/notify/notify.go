// Package notify delivers acknowledgements and leaderboard replies back to
// the chat channel.
package notify

import (
	"context"
	"strings"

	"github.com/okian/skillboard/pkg/logger"
)

// MaxMessageLen is the longest message the chat platform accepts.
const MaxMessageLen = 2000

// Notifier sends text to a channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, text string) error
}

// Log writes notifications to the logger. It is used when no webhook is set.
type Log struct {
	logger logger.Logger
}

// NewLog creates a logging Notifier.
func NewLog(l logger.Logger) *Log {
	if l == nil {
		l = logger.Get().Named("notify")
	}
	return &Log{logger: l}
}

// Notify implements Notifier.
func (n *Log) Notify(ctx context.Context, channelID, text string) error {
	n.logger.Info(ctx, "notification", logger.String("channel_id", channelID), logger.String("text", text))
	return nil
}

// Split breaks text into chunks of at most limit runes, preferring line breaks.
func Split(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if n > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		r := []rune(line)
		for len(r) > limit {
			flush()
			out = append(out, string(r[:limit]))
			r = r[limit:]
		}
		need := len(r)
		if n > 0 {
			need++
		}
		if n+need > limit {
			flush()
			need = len(r)
		}
		if n > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(string(r))
		n += need
	}
	flush()
	return out
}
