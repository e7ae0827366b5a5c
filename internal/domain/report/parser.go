// Package report turns the free-form result text posted by the puzzle bot
// into ranked tiers of player ids.
//
// Parsing is best effort and never fails: malformed tokens and lines are
// dropped, and a report without any usable line yields zero tiers.
package report

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Mode selects a tier extraction strategy.
type Mode string

// Supported modes.
const (
	// ModeLine makes every line with a valid mention one tier, in line order.
	ModeLine Mode = "line"
	// ModeScore groups mentions by the score printed on their line, lowest first.
	ModeScore Mode = "score"
)

var (
	mentionPattern = regexp.MustCompile(`^<@!?(\d+)>$`)
	scorePattern   = regexp.MustCompile(`^(\d+|[xX])(?:/(\d+))?:?$`)
)

// Tier is a group of tied player ids.
type Tier []int64

// Result is the ranking extracted from one report.
type Result struct {
	Tiers []Tier  // best tier first
	Seen  []int64 // every ranked id, in tier order
	seen  map[int64]bool
}

// Empty reports whether the report produced no tiers.
func (r Result) Empty() bool { return len(r.Tiers) == 0 }

// Contains reports whether id was ranked.
func (r Result) Contains(id int64) bool { return r.seen[id] }

// add appends a tier, skipping ids that already appeared in this report.
func (r *Result) add(ids []int64) {
	if r.seen == nil {
		r.seen = make(map[int64]bool)
	}
	tier := make(Tier, 0, len(ids))
	for _, id := range ids {
		if r.seen[id] {
			continue
		}
		r.seen[id] = true
		r.Seen = append(r.Seen, id)
		tier = append(tier, id)
	}
	if len(tier) > 0 {
		r.Tiers = append(r.Tiers, tier)
	}
}

// Parser extracts ranked tiers from the lines of one report.
type Parser interface {
	Parse(lines []string) Result
}

// NewParser returns the parser for mode.
func NewParser(mode Mode) (Parser, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case ModeLine, "":
		return LineGrouped{}, nil
	case ModeScore:
		return ScoreGrouped{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// Mentions returns the player ids of every well-formed mention token in line.
// Tokens with anything attached to the mention are ignored.
func Mentions(line string) []int64 {
	var ids []int64
	for _, tok := range strings.Fields(line) {
		if id, ok := parseMention(tok); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func parseMention(tok string) (int64, bool) {
	m := mentionPattern.FindStringSubmatch(tok)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// digit runs beyond int64 are not real user ids
		return 0, false
	}
	return id, true
}

// Score returns the first score token on line. "3", "3/6" and "3/6:" score 3;
// a failed attempt "X/6" scores one more than the attempt limit.
func Score(line string) (int, bool) {
	for _, tok := range strings.Fields(line) {
		m := scorePattern.FindStringSubmatch(tok)
		if m == nil {
			continue
		}
		if m[1] == "x" || m[1] == "X" {
			if m[2] == "" {
				continue
			}
			limit, err := strconv.Atoi(m[2])
			if err != nil || limit == math.MaxInt {
				continue
			}
			return limit + 1, true
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// LineGrouped treats every line with at least one mention as one tier.
type LineGrouped struct{}

// Parse implements Parser.
func (LineGrouped) Parse(lines []string) Result {
	var r Result
	for _, line := range lines {
		if ids := Mentions(line); len(ids) > 0 {
			r.add(ids)
		}
	}
	return r
}

// ScoreGrouped ties players with equal scores and ranks lower scores first.
// A player mentioned on several scored lines keeps the first line's score.
type ScoreGrouped struct{}

// Parse implements Parser.
func (ScoreGrouped) Parse(lines []string) Result {
	byScore := make(map[int][]int64)
	scored := make(map[int64]bool)
	for _, line := range lines {
		ids := Mentions(line)
		if len(ids) == 0 {
			continue
		}
		score, ok := Score(line)
		if !ok {
			continue
		}
		for _, id := range ids {
			if scored[id] {
				continue
			}
			scored[id] = true
			byScore[score] = append(byScore[score], id)
		}
	}

	scores := make([]int, 0, len(byScore))
	for s := range byScore {
		scores = append(scores, s)
	}
	sort.Ints(scores)

	var r Result
	for _, s := range scores {
		r.add(byScore[s])
	}
	return r
}

// Lines splits a message body into report lines, dropping the bot's header line.
func Lines(content string) []string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if len(lines) <= 1 {
		return nil
	}
	return lines[1:]
}
