package copilot

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/jxucoder/flowstudio/internal/blueprint"
)

const (
	fenceOpen  = "```json"
	fenceClose = "```"
)

var (
	updatesLabel  = regexp.MustCompile(`(?i)^\s*blueprint_updates[\s:]*`)
	extraNewlines = regexp.MustCompile(`\n{3,}`)
)

// ParsedReply is a model reply split into prose and structured data.
type ParsedReply struct {
	DisplayText string
	Updates     *blueprint.Updates
}

// ParseOptions configures ParseReply. A nil Logger discards debug output.
type ParseOptions struct {
	DefaultAck string
	Logger     *zap.Logger
}

// fencedBlock is one ```json span of a reply. start and end are offsets into
// the normalized text; end is exclusive and includes the closing fence.
type fencedBlock struct {
	start, end int
	body       string
	labeled    bool
	updates    *blueprint.Updates
}

// ParseReply extracts the blueprint patch from a raw model reply. It never
// fails: a malformed block degrades to "no update".
//
// A block whose body starts with the blueprint_updates label always wins, the
// last one if there are several. Without a label, a single block is adopted
// only when it is the trailing content of the reply.
func ParseReply(raw string, opts ParseOptions) ParsedReply {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	text := normalizeNewlines(raw)
	blocks := scanBlocks(text)

	for i := range blocks {
		b := &blocks[i]
		body := b.body
		if loc := updatesLabel.FindStringIndex(body); loc != nil {
			body = body[loc[1]:]
			b.labeled = true
		}
		u, err := decodeUpdates(body, log)
		if err != nil {
			log.Debug("dropping malformed blueprint update block",
				zap.Int("offset", b.start),
				zap.Bool("labeled", b.labeled),
				zap.Error(err))
			continue
		}
		u.Normalize()
		b.updates = u
	}

	return ParsedReply{
		DisplayText: displayText(text, blocks, opts.DefaultAck),
		Updates:     chooseUpdates(text, blocks, log),
	}
}

func chooseUpdates(text string, blocks []fencedBlock, log *zap.Logger) *blueprint.Updates {
	var chosen *blueprint.Updates
	for _, b := range blocks {
		if b.labeled && b.updates != nil {
			chosen = b.updates
		}
	}
	if chosen != nil {
		return chosen
	}

	if len(blocks) == 1 {
		b := blocks[0]
		if b.updates != nil && strings.TrimSpace(text[b.end:]) == "" {
			return b.updates
		}
		return nil
	}
	if len(blocks) > 1 {
		log.Debug("ignoring ambiguous unlabeled update blocks", zap.Int("blocks", len(blocks)))
	}
	return nil
}

func scanBlocks(text string) []fencedBlock {
	var blocks []fencedBlock
	pos := 0
	for {
		idx := strings.Index(text[pos:], fenceOpen)
		if idx < 0 {
			return blocks
		}
		start := pos + idx
		inner := start + len(fenceOpen)

		b := fencedBlock{start: start, end: len(text), body: text[inner:]}
		if c := strings.Index(text[inner:], fenceClose); c >= 0 {
			b.body = text[inner : inner+c]
			b.end = inner + c + len(fenceClose)
		}
		blocks = append(blocks, b)
		pos = b.end
	}
}

func displayText(text string, blocks []fencedBlock, fallback string) string {
	var sb strings.Builder
	pos := 0
	for _, b := range blocks {
		sb.WriteString(text[pos:b.start])
		pos = b.end
	}
	sb.WriteString(text[pos:])

	out := strings.TrimSpace(extraNewlines.ReplaceAllString(sb.String(), "\n\n"))
	if out == "" {
		if fallback == "" {
			fallback = DefaultAck
		}
		return fallback
	}
	return out
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
