// Package chunker implements the Chunker (C4): it groups a document's
// ordered Elements into retrieval-sized Chunks. The chunker is pure and
// deterministic — the same Elements and Config always produce the same
// Chunks, with no I/O and no wall-clock dependence.
package chunker

import (
	"strings"

	"ragcore/internal/metadata"
	"ragcore/internal/tokenizer"
)

// Config bounds chunk size and controls heading-boundary behavior.
type Config struct {
	MinTokens        int // default 350
	MaxTokens        int // default 700
	OverlapTokens    int // default 15% of MaxTokens
	HeaderBreakLevel int // heading level <= this forces a chunk boundary; default 2
	MinTableRows     int // default 20
	MaxTableRows     int // default 60
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MinTokens:        350,
		MaxTokens:        700,
		OverlapTokens:    105, // 15% of 700
		HeaderBreakLevel: 2,
		MinTableRows:     20,
		MaxTableRows:     60,
	}
}

func (c Config) normalized() Config {
	if c.MinTokens <= 0 {
		c.MinTokens = 350
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 700
	}
	if c.OverlapTokens < 0 {
		c.OverlapTokens = c.MaxTokens * 15 / 100
	}
	if c.HeaderBreakLevel <= 0 {
		c.HeaderBreakLevel = 2
	}
	if c.MinTableRows <= 0 {
		c.MinTableRows = 20
	}
	if c.MaxTableRows <= 0 {
		c.MaxTableRows = 60
	}
	return c
}

// Chunker groups Elements into Chunks according to Config.
type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg.normalized()}
}

// Chunk produces the ordered Chunk list for one document's Elements.
// Elements must already be ordered by Ordinal.
func (c *Chunker) Chunk(documentID string, elements []metadata.Element) []metadata.Chunk {
	b := &builder{cfg: c.cfg, documentID: documentID}

	for _, el := range elements {
		switch el.Kind {
		case metadata.ElementHeading:
			b.applyHeading(el)
		case metadata.ElementTable:
			b.flush()
			b.emitTableChunks(el)
		default:
			b.addText(el)
		}
	}
	b.flush()
	return b.chunks
}

type headingFrame struct {
	level int
	text  string
}

type builder struct {
	cfg        Config
	documentID string
	chunks     []metadata.Chunk

	headingStack []headingFrame
	headerPath   []string // snapshot taken when the current buffer started

	bufElements []metadata.Element
	bufText     strings.Builder
	bufTokens   int
	bufPage     *int
	ordinal     int

	overlapTail string
}

func (b *builder) applyHeading(el metadata.Element) {
	if el.Level <= b.cfg.HeaderBreakLevel {
		b.flush()
	}
	for len(b.headingStack) > 0 && b.headingStack[len(b.headingStack)-1].level >= el.Level {
		b.headingStack = b.headingStack[:len(b.headingStack)-1]
	}
	b.headingStack = append(b.headingStack, headingFrame{level: el.Level, text: el.Text})
}

func (b *builder) currentHeaderPath() []string {
	path := make([]string, len(b.headingStack))
	for i, f := range b.headingStack {
		path[i] = f.text
	}
	return path
}

func (b *builder) addText(el metadata.Element) {
	text := el.Text
	for {
		if len(b.bufElements) == 0 {
			b.headerPath = b.currentHeaderPath()
			b.bufPage = elementPage(el)
			if b.overlapTail != "" {
				b.bufText.WriteString(b.overlapTail)
				b.bufText.WriteString("\n")
				b.bufTokens += tokenizer.Count(b.overlapTail)
				b.overlapTail = ""
			}
		}
		// Text that does not fit the buffer's remaining room is split at a
		// token boundary so no chunk but the last exceeds MaxTokens.
		piece, rest := text, ""
		if room := b.cfg.MaxTokens - b.bufTokens; room > 0 && tokenizer.Count(text) > room {
			if cut := tokenizer.Truncate(text, room); strings.TrimSpace(cut) != "" {
				piece, rest = strings.TrimSpace(cut), strings.TrimSpace(text[len(cut):])
			}
		}
		b.bufElements = append(b.bufElements, el)
		if b.bufText.Len() > 0 {
			b.bufText.WriteString("\n")
		}
		b.bufText.WriteString(piece)
		b.bufTokens += tokenizer.Count(piece)

		if b.bufTokens >= b.cfg.MaxTokens {
			b.flush()
		}
		if rest == "" {
			return
		}
		text = rest
	}
}

// flush emits the current buffer as a Chunk, carrying forward an overlap
// tail (the trailing OverlapTokens worth of text) for the next Chunk.
func (b *builder) flush() {
	if len(b.bufElements) == 0 {
		return
	}
	text := b.bufText.String()
	chunk := metadata.Chunk{
		DocumentID: b.documentID,
		ElementIDs: elementIDs(b.bufElements),
		Text:       text,
		TokenCount: b.bufTokens,
		HeaderPath: b.headerPath,
		Ordinal:    b.ordinal,
		Page:       b.bufPage,
	}
	b.chunks = append(b.chunks, chunk)
	b.ordinal++

	if b.cfg.OverlapTokens > 0 {
		b.overlapTail = tailTokens(text, b.cfg.OverlapTokens)
	} else {
		b.overlapTail = ""
	}

	b.bufElements = nil
	b.bufText.Reset()
	b.bufTokens = 0
	b.bufPage = nil
}

// tailTokens returns the trailing substring of text worth approximately
// maxTokens tokens, used to seed the next chunk's overlap.
func tailTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi) / 2
		if tokenizer.Count(string(runes[mid:])) <= maxTokens {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return strings.TrimSpace(string(runes[lo:]))
}

// emitTableChunks partitions a table Element's pipe-table text into row
// groups of [MinTableRows, MaxTableRows] rows, each becoming its own Chunk
// with the header row repeated at the top. When the rows left after a full
// group would number fewer than MinTableRows, that group gives up rows to
// the last one, as long as it keeps at least MinTableRows itself; a table
// with fewer than MinTableRows data rows is a single smaller group.
func (b *builder) emitTableChunks(el metadata.Element) {
	lines := strings.Split(strings.TrimRight(el.Text, "\n"), "\n")
	if len(lines) == 0 {
		return
	}
	header := lines[0]
	dataRows := lines[1:]
	headerPath := b.currentHeaderPath()
	page := elementPage(el)

	if len(dataRows) == 0 {
		b.emitTableChunk(header, nil, el, headerPath, page)
		return
	}

	for start := 0; start < len(dataRows); {
		end := start + b.cfg.MaxTableRows
		if end > len(dataRows) {
			end = len(dataRows)
		}
		if left := len(dataRows) - end; left > 0 && left < b.cfg.MinTableRows &&
			end-start-(b.cfg.MinTableRows-left) >= b.cfg.MinTableRows {
			end -= b.cfg.MinTableRows - left
		}
		b.emitTableChunk(header, dataRows[start:end], el, headerPath, page)
		start = end
	}
}

func (b *builder) emitTableChunk(header string, rows []string, el metadata.Element, headerPath []string, page *int) {
	var sb strings.Builder
	sb.WriteString(header)
	for _, r := range rows {
		sb.WriteString("\n")
		sb.WriteString(r)
	}
	text := sb.String()
	b.chunks = append(b.chunks, metadata.Chunk{
		DocumentID: b.documentID,
		ElementIDs: []string{el.ID},
		Text:       text,
		TokenCount: tokenizer.Count(text),
		HeaderPath: headerPath,
		Ordinal:    b.ordinal,
		Page:       page,
		IsTable:    true,
	})
	b.ordinal++
}

func elementIDs(elements []metadata.Element) []string {
	ids := make([]string, 0, len(elements))
	for _, e := range elements {
		if e.ID != "" {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

func elementPage(el metadata.Element) *int {
	raw, ok := el.Metadata["page"]
	if !ok {
		return nil
	}
	n := 0
	for _, r := range raw {
		if r < '0' || r > '9' {
			return nil
		}
		n = n*10 + int(r-'0')
	}
	return &n
}
