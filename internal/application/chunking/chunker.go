// Package chunking 将会话转写切分为带说话人与时间信息的检索单元
package chunking

import (
	"strings"
	"unicode/utf8"

	"therapy-chat-api/internal/domain/entity"
)

// Config token 预算阈值
type Config struct {
	TargetSize int `mapstructure:"target_size"`
	MaxSize    int `mapstructure:"max_size"`
	MinSize    int `mapstructure:"min_size"`
}

// DefaultConfig 默认 500/750/100
func DefaultConfig() Config {
	return Config{TargetSize: 500, MaxSize: 750, MinSize: 100}
}

// Chunker 无状态切分器，可并发使用
type Chunker struct {
	cfg Config
}

// New 创建切分器，非正的阈值回落到默认值
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = def.TargetSize
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MinSize < 0 {
		cfg.MinSize = def.MinSize
	}
	return &Chunker{cfg: cfg}
}

// Config 返回生效的阈值
func (c *Chunker) Config() Config {
	return c.cfg
}

// EstimateTokens 约 4 字符一个 token：runes/4 + 1
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text)/4 + 1
}

// accumulator 单次遍历中的累积缓冲
type accumulator struct {
	texts   []string
	indices []int
	tokens  int
	start   *float64
	end     *float64

	// last 最近加入的有文本片段的说话人，用于判断说话人切换
	last    string
	speaker string
	mixed   bool
}

func (a *accumulator) hasText() bool {
	return len(a.texts) > 0
}

func (a *accumulator) add(idx int, seg entity.Segment, text string, tokens int) {
	speaker := strings.TrimSpace(seg.Speaker)
	if !a.hasText() {
		a.speaker = speaker
		start := seg.Start
		a.start = &start
	} else if speaker != a.speaker {
		a.mixed = true
	}
	end := seg.End
	a.end = &end

	a.texts = append(a.texts, text)
	a.indices = append(a.indices, idx)
	a.tokens += tokens
	a.last = speaker
}

func (a *accumulator) chunk(index int) entity.Chunk {
	ch := entity.Chunk{
		Index:          index,
		Content:        strings.Join(a.texts, " "),
		StartTime:      a.start,
		EndTime:        a.end,
		SegmentIndices: a.indices,
		TokenCount:     a.tokens,
	}
	if !a.mixed {
		ch.Speaker = a.speaker
	}
	return ch
}

// Chunk 切分转写。segments 为空时按空白分词回退到纯文本切分。
//
// 约束：所有 chunk 的 SegmentIndices 顺序拼接恰为 0..len(segments)-1；
// 单个片段不会被拆开，超出 MaxSize 的片段单独成块。
func (c *Chunker) Chunk(fullText string, segments []entity.Segment) []entity.Chunk {
	if len(segments) == 0 {
		return c.chunkPlainText(fullText)
	}

	var (
		chunks []entity.Chunk
		acc    accumulator
	)
	flush := func() {
		chunks = append(chunks, acc.chunk(len(chunks)))
		acc = accumulator{}
	}

	for i, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			// 空白片段只记录下标，不贡献文本与 token
			acc.indices = append(acc.indices, i)
			continue
		}
		tokens := EstimateTokens(text)

		if acc.hasText() {
			speaker := strings.TrimSpace(seg.Speaker)
			speakerChanged := acc.last != "" && speaker != acc.last && acc.tokens >= c.cfg.MinSize
			overflow := acc.tokens+tokens > c.cfg.MaxSize
			if speakerChanged || overflow {
				flush()
			}
		}

		acc.add(i, seg, text, tokens)

		if acc.tokens >= c.cfg.TargetSize {
			flush()
		}
	}

	switch {
	case acc.hasText():
		flush()
	case len(acc.indices) > 0 && len(chunks) > 0:
		// 末尾的空白片段并入最后一个 chunk，保持下标连续覆盖
		last := &chunks[len(chunks)-1]
		last.SegmentIndices = append(last.SegmentIndices, acc.indices...)
	}
	return chunks
}

func (c *Chunker) chunkPlainText(text string) []entity.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var (
		chunks  []entity.Chunk
		current []string
		tokens  int
	)
	flush := func() {
		chunks = append(chunks, entity.Chunk{
			Index:      len(chunks),
			Content:    strings.Join(current, " "),
			TokenCount: tokens,
		})
		current = nil
		tokens = 0
	}

	for _, w := range words {
		wt := EstimateTokens(w)
		if tokens+wt > c.cfg.TargetSize && len(current) > 0 {
			flush()
		}
		current = append(current, w)
		tokens += wt
	}
	if len(current) > 0 {
		flush()
	}
	return chunks
}
