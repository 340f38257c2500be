package retrieval

import (
	"strings"
	"testing"

	"therapy-chat-api/internal/domain/entity"
)

func TestFormatContextChunk(t *testing.T) {
	start := 12.34
	res := &SearchResult{Chunk: &entity.SessionChunk{Chunk: entity.Chunk{
		Content:   "I felt anxious at work.",
		Speaker:   "Patient",
		StartTime: &start,
	}}}
	if got := FormatContextChunk(res); got != "[Patient] (at 12.3s) I felt anxious at work." {
		t.Fatalf("got=%q", got)
	}

	res.Chunk.Speaker = ""
	res.Chunk.StartTime = nil
	if got := FormatContextChunk(res); got != "I felt anxious at work." {
		t.Fatalf("got=%q", got)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	if got := BuildSystemPrompt(nil); got != NoContextSystemPrompt {
		t.Fatalf("empty results should use no-context prompt")
	}
	results := []*SearchResult{
		{Chunk: &entity.SessionChunk{Chunk: entity.Chunk{Content: "first"}}},
		{Chunk: &entity.SessionChunk{Chunk: entity.Chunk{Content: "second"}}},
	}
	got := BuildSystemPrompt(results)
	if !strings.Contains(got, "CONTEXT FROM THERAPY SESSIONS:\nfirst\n\n---\n\nsecond\n\nWhen answering questions:") {
		t.Fatalf("prompt=%q", got)
	}
	if !strings.Contains(got, "7. Do not provide medical advice or diagnoses") {
		t.Fatalf("guidelines missing")
	}
}

func TestContentPreview(t *testing.T) {
	if got := ContentPreview("短文本", 200); got != "短文本" {
		t.Fatalf("got=%q", got)
	}
	long := strings.Repeat("好", 250)
	if got := ContentPreview(long, 200); len([]rune(got)) != 200 {
		t.Fatalf("runes=%d", len([]rune(got)))
	}
}

func TestChunkMetaRoundTrip(t *testing.T) {
	enc := EncodeChunkText(ChunkMeta{SegmentIndices: []int{3, 4}, TokenCount: 42}, "hello\nworld")
	meta, body := DecodeChunkText(enc)
	if body != "hello\nworld" || meta.TokenCount != 42 || len(meta.SegmentIndices) != 2 {
		t.Fatalf("meta=%+v body=%q", meta, body)
	}
	meta, body = DecodeChunkText("plain")
	if body != "plain" || meta.TokenCount != 0 {
		t.Fatalf("plain decode meta=%+v body=%q", meta, body)
	}
}
