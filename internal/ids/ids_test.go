package ids

import "testing"

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"a/b/c.md":        "a/b/c.md",
		"a\\b\\c.md":      "a/b/c.md",
		"./a/./b/c.md":    "a/b/c.md",
		"a/b/../c.md":     "a/c.md",
		"a/b/c.md/":       "a/b/c.md",
		"C:\\Users\\x.md": "c:/Users/x.md",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePath_Deterministic(t *testing.T) {
	a := NormalizePath("docs//readme.md")
	b := NormalizePath("docs//readme.md")
	if a != b {
		t.Fatalf("normalization is not deterministic: %q vs %q", a, b)
	}
}

func TestDocID_StableAndSensitive(t *testing.T) {
	a := DocID("a/b.md", "hash1")
	b := DocID("a/b.md", "hash1")
	if a != b {
		t.Fatalf("DocID not stable: %q vs %q", a, b)
	}
	c := DocID("a/b.md", "hash2")
	if a == c {
		t.Fatalf("DocID did not change with content hash")
	}
	d := DocID("a/c.md", "hash1")
	if a == d {
		t.Fatalf("DocID did not change with path")
	}
}

func TestChunkID_OffsetSensitive(t *testing.T) {
	doc := DocID("a/b.md", "hash1")
	c0 := ChunkID(doc, 0)
	c1 := ChunkID(doc, 1)
	c256 := ChunkID(doc, 256)
	if c0 == c1 || c0 == c256 || c1 == c256 {
		t.Fatalf("ChunkID collided across offsets: %q %q %q", c0, c1, c256)
	}
}

func TestCountTokens(t *testing.T) {
	cases := map[string]int{
		"":                 0,
		"hello":            1,
		"hello world":      2,
		"  hello   world  ": 2,
		"a\nb\tc":          3,
	}
	for in, want := range cases {
		if got := CountTokens(in); got != want {
			t.Errorf("CountTokens(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestTokens_PrefixBoundary(t *testing.T) {
	toks := Tokens("the quick brown fox jumps")
	if len(toks) != 5 {
		t.Fatalf("expected 5 tokens, got %d: %v", len(toks), toks)
	}
	if toks[0] != "the" || toks[4] != "jumps" {
		t.Fatalf("unexpected tokens: %v", toks)
	}
}
