// Package transfer defines the newline-delimited JSON wire format used
// by Store.Export/Import: one type-tagged line per doc row, one per
// chunk row, embeddings carried as base64-encoded float32 blobs.
package transfer

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
)

// DocRecord is one exported doc row.
type DocRecord struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Path   string         `json:"path"`
	MTime  string         `json:"mtime"`
	Hash   string         `json:"hash"`
	Tag    string         `json:"tag,omitempty"`
	Source string         `json:"source,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// ChunkRecord is one exported chunk row; Embedding is base64-encoded.
type ChunkRecord struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	DocID     string `json:"doc_id"`
	Offset    int    `json:"offset"`
	Tokens    int    `json:"tokens"`
	Text      string `json:"text"`
	Embedding string `json:"embedding"`
}

// EncodeDoc writes d as a single "doc"-typed JSONL line.
func EncodeDoc(w io.Writer, d DocRecord) error {
	d.Type = "doc"
	return encodeLine(w, d)
}

// EncodeChunk writes c as a single "chunk"-typed JSONL line.
func EncodeChunk(w io.Writer, c ChunkRecord) error {
	c.Type = "chunk"
	return encodeLine(w, c)
}

func encodeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// EncodeEmbedding base64-encodes an embedding blob for a ChunkRecord.
func EncodeEmbedding(blob []byte) string { return base64.StdEncoding.EncodeToString(blob) }

// DecodeEmbedding reverses EncodeEmbedding.
func DecodeEmbedding(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// typeTag is used to sniff a line's discriminator before fully decoding
// it into a DocRecord or ChunkRecord.
type typeTag struct {
	Type string `json:"type"`
}

// Line is one decoded input line: exactly one of Doc or Chunk is set.
type Line struct {
	Doc   *DocRecord
	Chunk *ChunkRecord
}

// Scan reads newline-delimited JSON from r, calling fn once per non-blank
// line with the decoded record. Stops and returns fn's error immediately
// if it returns one.
func Scan(r io.Reader, fn func(Line) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var tag typeTag
		if err := json.Unmarshal(raw, &tag); err != nil {
			return fmt.Errorf("transfer: parse line: %w", err)
		}
		switch tag.Type {
		case "doc":
			var d DocRecord
			if err := json.Unmarshal(raw, &d); err != nil {
				return fmt.Errorf("transfer: parse doc line: %w", err)
			}
			if err := fn(Line{Doc: &d}); err != nil {
				return err
			}
		case "chunk":
			var c ChunkRecord
			if err := json.Unmarshal(raw, &c); err != nil {
				return fmt.Errorf("transfer: parse chunk line: %w", err)
			}
			if err := fn(Line{Chunk: &c}); err != nil {
				return err
			}
		default:
			return fmt.Errorf("transfer: unknown line type %q", tag.Type)
		}
	}
	return sc.Err()
}
