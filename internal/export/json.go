package export

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/immxrtalbeast/trailboard/internal/domain"
)

const documentVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported export version")

// Document is the on-disk form of a board export.
type Document struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exportedAt"`
	Strokes    []domain.Stroke `json:"strokes"`
}

func WriteJSON(w io.Writer, strokes []domain.Stroke, exportedAt time.Time) error {
	if strokes == nil {
		strokes = []domain.Stroke{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Document{
		Version:    documentVersion,
		ExportedAt: exportedAt.UTC(),
		Strokes:    strokes,
	}); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// ReadJSON accepts a Document or a bare stroke array as carried by
// tafelSync.
func ReadJSON(r io.Reader) ([]domain.Stroke, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var strokes []domain.Stroke
		if err := dec.Decode(&strokes); err != nil {
			return nil, fmt.Errorf("decode strokes: %w", err)
		}
		return strokes, nil
	}

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	if doc.Version > documentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}
	if doc.Strokes == nil {
		doc.Strokes = []domain.Stroke{}
	}
	return doc.Strokes, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
