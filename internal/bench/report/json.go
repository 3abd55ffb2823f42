package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

func WriteJSON(doc *Document, path string) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := newEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return buf.Bytes(), nil
}

func EncodeJSON(doc *Document, w io.Writer) error {
	if err := newEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// newEncoder keeps bucket labels like "<1ms" readable in the output.
func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc
}

func ReadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal report %s: %w", path, err)
	}
	return &doc, nil
}
