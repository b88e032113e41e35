// Package importer turns spreadsheet exports into product collections.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jszwec/csvutil"

	"Inventory/internal/inventory"
)

// keyRow makes the decoder insist on a key column.
type keyRow struct {
	Key string `csv:"codigo2"`
}

type Parser struct {
	filename string
	comma    rune
}

func NewParser(filename string, comma rune) *Parser {
	if comma == 0 {
		comma = ','
	}
	return &Parser{filename: filename, comma: comma}
}

func (p *Parser) ParseProducts() (inventory.Collection, error) {
	file, err := os.Open(p.filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	return Decode(file, p.comma)
}

// Decode reads every row into a product keyed by the header names. Empty
// cells are kept as empty strings; values are not converted.
func Decode(r io.Reader, comma rune) (inventory.Collection, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return inventory.Collection{}, nil
		}
		return nil, fmt.Errorf("failed to create CSV decoder: %w", err)
	}
	dec.DisallowMissingColumns = true

	header := make([]string, 0, len(dec.Header()))
	for _, h := range dec.Header() {
		header = append(header, strings.TrimSpace(h))
	}

	out := inventory.Collection{}
	for {
		var row keyRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode CSV row %d: %w", len(out)+1, err)
		}

		record := dec.Record()
		p := make(inventory.Product, len(header))
		for i, name := range header {
			if name == "" || i >= len(record) {
				continue
			}
			p[name] = record[i]
		}
		out = append(out, p)
	}

	return out, nil
}
