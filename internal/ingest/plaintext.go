package ingest

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/agrafes/internal/models"
)

var numberedLineRE = regexp.MustCompile(`^\[\s*(\d+)\s*\]\s*(.+)$`)

// PlainTextImporter reads one physical line per unit, skipping blank lines.
// A line matching `[n] text` becomes a "line" unit with that external_id
// (the `[n]` prefix stripped); any other non-blank line becomes a
// "structure" unit. Grounded on original_source's txt.py (BOM/charset
// detection is out of scope here: input is assumed to already be decoded
// UTF-8 text, matching how the sidecar and CLI read files in this port).
type PlainTextImporter struct{}

// Parse implements Importer.
func (PlainTextImporter) Parse(r io.Reader) ([]models.LineSpec, error) {
	var specs []models.LineSpec
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if m := numberedLineRE.FindStringSubmatch(line); m != nil {
			id, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			specs = append(specs, models.LineSpec{Kind: models.UnitLine, TextRaw: m[2], ExternalID: &id})
			continue
		}
		specs = append(specs, models.LineSpec{Kind: models.UnitStructure, TextRaw: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return specs, nil
}
