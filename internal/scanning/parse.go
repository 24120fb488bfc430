package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const fence = "```"

// requiredSections must all be present at the top level of the model output.
var requiredSections = []string{"store_info", "transaction_details", "items"}

// Normalize turns the raw model output into a ReceiptRecord. Markdown code
// fences are removed before a strict decode; anything that does not decode
// into the record shape yields the sentinel error record carrying raw.
func Normalize(raw string) ReceiptRecord {
	record, err := parseReceiptJSON(stripFences(raw))
	if err != nil {
		return errorRecord(raw)
	}
	return record
}

// stripFences removes a leading ``` or ```<lang> opener and a trailing ```.
func stripFences(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, fence) {
		text = text[len(fence):]
		// Drop a language tag such as "json" directly after the opener
		i := 0
		for i < len(text) && isTagByte(text[i]) {
			i++
		}
		text = text[i:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), fence)

	return strings.TrimSpace(text)
}

func isTagByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '+'
}

// parseReceiptJSON decodes text into a ReceiptRecord, requiring the three
// top-level sections.
func parseReceiptJSON(text string) (ReceiptRecord, error) {
	var record ReceiptRecord

	var sections map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &sections); err != nil {
		return record, fmt.Errorf("unmarshaling json: %w", err)
	}
	if sections == nil {
		return record, fmt.Errorf("response is not a JSON object")
	}
	for _, name := range requiredSections {
		section, ok := sections[name]
		if !ok {
			return record, fmt.Errorf("missing %q", name)
		}
		if bytes.Equal(bytes.TrimSpace(section), []byte("null")) && name != "items" {
			return record, fmt.Errorf("%q is null", name)
		}
	}

	if err := json.Unmarshal([]byte(text), &record); err != nil {
		return ReceiptRecord{}, fmt.Errorf("decoding receipt record: %w", err)
	}

	// The error fields belong to the sentinel only
	record.Error = ""
	record.RawResponse = ""
	if record.Items == nil {
		record.Items = []Item{}
	}

	return record, nil
}
