package stream

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/liliang-cn/doclens/internal/domain"
)

// dataKey is the only frame field read. Lookup is exact; encoding/json would
// also accept "Data" or "DATA" when decoding into a struct.
const dataKey = "data"

// parseFrame decodes one line of the answer stream: {"data": string | record[]}.
// Only invalid JSON is an error. Valid JSON that is not an object, or whose
// data is absent or of another shape, yields no event.
func parseFrame(line []byte) (domain.StreamEvent, bool, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return domain.StreamEvent{}, false, err
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return domain.StreamEvent{}, false, nil
	}
	data, ok := fields[dataKey]
	if !ok || len(data) == 0 {
		return domain.StreamEvent{}, false, nil
	}

	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return domain.StreamEvent{}, false, err
		}
		return domain.TextDelta(text), true, nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return domain.StreamEvent{}, false, fmt.Errorf("invalid citation records: %w", err)
		}
		citations := make([]domain.Citation, len(elems))
		for i, elem := range elems {
			citations[i] = domain.CitationFromRecord(decodeRecord(elem))
		}
		return domain.CitationSet(citations), true, nil
	default:
		return domain.StreamEvent{}, false, nil
	}
}

// decodeRecord reads one citation record field by field. A field of an
// unexpected type is left empty and an element that is not an object gives
// an empty record, so one odd record never shifts the numbering of the rest.
func decodeRecord(raw json.RawMessage) domain.APICitationRecord {
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return domain.APICitationRecord{}
	}
	return domain.APICitationRecord{
		ChunkID:    scalarString(fields["chunk_id"]),
		DocumentID: scalarString(fields["document_id"]),
		PageNumber: scalarInt(fields["page_number"]),
		Filename:   scalarString(fields["filename"]),
		Score:      scalarFloat(fields["score"]),
		ChunkText:  scalarString(fields["chunk_text"]),
	}
}

// scalarString accepts a JSON string or number. Numbers keep their literal form.
func scalarString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// scalarInt accepts an integral JSON number or a string holding one
func scalarInt(raw json.RawMessage) *int {
	f := scalarFloat(raw)
	if f == nil || *f != math.Trunc(*f) || math.Abs(*f) > math.MaxInt32 {
		return nil
	}
	v := int(*f)
	return &v
}

// scalarFloat accepts a JSON number or a string holding one
func scalarFloat(raw json.RawMessage) *float64 {
	var n json.Number
	if json.Unmarshal(raw, &n) != nil || n == "" {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}
