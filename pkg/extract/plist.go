package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"howett.net/plist"
)

// PlistToJSON decodes a property list (XML, binary or OpenStep) and renders
// it as indented JSON. Data values become UTF-8 text with invalid sequences
// dropped; dates become RFC 3339 strings.
func PlistToJSON(data []byte) ([]byte, error) {
	var v any
	if _, err := plist.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding plist: %w", err)
	}
	return json.MarshalIndent(jsonValue(v), "", "    ")
}

// PlistFileToJSON converts path to path + ".json".
func PlistFileToJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	out, err := PlistToJSON(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	outPath := path + ".json"
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return "", err
	}
	return outPath, nil
}

// jsonValue maps decoded plist values onto JSON-encodable ones.
func jsonValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonValue(item)
		}
		return out
	case []byte:
		return strings.ToValidUTF8(string(val), "")
	case time.Time:
		return val.Format(time.RFC3339)
	case plist.UID:
		return uint64(val)
	default:
		return val
	}
}
