package contentapi

import (
	"bytes"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// maxDataDepth is how many "data" wrappers are peeled: {data:[...]} and
// {data:{data:[...]}}.
const maxDataDepth = 2

// unwrapCollection returns the array inside a bare array, {data: array} or
// {data: {data: array}} body. ok is false for any other shape.
func unwrapCollection(raw []byte) (json.RawMessage, bool) {
	cur := bytes.TrimSpace(raw)
	for depth := 0; depth <= maxDataDepth; depth++ {
		switch {
		case len(cur) == 0, bytes.Equal(cur, []byte("null")):
			return json.RawMessage("[]"), true
		case cur[0] == '[':
			return json.RawMessage(cur), true
		case cur[0] != '{' || depth == maxDataDepth:
			return nil, false
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(cur, &obj); err != nil {
			return nil, false
		}
		data, ok := obj["data"]
		if !ok {
			return nil, false
		}
		cur = bytes.TrimSpace(data)
	}
	return nil, false
}

// decodeCollection normalizes a list response into items. Unrecognized
// shapes and undecodable items yield an empty slice and ok=false.
func decodeCollection[T any](raw []byte) ([]T, bool) {
	arr, ok := unwrapCollection(raw)
	if !ok {
		return []T{}, false
	}
	var items []T
	if err := json.Unmarshal(arr, &items); err != nil {
		return []T{}, false
	}
	if items == nil {
		items = []T{}
	}
	return items, true
}

// unwrapRecord returns the object carrying a usable "id", looking at the top
// level and then inside up to two "data" wrappers. The id may be a JSON number
// or a numeric string. When no level carries one the innermost object is
// returned with id 0.
func unwrapRecord(raw []byte) (rec json.RawMessage, id int64) {
	cur := bytes.TrimSpace(raw)
	var last json.RawMessage
	for depth := 0; depth <= maxDataDepth; depth++ {
		if len(cur) == 0 || cur[0] != '{' {
			break
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(cur, &obj); err != nil {
			break
		}
		last = json.RawMessage(cur)
		if v, ok := obj["id"]; ok {
			if n, ok := parseID(v); ok {
				return last, n
			}
		}
		data, ok := obj["data"]
		if !ok {
			break
		}
		cur = bytes.TrimSpace(data)
	}
	return last, 0
}

// parseID accepts 42 and "42". Zero, negative and non-integral values are
// not ids.
func parseID(raw json.RawMessage) (int64, bool) {
	v := bytes.TrimSpace(raw)
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, false
		}
		v = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// decodeRecord decodes rec over out, leaving the id to the caller so a
// string id cannot abort decoding the other fields.
func decodeRecord[T any](rec json.RawMessage, out *T) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(rec, &obj); err != nil {
		return err
	}
	delete(obj, "id")
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
