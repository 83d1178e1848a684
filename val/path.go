package val

import (
	"encoding/json"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
)

// Select treats text as json document and returns the result of the path expression.
// Paths without the leading '$' are taken relative to the document root.
func Select(text, path string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "subscript expects json text")
	}
	if !strings.HasPrefix(path, "$") {
		if strings.HasPrefix(path, "[") {
			path = "$" + path
		} else {
			path = "$." + path
		}
	}
	res, err := jsonpath.Get(path, doc)
	if err != nil {
		if strings.Contains(err.Error(), "unknown key") || strings.Contains(err.Error(), "out of bounds") {
			return Null{}, nil
		}
		return nil, errors.Wrapf(err, "json path %s", path)
	}
	return FromJSON(res)
}

// FromJSON converts a decoded json value to a value. Objects are returned as raw json text.
func FromJSON(v interface{}) (Value, error) {
	switch v := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(v), nil
	case string:
		return Str(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return Real(f), nil
	case float64:
		return Real(v), nil
	case []interface{}:
		res := make(List, 0, len(v))
		for _, e := range v {
			el, err := FromJSON(e)
			if err != nil {
				return nil, err
			}
			res = append(res, el)
		}
		return res, nil
	case map[string]interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return Payload(string(b)), nil
	}
	return nil, errors.Errorf("unexpected json value %T", v)
}
