package mi

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// JSON returns the record as a JSON document:
//
//	{"kind":"result","token":3,"class":"done","payload":{...}}
//
// Stream and raw records carry "text" instead of "payload". In the payload
// a name repeated within one tuple becomes an array of its values, and a
// list of named results becomes an array of the values.
func (r *Record) JSON() string {
	doc := `{}`
	doc, _ = sjson.Set(doc, "kind", r.Kind.String())
	if r.HasToken {
		doc, _ = sjson.Set(doc, "token", r.Token)
	}
	switch {
	case r.Kind == KindResult || r.Kind.IsAsync():
		doc, _ = sjson.Set(doc, "class", r.Class)
		doc, _ = sjson.SetRaw(doc, "payload", tupleJSON(r.Results))
	default:
		doc, _ = sjson.Set(doc, "text", r.Text)
	}
	return doc
}

// Payload returns the JSON projection of the record's results.
func (r *Record) Payload() string {
	return tupleJSON(r.Results)
}

// Query evaluates a gjson path against the record's payload, for example
// "bkpt.number" or "threads.#.id".
func (r *Record) Query(path string) gjson.Result {
	return gjson.Get(r.Payload(), path)
}

// Query evaluates a gjson path against the result record's payload.
func (o *Output) Query(path string) gjson.Result {
	if o == nil || o.Result == nil {
		return gjson.Result{}
	}
	return o.Result.Query(path)
}

func tupleJSON(rs []Result) string {
	doc := `{}`
	counts := make(map[string]int, len(rs))
	for _, r := range rs {
		counts[r.Name]++
	}
	started := make(map[string]bool)
	for _, r := range rs {
		key := escapePath(r.Name)
		if counts[r.Name] > 1 {
			if !started[r.Name] {
				doc, _ = sjson.SetRaw(doc, key, `[]`)
				started[r.Name] = true
			}
			doc = setValue(doc, key+".-1", r.Value)
			continue
		}
		doc = setValue(doc, key, r.Value)
	}
	return doc
}

func listJSON(l List) string {
	doc := `[]`
	for _, v := range l.Values {
		doc = setValue(doc, "-1", v)
	}
	for _, r := range l.Results {
		doc = setValue(doc, "-1", r.Value)
	}
	return doc
}

func setValue(doc, path string, v Value) string {
	var out string
	switch v := v.(type) {
	case Const:
		out, _ = sjson.Set(doc, path, string(v))
	case Tuple:
		out, _ = sjson.SetRaw(doc, path, tupleJSON(v))
	case List:
		out, _ = sjson.SetRaw(doc, path, listJSON(v))
	default:
		return doc
	}
	return out
}

// escapePath escapes the characters that have a meaning in sjson paths.
func escapePath(name string) string {
	if !strings.ContainsAny(name, `.*?|#@\:!=<>%`) {
		return name
	}
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			sb.WriteByte('\\')
		}
		sb.WriteByte(name[i])
	}
	return sb.String()
}
