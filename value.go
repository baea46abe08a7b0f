package permissions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the closed set of attribute value types.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindStringList
)

// Value is the tagged union used for custom attributes and condition
// literals: string, number, bool or string-list, plus a null sentinel for
// absent attributes. Keeping the set closed keeps every operator comparison
// well-defined.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Flag bool
	List []string
}

func Null() Value               { return Value{Kind: KindNull} }
func String(s string) Value     { return Value{Kind: KindString, Str: s} }
func Number(n float64) Value    { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value         { return Value{Kind: KindBool, Flag: b} }
func StringList(s []string) Value {
	return Value{Kind: KindStringList, List: append([]string(nil), s...)}
}

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) clone() Value {
	if v.Kind == KindStringList {
		v.List = append([]string(nil), v.List...)
	}
	return v
}

// Text renders the value the way condition strings and substring matching
// see it. Null renders empty.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Flag)
	case KindStringList:
		return strings.Join(v.List, ",")
	}
	return ""
}

// Equal is strict value equality: kinds must match and contents must be
// identical. A null never equals anything, including another null, so
// conditions over absent attributes always fail.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Kind == KindNull {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Flag == o.Flag
	case KindStringList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != o.List[i] {
				return false
			}
		}
		return true
	}
	return false
}

// AsNumber reports the numeric value, accepting numeric strings so that
// policies authored with quoted numbers still compare.
func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// fromAny converts decoded JSON/YAML scalars into the union. Unsupported
// shapes collapse to null.
func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case float64:
		return Number(t)
	case []any:
		list := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				list = append(list, s)
			} else {
				list = append(list, fmt.Sprint(item))
			}
		}
		return Value{Kind: KindStringList, List: list}
	case []string:
		return StringList(t)
	}
	return Null()
}

// MarshalJSON emits the natural scalar form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Flag)
	case KindStringList:
		return json.Marshal(v.List)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

// UnmarshalYAML accepts the same scalar forms as JSON.
func (v *Value) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	switch v.Kind {
	case KindString:
		return v.Str, nil
	case KindNumber:
		return v.Num, nil
	case KindBool:
		return v.Flag, nil
	case KindStringList:
		return v.List, nil
	}
	return nil, nil
}
