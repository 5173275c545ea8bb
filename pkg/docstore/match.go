package docstore

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The in-memory backend understands the subset of the MongoDB query language
// the repository itself emits plus the common comparison operators:
// implicit equality, $eq $ne $gt $gte $lt $lte $in $nin $exists, $and $or.
// Dotted paths are not resolved.

// normalize round-trips v through BSON so documents, filters and updates all
// carry the same value types (primitive.DateTime, int32/int64, primitive.A).
func normalize(v interface{}) (bson.M, error) {
	if v == nil {
		return bson.M{}, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func normalizeD(v interface{}) (bson.D, error) {
	if v == nil {
		return bson.D{}, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func asDoc(v interface{}) (bson.D, bool) {
	switch t := v.(type) {
	case bson.D:
		return t, true
	case bson.M:
		return mapToD(t), true
	case map[string]interface{}:
		return mapToD(t), true
	}
	return nil, false
}

func mapToD(m map[string]interface{}) bson.D {
	d := make(bson.D, 0, len(m))
	for k, v := range m {
		d = append(d, bson.E{Key: k, Value: v})
	}
	return d
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case bson.A:
		return t, true
	case []interface{}:
		return t, true
	}
	return nil, false
}

func isOperatorDoc(d bson.D) bool {
	if len(d) == 0 {
		return false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return false
		}
	}
	return true
}

func matches(doc bson.M, filter bson.D) (bool, error) {
	for _, e := range filter {
		switch e.Key {
		case "$and", "$or":
			clauses, ok := asArray(e.Value)
			if !ok || len(clauses) == 0 {
				return false, fmt.Errorf("docstore: %s needs a non-empty array", e.Key)
			}
			hit := e.Key == "$and"
			for _, c := range clauses {
				sub, ok := asDoc(c)
				if !ok {
					return false, fmt.Errorf("docstore: %s clause is not a document", e.Key)
				}
				m, err := matches(doc, sub)
				if err != nil {
					return false, err
				}
				if e.Key == "$and" && !m {
					hit = false
					break
				}
				if e.Key == "$or" && m {
					hit = true
					break
				}
			}
			if !hit {
				return false, nil
			}
		default:
			if strings.HasPrefix(e.Key, "$") {
				return false, fmt.Errorf("docstore: unsupported query operator %q", e.Key)
			}
			val, present := doc[e.Key]
			m, err := matchField(val, present, e.Value)
			if err != nil || !m {
				return false, err
			}
		}
	}
	return true, nil
}

func matchField(val interface{}, present bool, cond interface{}) (bool, error) {
	ops, ok := asDoc(cond)
	if !ok || !isOperatorDoc(ops) {
		if cond == nil {
			return !present || val == nil, nil
		}
		return present && equalOrContains(val, cond), nil
	}
	for _, op := range ops {
		switch op.Key {
		case "$eq":
			if !present || !equalOrContains(val, op.Value) {
				return false, nil
			}
		case "$ne":
			if present && equalOrContains(val, op.Value) {
				return false, nil
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !present {
				return false, nil
			}
			c, ok := compare(val, op.Value)
			if !ok {
				return false, nil
			}
			if (op.Key == "$gt" && c <= 0) || (op.Key == "$gte" && c < 0) ||
				(op.Key == "$lt" && c >= 0) || (op.Key == "$lte" && c > 0) {
				return false, nil
			}
		case "$in", "$nin":
			list, ok := asArray(op.Value)
			if !ok {
				return false, fmt.Errorf("docstore: %s needs an array", op.Key)
			}
			found := false
			if present {
				for _, candidate := range list {
					if equalOrContains(val, candidate) {
						found = true
						break
					}
				}
			}
			if found != (op.Key == "$in") {
				return false, nil
			}
		case "$exists":
			want, _ := op.Value.(bool)
			if want != present {
				return false, nil
			}
		default:
			return false, fmt.Errorf("docstore: unsupported field operator %q", op.Key)
		}
	}
	return true, nil
}

// equalOrContains also matches when the field is an array holding want,
// like MongoDB does for array fields.
func equalOrContains(val, want interface{}) bool {
	if equal(val, want) {
		return true
	}
	if arr, ok := asArray(val); ok {
		for _, el := range arr {
			if equal(el, want) {
				return true
			}
		}
	}
	return false
}

func equal(a, b interface{}) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two scalars of compatible BSON types.
func compare(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return cmp(fa, fb), true
		}
		return 0, false
	}
	if ta, ok := toDateTime(a); ok {
		if tb, ok := toDateTime(b); ok {
			return cmp(int64(ta), int64(tb)), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			if x == y {
				return 0, true
			}
			if !x {
				return -1, true
			}
			return 1, true
		}
	case primitive.ObjectID:
		if y, ok := b.(primitive.ObjectID); ok {
			return strings.Compare(x.Hex(), y.Hex()), true
		}
	}
	return 0, false
}

func cmp[N int64 | float64](a, b N) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toDateTime(v interface{}) (primitive.DateTime, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return t, true
	case time.Time:
		return primitive.NewDateTimeFromTime(t), true
	}
	return 0, false
}
