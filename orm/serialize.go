package orm

import (
	"context"
	"reflect"
)

// Serialize turns a model into a map keyed by the serialized column names,
// hidden columns are left out and loaded relations are serialized too
func Serialize(model any) (map[string]any, error) {
	return SerializeWith(model, DefaultNamingStrategy)
}

func SerializeWith(model any, naming SnakeCaseNamingStrategy) (map[string]any, error) {
	md, err := DescribeWith(model, naming)
	if err != nil {
		return nil, err
	}

	rv := reflect.Indirect(reflect.ValueOf(model))
	if !rv.IsValid() {
		return nil, nil
	}

	ctx := context.Background()
	ret := make(map[string]any, len(md.Columns))

	for _, c := range md.Columns {
		if c.Hidden {
			continue
		}

		field, ok := md.schema.FieldsByName[c.Field]
		if !ok {
			continue
		}

		v, _ := field.ValueOf(ctx, rv)
		ret[c.SerializeAs] = v
	}

	for name, rel := range md.schema.Relationships.Relations {
		v, zero := rel.Field.ValueOf(ctx, rv)
		if zero {
			continue
		}

		serialized, err := serializeRelated(reflect.ValueOf(v), naming)
		if err != nil {
			return nil, err
		}

		ret[naming.SerializedName(name)] = serialized
	}

	return ret, nil
}

func serializeRelated(v reflect.Value, naming SnakeCaseNamingStrategy) (any, error) {
	v = reflect.Indirect(v)

	if v.Kind() != reflect.Slice {
		return SerializeWith(v.Interface(), naming)
	}

	rows := make([]map[string]any, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		row, err := SerializeWith(v.Index(i).Interface(), naming)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SerializeMany serializes every model of rows
func SerializeMany[T any](rows []T, naming SnakeCaseNamingStrategy) ([]map[string]any, error) {
	ret := make([]map[string]any, 0, len(rows))
	for i := range rows {
		row, err := SerializeWith(&rows[i], naming)
		if err != nil {
			return nil, err
		}
		ret = append(ret, row)
	}
	return ret, nil
}
