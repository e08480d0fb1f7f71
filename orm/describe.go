package orm

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm/schema"
)

// ColumnDefinition describes one persisted field of a model
type ColumnDefinition struct {
	Field       string
	Column      string
	SerializeAs string
	IsPrimary   bool
	Hidden      bool
}

// RelationDefinition describes one relation of a model
type RelationDefinition struct {
	Name       string
	Type       string
	Table      string
	ForeignKey string
	LocalKey   string
	PivotTable string
}

// ModelDefinition is what Describe learns about a model
type ModelDefinition struct {
	Name       string
	Table      string
	PrimaryKey string
	Columns    []ColumnDefinition
	Relations  map[string]RelationDefinition

	schema *schema.Schema
}

// Column returns the column definition of a struct field
func (md *ModelDefinition) Column(field string) (ColumnDefinition, bool) {
	for _, c := range md.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

var (
	schemaCaches     = &sync.Map{}
	definitionsCache = &sync.Map{}
)

// gorm caches schemas per type, a cache per table prefix keeps prefixed
// and plain table names apart
func schemaCacheFor(prefix string) *sync.Map {
	c, _ := schemaCaches.LoadOrStore(prefix, &sync.Map{})
	return c.(*sync.Map)
}

// Describe parses model with the default naming strategy, definitions are cached per type
func Describe(model any) (*ModelDefinition, error) {
	return DescribeWith(model, DefaultNamingStrategy)
}

// DescribeWith parses model with naming, definitions are cached per type
// and table prefix
func DescribeWith(model any, naming SnakeCaseNamingStrategy) (*ModelDefinition, error) {
	t := reflect.TypeOf(model)
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T", schema.ErrUnsupportedDataType, model)
	}

	key := naming.TablePrefix + "|" + t.PkgPath() + "." + t.Name()
	if md, ok := definitionsCache.Load(key); ok {
		return md.(*ModelDefinition), nil
	}

	s, err := schema.Parse(reflect.New(t).Interface(), schemaCacheFor(naming.TablePrefix), naming)
	if err != nil {
		return nil, err
	}

	md := &ModelDefinition{
		Name:      s.Name,
		Table:     s.Table,
		Relations: make(map[string]RelationDefinition, len(s.Relationships.Relations)),
		schema:    s,
	}

	if s.PrioritizedPrimaryField != nil {
		md.PrimaryKey = s.PrioritizedPrimaryField.DBName
	}

	for _, f := range s.Fields {
		if f.DBName == "" {
			continue
		}

		serializeAs, hidden := serializedName(f, naming)

		md.Columns = append(md.Columns, ColumnDefinition{
			Field:       f.Name,
			Column:      f.DBName,
			SerializeAs: serializeAs,
			IsPrimary:   f.PrimaryKey,
			Hidden:      hidden,
		})
	}

	for name, rel := range s.Relationships.Relations {
		md.Relations[name] = describeRelation(name, rel, s, naming)
	}

	actual, _ := definitionsCache.LoadOrStore(key, md)
	return actual.(*ModelDefinition), nil
}

// serializedName reads the serialize tag, "-" hides the field
func serializedName(f *schema.Field, naming SnakeCaseNamingStrategy) (string, bool) {
	tag, ok := f.Tag.Lookup("serialize")
	if !ok {
		return naming.SerializedName(f.Name), false
	}

	name := strings.SplitN(tag, ",", 2)[0]
	if name == "-" {
		return "", true
	}
	if name == "" {
		name = naming.SerializedName(f.Name)
	}
	return name, false
}

func describeRelation(name string, rel *schema.Relationship, s *schema.Schema, naming SnakeCaseNamingStrategy) RelationDefinition {
	rd := RelationDefinition{
		Name:  name,
		Type:  string(rel.Type),
		Table: rel.FieldSchema.Table,
	}

	if rel.JoinTable != nil {
		rd.PivotTable = rel.JoinTable.Table
	}

	for _, ref := range rel.References {
		if ref.PrimaryKey == nil || ref.ForeignKey == nil {
			continue
		}
		rd.ForeignKey = ref.ForeignKey.DBName
		rd.LocalKey = ref.PrimaryKey.DBName
		break
	}

	if rd.ForeignKey == "" {
		rd.ForeignKey = naming.RelationForeignKey(rd.Type, s.Name, rel.FieldSchema.Name)
		rd.LocalKey = naming.RelationLocalKey(rd.Type, s.Name, rel.FieldSchema.Name)
	}

	return rd
}

// RelationNames returns the sorted relation names of the model
func (md *ModelDefinition) RelationNames() []string {
	names := make([]string, 0, len(md.Relations))
	for name := range md.Relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
