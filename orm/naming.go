package orm

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/kubit-go/kubit/database"
	"gorm.io/gorm/schema"
)

// SnakeCaseNamingStrategy names tables in plural snake case and everything
// else in snake case. It is handed to gorm as its naming strategy.
type SnakeCaseNamingStrategy struct {
	schema.NamingStrategy
}

var DefaultNamingStrategy = SnakeCaseNamingStrategy{}

// TableName users for User, blog_posts for BlogPost
func (s SnakeCaseNamingStrategy) TableName(model string) string {
	return s.TablePrefix + inflection.Plural(s.snake(model))
}

// SerializedName is the key a field is serialized under
func (s SnakeCaseNamingStrategy) SerializedName(field string) string {
	return s.snake(field)
}

// RelationLocalKey is the key on the model a relation points at
func (s SnakeCaseNamingStrategy) RelationLocalKey(relation, model, related string) string {
	if relation == string(schema.BelongsTo) {
		return s.snake(related) + "_id"
	}
	return "id"
}

// RelationForeignKey is the key holding the reference (IE: user_id on posts)
func (s SnakeCaseNamingStrategy) RelationForeignKey(relation, model, related string) string {
	if relation == string(schema.BelongsTo) {
		return "id"
	}
	return s.snake(model) + "_id"
}

// RelationPivotTable joins the singular names sorted (IE: skill_user)
func (s SnakeCaseNamingStrategy) RelationPivotTable(model, related string) string {
	names := []string{
		inflection.Singular(s.snake(model)),
		inflection.Singular(s.snake(related)),
	}
	sort.Strings(names)
	return s.TablePrefix + strings.Join(names, "_")
}

// RelationPivotForeignKey is the key of model in a pivot table
func (s SnakeCaseNamingStrategy) RelationPivotForeignKey(model string) string {
	return inflection.Singular(s.snake(model)) + "_id"
}

// PaginationMetaKeys returns the keys of the pagination meta
func (s SnakeCaseNamingStrategy) PaginationMetaKeys() database.MetaKeys {
	return database.SnakeCaseMetaKeys
}

func (s SnakeCaseNamingStrategy) snake(name string) string {
	return s.NamingStrategy.ColumnName("", name)
}

var _ schema.Namer = SnakeCaseNamingStrategy{}
