package orm

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Scope is a reusable query constraint, it is a gorm scope
//
//	published := func(q *gorm.DB) *gorm.DB { return q.Where("published_at IS NOT NULL") }
//	posts, err := orm.All[Post](ctx, adapter, published, orm.OrderBy("id", "desc"))
type Scope = func(*gorm.DB) *gorm.DB

// Where constrains column to equal value
func Where(column string, value any) Scope {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where(clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: column}, Value: value})
	}
}

// OrderBy orders by column, direction is asc unless it is desc
func OrderBy(column, direction string) Scope {
	return func(q *gorm.DB) *gorm.DB {
		return q.Order(clause.OrderByColumn{
			Column: clause.Column{Table: clause.CurrentTable, Name: column},
			Desc:   strings.EqualFold(direction, "desc"),
		})
	}
}

// Preload eager loads relations
func Preload(relations ...string) Scope {
	return func(q *gorm.DB) *gorm.DB {
		for _, r := range relations {
			q = q.Preload(r)
		}
		return q
	}
}

// Search matches column against a LIKE pattern built from term
func Search(column, term string) Scope {
	return func(q *gorm.DB) *gorm.DB {
		if term == "" {
			return q
		}
		return q.Where(clause.Like{Column: clause.Column{Table: clause.CurrentTable, Name: column}, Value: fmt.Sprintf("%%%s%%", term)})
	}
}
