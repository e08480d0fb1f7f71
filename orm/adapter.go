package orm

import (
	"context"
	"errors"
	"fmt"

	"github.com/kubit-go/kubit/database"
	kerrors "github.com/kubit-go/kubit/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Adapter runs model queries on the connection of each model
type Adapter struct {
	db     *database.Database
	naming SnakeCaseNamingStrategy
}

func NewAdapter(db *database.Database, naming SnakeCaseNamingStrategy) *Adapter {
	return &Adapter{db: db, naming: naming}
}

func (a *Adapter) Database() *database.Database             { return a.db }
func (a *Adapter) NamingStrategy() SnakeCaseNamingStrategy { return a.naming }

// ModelConnection returns the connection of model, the primary one unless
// the model implements ConnectionNamer
func (a *Adapter) ModelConnection(ctx context.Context, model any) (*gorm.DB, error) {
	var name string
	if cn, ok := model.(ConnectionNamer); ok {
		name = cn.ConnectionName()
	}

	conn, err := a.db.Connection(name)
	if err != nil {
		return nil, err
	}
	return conn.WithContext(ctx), nil
}

func (a *Adapter) Describe(model any) (*ModelDefinition, error) {
	return DescribeWith(model, a.naming)
}

func (a *Adapter) Serialize(model any) (map[string]any, error) {
	return SerializeWith(model, a.naming)
}

// Save inserts or updates model
func (a *Adapter) Save(ctx context.Context, model any) error {
	conn, err := a.ModelConnection(ctx, model)
	if err != nil {
		return err
	}
	return conn.Save(model).Error
}

func (a *Adapter) Delete(ctx context.Context, model any) error {
	conn, err := a.ModelConnection(ctx, model)
	if err != nil {
		return err
	}
	return conn.Delete(model).Error
}

// Refresh reloads model from the database by its primary key
func (a *Adapter) Refresh(ctx context.Context, model any) error {
	conn, err := a.ModelConnection(ctx, model)
	if err != nil {
		return err
	}

	err = conn.First(model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return kerrors.WrapNotFound(fmt.Errorf("%s: %w", a.modelName(model), err))
	}
	return err
}

func (a *Adapter) modelName(model any) string {
	if md, err := a.Describe(model); err == nil {
		return md.Name
	}
	return fmt.Sprintf("%T", model)
}

// Query starts a query on the table of T
func Query[T any](ctx context.Context, a *Adapter, scopes ...Scope) (*gorm.DB, error) {
	model := new(T)

	conn, err := a.ModelConnection(ctx, model)
	if err != nil {
		return nil, err
	}
	return conn.Model(model).Scopes(scopes...), nil
}

// Find returns the row with the given primary key, nil when there is none
func Find[T any](ctx context.Context, a *Adapter, id any) (*T, error) {
	m, err := FindOrFail[T](ctx, a, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return m, err
}

// FindOrFail is Find returning a not found error (404) when there is no row
func FindOrFail[T any](ctx context.Context, a *Adapter, id any) (*T, error) {
	md, err := a.Describe(new(T))
	if err != nil {
		return nil, err
	}
	return FindByOrFail[T](ctx, a, md.PrimaryKey, id)
}

// FindBy returns the first row where column equals value, nil when there is none
func FindBy[T any](ctx context.Context, a *Adapter, column string, value any) (*T, error) {
	m, err := FindByOrFail[T](ctx, a, column, value)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return m, err
}

func FindByOrFail[T any](ctx context.Context, a *Adapter, column string, value any) (*T, error) {
	q, err := Query[T](ctx, a)
	if err != nil {
		return nil, err
	}

	m := new(T)
	err = q.Where(clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: column}, Value: value}).
		Take(m).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, kerrors.WrapNotFound(fmt.Errorf("%s with %s %v: %w", a.modelName(m), column, value, err))
	}
	if err != nil {
		return nil, err
	}

	return m, nil
}

// All returns every row of T ordered by primary key
func All[T any](ctx context.Context, a *Adapter, scopes ...Scope) ([]T, error) {
	q, err := Query[T](ctx, a, scopes...)
	if err != nil {
		return nil, err
	}

	rows := []T{}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Paginate loads one page of T
func Paginate[T any](ctx context.Context, a *Adapter, page, perPage int, scopes ...Scope) (*ModelPaginator[T], error) {
	q, err := Query[T](ctx, a, scopes...)
	if err != nil {
		return nil, err
	}

	p, err := database.Paginate[T](q, page, perPage)
	if err != nil {
		return nil, err
	}

	p.NamingStrategy(a.naming.PaginationMetaKeys())

	return &ModelPaginator[T]{SimplePaginator: p, naming: a.naming}, nil
}
