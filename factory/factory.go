package factory

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/kubit-go/kubit/orm"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StateFunc tweaks a model built by the definition
type StateFunc[T any] func(m *T, fc *FactoryContext)

// RelatedFactory is a factory used to build the relation of another model
type RelatedFactory interface {
	buildRelated(ctx context.Context, fc *FactoryContext, count int, taps []func(any)) ([]reflect.Value, error)
}

// Factory defines how to fake a T
type Factory[T any] struct {
	manager   *FactoryManager
	name      string
	define    func(fc *FactoryContext) T
	states    map[string]StateFunc[T]
	relations map[string]RelatedFactory
}

// Define registers the factory of T on m
func Define[T any](m *FactoryManager, define func(fc *FactoryContext) T) *Factory[T] {
	f := &Factory[T]{
		manager:   m,
		name:      modelName[T](),
		define:    define,
		states:    make(map[string]StateFunc[T]),
		relations: make(map[string]RelatedFactory),
	}

	m.register(f.name, f)
	return f
}

// State adds a named state, builders apply it with Apply
func (f *Factory[T]) State(name string, fn StateFunc[T]) *Factory[T] {
	f.states[name] = fn
	return f
}

// Relation names the factory building the field of T, builders use it with With
func (f *Factory[T]) Relation(field string, related RelatedFactory) *Factory[T] {
	f.relations[field] = related
	return f
}

// Query starts a builder
func (f *Factory[T]) Query() *Builder[T] {
	return &Builder[T]{factory: f}
}

func (f *Factory[T]) Make() (*T, error)                          { return f.Query().Make() }
func (f *Factory[T]) MakeMany(n int) ([]*T, error)                { return f.Query().MakeMany(n) }
func (f *Factory[T]) Create(ctx context.Context) (*T, error)     { return f.Query().Create(ctx) }
func (f *Factory[T]) CreateMany(ctx context.Context, n int) ([]*T, error) {
	return f.Query().CreateMany(ctx, n)
}

func (f *Factory[T]) buildRelated(ctx context.Context, fc *FactoryContext, count int, taps []func(any)) ([]reflect.Value, error) {
	b := f.Query()
	ret := make([]reflect.Value, 0, count)

	for i := 0; i < count; i++ {
		m, err := b.build(ctx, fc)
		if err != nil {
			return nil, err
		}

		for _, tap := range taps {
			tap(m)
		}

		ret = append(ret, reflect.ValueOf(m))
	}

	return ret, nil
}

type withRelation struct {
	field string
	count int
	taps  []func(any)
}

// Builder configures one make or create call
type Builder[T any] struct {
	factory    *Factory[T]
	states     []string
	merges     []func(m *T)
	relations  []withRelation
	connection string
	client     *gorm.DB
}

// Merge overrides attributes after the definition and the states ran
func (b *Builder[T]) Merge(fns ...func(m *T)) *Builder[T] {
	b.merges = append(b.merges, fns...)
	return b
}

// Apply applies states in order
func (b *Builder[T]) Apply(states ...string) *Builder[T] {
	b.states = append(b.states, states...)
	return b
}

// With builds count models of the relation field, taps receive each related
// model (a pointer) before it is attached
func (b *Builder[T]) With(field string, count int, taps ...func(m any)) *Builder[T] {
	b.relations = append(b.relations, withRelation{field: field, count: count, taps: taps})
	return b
}

// Connection creates models on the named connection
func (b *Builder[T]) Connection(name string) *Builder[T] {
	b.connection = name
	return b
}

// Client creates models with tx (IE: inside a transaction)
func (b *Builder[T]) Client(tx *gorm.DB) *Builder[T] {
	b.client = tx
	return b
}

// Make builds a stubbed model, it gets a sequential id and is never persisted
func (b *Builder[T]) Make() (*T, error) {
	return b.build(context.Background(), b.context(true, nil))
}

func (b *Builder[T]) MakeMany(n int) ([]*T, error) {
	fc := b.context(true, nil)

	ret := make([]*T, 0, n)
	for i := 0; i < n; i++ {
		m, err := b.build(context.Background(), fc)
		if err != nil {
			return nil, err
		}
		ret = append(ret, m)
	}
	return ret, nil
}

// Create builds and persists a model, relations built by With are saved along
func (b *Builder[T]) Create(ctx context.Context) (*T, error) {
	ms, err := b.CreateMany(ctx, 1)
	if err != nil {
		return nil, err
	}
	return ms[0], nil
}

func (b *Builder[T]) CreateMany(ctx context.Context, n int) ([]*T, error) {
	conn, err := b.conn(ctx)
	if err != nil {
		return nil, err
	}

	fc := b.context(false, conn)

	ret := make([]*T, 0, n)
	for i := 0; i < n; i++ {
		m, err := b.build(ctx, fc)
		if err != nil {
			return nil, err
		}

		if err := conn.Create(m).Error; err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", b.factory.name, err)
		}

		ret = append(ret, m)
	}
	return ret, nil
}

func (b *Builder[T]) conn(ctx context.Context) (*gorm.DB, error) {
	if b.client != nil {
		return b.client.WithContext(ctx), nil
	}

	name := b.connection
	if name == "" {
		if cn, ok := any(new(T)).(orm.ConnectionNamer); ok {
			name = cn.ConnectionName()
		}
	}

	conn, err := b.factory.manager.db.Connection(name)
	if err != nil {
		return nil, err
	}
	return conn.WithContext(ctx), nil
}

func (b *Builder[T]) context(stubbed bool, tx *gorm.DB) *FactoryContext {
	return &FactoryContext{
		Faker:     b.factory.manager.Faker(),
		IsStubbed: stubbed,
		Tx:        tx,
	}
}

func (b *Builder[T]) build(ctx context.Context, fc *FactoryContext) (*T, error) {
	f := b.factory

	m := f.define(fc)

	for _, name := range b.states {
		state, ok := f.states[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnknownState, name, f.name)
		}
		state(&m, fc)
	}

	for _, merge := range b.merges {
		merge(&m)
	}

	md, err := orm.DescribeWith(&m, f.manager.naming)
	if err != nil {
		return nil, err
	}

	rv := reflect.ValueOf(&m).Elem()

	if fc.IsStubbed {
		stubPrimaryKey(md, rv, f.manager.nextID(f.name))
	}

	for _, rel := range b.relations {
		related, ok := f.relations[rel.field]
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnknownRelation, rel.field, f.name)
		}

		values, err := related.buildRelated(ctx, fc, rel.count, rel.taps)
		if err != nil {
			return nil, err
		}

		if err := attach(md, rv, rel.field, values, fc.IsStubbed); err != nil {
			return nil, err
		}
	}

	return &m, nil
}

func stubPrimaryKey(md *orm.ModelDefinition, rv reflect.Value, id uint64) {
	for _, c := range md.Columns {
		if !c.IsPrimary {
			continue
		}

		fv := rv.FieldByName(c.Field)
		if !fv.IsValid() || !fv.CanSet() || !fv.IsZero() {
			return
		}

		switch fv.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fv.SetUint(id)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fv.SetInt(int64(id))
		case reflect.String:
			fv.SetString(fmt.Sprint(id))
		default:
			if fv.Type() == reflect.TypeOf(uuid.UUID{}) {
				fv.Set(reflect.ValueOf(uuid.New()))
			}
		}
		return
	}
}

// attach sets the related models on field, stubbed models get their foreign
// keys set since gorm does it only when saving
func attach(md *orm.ModelDefinition, rv reflect.Value, field string, values []reflect.Value, stubbed bool) error {
	fv := rv.FieldByName(field)
	if !fv.IsValid() || !fv.CanSet() {
		return fmt.Errorf("%w: %s is not a field of %s", ErrUnknownRelation, field, md.Name)
	}

	if stubbed {
		if rel, ok := md.Relations[field]; ok {
			for _, v := range values {
				linkStub(md, rv, rel, v.Elem())
			}
		}
	}

	switch fv.Kind() {
	case reflect.Slice:
		ptrs := fv.Type().Elem().Kind() == reflect.Ptr
		slice := reflect.MakeSlice(fv.Type(), 0, len(values))
		for _, v := range values {
			if ptrs {
				slice = reflect.Append(slice, v)
			} else {
				slice = reflect.Append(slice, v.Elem())
			}
		}
		fv.Set(slice)
	case reflect.Ptr:
		if len(values) > 0 {
			fv.Set(values[0])
		}
	case reflect.Struct:
		if len(values) > 0 {
			fv.Set(values[0].Elem())
		}
	default:
		return fmt.Errorf("%w: %s of %s cannot hold models", ErrUnknownRelation, field, md.Name)
	}

	return nil
}

func linkStub(md *orm.ModelDefinition, parent reflect.Value, rel orm.RelationDefinition, related reflect.Value) {
	relatedMD, err := orm.Describe(related.Addr().Interface())
	if err != nil {
		return
	}

	switch schema.RelationshipType(rel.Type) {
	case schema.HasOne, schema.HasMany:
		copyColumn(relatedMD, related, rel.ForeignKey, md, parent, rel.LocalKey)
	case schema.BelongsTo:
		copyColumn(md, parent, rel.ForeignKey, relatedMD, related, rel.LocalKey)
	}
}

// copyColumn sets the dst column to the value of the src column
func copyColumn(dstMD *orm.ModelDefinition, dst reflect.Value, dstColumn string, srcMD *orm.ModelDefinition, src reflect.Value, srcColumn string) {
	dstField := fieldOfColumn(dstMD, dstColumn)
	srcField := fieldOfColumn(srcMD, srcColumn)
	if dstField == "" || srcField == "" {
		return
	}

	dv := dst.FieldByName(dstField)
	sv := src.FieldByName(srcField)

	if dv.CanSet() && sv.IsValid() && sv.Type().ConvertibleTo(dv.Type()) {
		dv.Set(sv.Convert(dv.Type()))
	}
}

func fieldOfColumn(md *orm.ModelDefinition, column string) string {
	for _, c := range md.Columns {
		if c.Column == column {
			return c.Field
		}
	}
	return ""
}
