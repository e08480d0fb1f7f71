package factory

import (
	"context"
	"testing"

	"github.com/kubit-go/kubit/database"
	"github.com/kubit-go/kubit/orm"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type User struct {
	orm.BaseModel
	Email   string
	Role    string
	Balance decimal.Decimal `gorm:"type:decimal(10,2)"`
	Posts   []Post
}

type Post struct {
	orm.BaseModel
	UserID uint
	Title  string
}

func newTestManager(t *testing.T) *FactoryManager {
	t.Helper()

	logger, _ := test.NewNullLogger()

	db, err := database.New(database.Config{
		Connection:  "primary",
		Connections: map[string]database.ConnectionConfig{"primary": {Client: "sqlite"}},
	}, database.Options{Logger: logger, NamingStrategy: orm.DefaultNamingStrategy})
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close(context.Background()) })

	conn, err := db.Connection()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&User{}, &Post{}))

	return NewFactoryManager(db, orm.DefaultNamingStrategy)
}

func defineFactories(m *FactoryManager) (*Factory[User], *Factory[Post]) {
	posts := Define(m, func(fc *FactoryContext) Post {
		return Post{Title: fc.Faker.Sentence(3)}
	})

	users := Define(m, func(fc *FactoryContext) User {
		return User{
			Email:   fc.Faker.Email(),
			Role:    "member",
			Balance: fc.Decimal(1, 100, 2),
		}
	}).
		State("admin", func(u *User, _ *FactoryContext) { u.Role = "admin" }).
		Relation("Posts", posts)

	return users, posts
}

func TestMake(t *testing.T) {
	m := newTestManager(t)
	users, _ := defineFactories(m)

	first, err := users.Make()
	require.NoError(t, err)
	second, err := users.Make()
	require.NoError(t, err)

	assert.Equal(t, uint(1), first.ID)
	assert.Equal(t, uint(2), second.ID)
	assert.NotEmpty(t, first.Email)
	assert.Equal(t, "member", first.Role)
	assert.True(t, first.Balance.GreaterThanOrEqual(decimal.NewFromInt(1)))

	conn, _ := m.Database().Connection()
	var count int64
	conn.Model(&User{}).Count(&count)
	assert.Zero(t, count, "made models are not persisted")

	t.Run("it should apply states then merges", func(t *testing.T) {
		u, err := users.Query().
			Apply("admin").
			Merge(func(u *User) { u.Email = "virk@adonisjs.com" }).
			Make()
		require.NoError(t, err)

		assert.Equal(t, "admin", u.Role)
		assert.Equal(t, "virk@adonisjs.com", u.Email)
	})

	t.Run("it should fail on unknown states and relations", func(t *testing.T) {
		_, err := users.Query().Apply("banned").Make()
		assert.ErrorIs(t, err, ErrUnknownState)

		_, err = users.Query().With("Comments", 1).Make()
		assert.ErrorIs(t, err, ErrUnknownRelation)
	})

	t.Run("it should link stubbed relations", func(t *testing.T) {
		u, err := users.Query().With("Posts", 2, func(p any) { p.(*Post).Title = "hello" }).Make()
		require.NoError(t, err)

		require.Len(t, u.Posts, 2)
		for _, p := range u.Posts {
			assert.Equal(t, u.ID, p.UserID)
			assert.NotZero(t, p.ID)
			assert.Equal(t, "hello", p.Title)
		}
	})

	t.Run("it should make many with sequential ids", func(t *testing.T) {
		m.ResetSequences()

		many, err := users.MakeMany(3)
		require.NoError(t, err)
		require.Len(t, many, 3)
		assert.Equal(t, uint(3), many[2].ID)
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	users, posts := defineFactories(m)

	conn, err := m.Database().Connection()
	require.NoError(t, err)

	u, err := users.Query().With("Posts", 3).Create(ctx)
	require.NoError(t, err)
	require.NotZero(t, u.ID)

	var count int64
	require.NoError(t, conn.Model(&Post{}).Where("user_id = ?", u.ID).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	many, err := posts.Query().Merge(func(p *Post) { p.UserID = u.ID }).CreateMany(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, many, 2)
	assert.NotEqual(t, many[0].ID, many[1].ID)

	t.Run("it should create with the given client", func(t *testing.T) {
		err := conn.Transaction(func(tx *gorm.DB) error {
			_, err := users.Query().Client(tx).Create(ctx)
			require.NoError(t, err)
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		var total int64
		conn.Model(&User{}).Count(&total)
		assert.Equal(t, int64(1), total)
	})

	t.Run("it should fail on unknown connections", func(t *testing.T) {
		_, err := users.Query().Connection("missing").Create(ctx)
		assert.ErrorIs(t, err, database.ErrConnectionNotFound)
	})
}

func TestFactoryManager(t *testing.T) {
	m := newTestManager(t)
	users, _ := defineFactories(m)

	assert.Equal(t, []string{"Post", "User"}, m.Names())
	assert.True(t, m.Has("User"))

	found, err := Get[User](m)
	require.NoError(t, err)
	assert.Same(t, users, found)

	_, err = Get[struct{ Name string }](m)
	assert.ErrorIs(t, err, ErrFactoryNotFound)

	m.Seed(42)
	a, _ := users.Make()

	other := newTestManager(t)
	otherUsers, _ := defineFactories(other)
	other.Seed(42)
	b, _ := otherUsers.Make()

	assert.Equal(t, a.Email, b.Email)
}

func TestDecimal(t *testing.T) {
	fc := &FactoryContext{Faker: NewFactoryManager(nil, orm.DefaultNamingStrategy).Faker()}

	for i := 0; i < 20; i++ {
		d := fc.Decimal(10, 20, 2)
		assert.True(t, d.GreaterThanOrEqual(decimal.NewFromInt(10)), d.String())
		assert.True(t, d.LessThanOrEqual(decimal.NewFromInt(20)), d.String())
		assert.LessOrEqual(t, -d.Exponent(), int32(2))
	}
}
