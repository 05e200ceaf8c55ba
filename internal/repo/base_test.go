package repo

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type widget struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&widget{}))
	return conn
}

func TestNewBaseStoresConnection(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)
	assert.Same(t, db, base.DB(nil))
}

func TestBaseDB_BindsContext(t *testing.T) {
	base := NewBase(newTestDB(t))
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	bound := base.DB(ctx)
	assert.Equal(t, "v", bound.Statement.Context.Value(key{}))
	assert.NotNil(t, base.DB(nil))
}

func TestLockedQueryStillReadsOnSQLite(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&widget{Name: "ring"}).Error)

	base := NewBase(db)
	var got widget
	require.NoError(t, base.Locked(context.Background()).Where("name = ?", "ring").First(&got).Error)
	assert.Equal(t, "ring", got.Name)

	err := base.DB(context.Background()).Where("name = ?", "missing").First(&got).Error
	assert.True(t, IsNotFound(err))
}
