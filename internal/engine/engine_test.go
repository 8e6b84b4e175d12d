package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aethra/gridbase/internal/ast"
	"github.com/aethra/gridbase/internal/audit"
	"github.com/aethra/gridbase/internal/auth"
	"github.com/aethra/gridbase/internal/config"
	"github.com/aethra/gridbase/internal/meta"
	"github.com/aethra/gridbase/internal/models"
)

// engineFixture seeds a library schema end to end: physical tables plus
// the metadata describing them, with a has-many link from Authors to
// Books and its belongs-to counterpart.
type engineFixture struct {
	db    *gorm.DB
	store *meta.Store
	deps  Deps

	authors *models.Model
	books   *models.Model
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Project{}, &models.Model{}, &models.Column{},
		&models.LinkColumnOption{}, &models.LookupColumnOption{}, &models.RollupColumnOption{},
		&models.View{}, &models.ViewColumn{}, &models.Filter{}, &models.Sort{},
		&models.Audit{},
	))

	require.NoError(t, db.Exec(`CREATE TABLE authors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		country TEXT
	)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT,
		author_id INTEGER
	)`).Error)

	project := models.Project{ID: uuid.New(), Title: "Library", IsActive: true}
	require.NoError(t, db.Create(&project).Error)

	authorModel := models.Model{ID: uuid.New(), ProjectID: project.ID, Title: "Authors", TableName: "authors", IsActive: true}
	bookModel := models.Model{ID: uuid.New(), ProjectID: project.ID, Title: "Books", TableName: "books", IsActive: true}
	require.NoError(t, db.Create(&authorModel).Error)
	require.NoError(t, db.Create(&bookModel).Error)

	mkCol := func(modelID uuid.UUID, col models.Column) uuid.UUID {
		col.ID = uuid.New()
		col.ModelID = modelID
		require.NoError(t, db.Create(&col).Error)
		return col.ID
	}

	authorID := mkCol(authorModel.ID, models.Column{Title: "Id", ColumnName: "id", UIDT: models.UITypeID, IsPrimaryKey: true, Order: 1})
	mkCol(authorModel.ID, models.Column{Title: "Name", ColumnName: "name", UIDT: models.UITypeSingleLineText, IsPrimaryValue: true, Order: 2})
	mkCol(authorModel.ID, models.Column{Title: "Country", ColumnName: "country", UIDT: models.UITypeSingleLineText, Order: 3})
	authorBooks := mkCol(authorModel.ID, models.Column{Title: "Books", UIDT: models.UITypeLinkToAnotherRecord, Order: 4})

	mkCol(bookModel.ID, models.Column{Title: "Id", ColumnName: "id", UIDT: models.UITypeID, IsPrimaryKey: true, Order: 1})
	mkCol(bookModel.ID, models.Column{Title: "Title", ColumnName: "title", UIDT: models.UITypeSingleLineText, IsPrimaryValue: true, Order: 2})
	bookFK := mkCol(bookModel.ID, models.Column{Title: "AuthorId", ColumnName: "author_id", UIDT: models.UITypeForeignKey, Order: 3})
	bookAuthor := mkCol(bookModel.ID, models.Column{Title: "Author", UIDT: models.UITypeLinkToAnotherRecord, Order: 4})

	require.NoError(t, db.Create(&models.LinkColumnOption{
		ID:             uuid.New(),
		ColumnID:       authorBooks,
		RelationType:   models.RelationHasMany,
		RelatedModelID: bookModel.ID,
		ChildColumnID:  &bookFK,
	}).Error)
	require.NoError(t, db.Create(&models.LinkColumnOption{
		ID:             uuid.New(),
		ColumnID:       bookAuthor,
		RelationType:   models.RelationBelongsTo,
		RelatedModelID: authorModel.ID,
		ChildColumnID:  &bookFK,
		ParentColumnID: &authorID,
	}).Error)

	store := meta.NewStore(db, zerolog.Nop())
	f := &engineFixture{
		db:    db,
		store: store,
		deps: Deps{
			Meta:    store,
			Bases:   NewBaseManager(db, db, "test-encryption-key"),
			Builder: ast.NewBuilder(store),
			Audit:   audit.NewRecorder(db, zerolog.Nop()),
			Data:    config.DataConfig{ListLimit: 25, ListMaxLimit: 1000},
			Log:     zerolog.Nop(),
		},
	}

	f.authors, err = store.GetModel(authorModel.ID)
	require.NoError(t, err)
	f.books, err = store.GetModel(bookModel.ID)
	require.NoError(t, err)
	return f
}

func (f *engineFixture) engine(t *testing.T, model *models.Model) *RowEngine {
	t.Helper()
	eng, err := New(context.Background(), f.deps, model, nil,
		auth.ParseRoles("editor"), audit.Ctx{User: "tester@example.com", IP: "127.0.0.1"})
	require.NoError(t, err)
	return eng
}

func (f *engineFixture) lastAudit(t *testing.T, subType string) models.Audit {
	t.Helper()
	var entry models.Audit
	require.NoError(t, f.db.Where("op_sub_type = ?", subType).Order("created_at DESC").First(&entry).Error)
	return entry
}

func insertAuthor(t *testing.T, eng *RowEngine, name, country string) interface{} {
	t.Helper()
	rec, err := eng.Insert(context.Background(), map[string]interface{}{"Name": name, "Country": country})
	require.NoError(t, err)
	pk, ok := rec.Get("Id")
	require.True(t, ok)
	return pk
}

func TestInsertAndReadByPk(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(t, f.authors)
	ctx := context.Background()

	rec, err := eng.Insert(ctx, map[string]interface{}{"Name": "Ada", "Country": "UK"})
	require.NoError(t, err)

	name, _ := rec.Get("Name")
	assert.Equal(t, "Ada", name)
	pk, ok := rec.Get("Id")
	require.True(t, ok)
	require.NotNil(t, pk)

	read, err := eng.ReadByPk(ctx, pk, nil)
	require.NoError(t, err)
	country, _ := read.Get("Country")
	assert.Equal(t, "UK", country)

	entry := f.lastAudit(t, models.AuditOpSubTypeInsert)
	assert.Equal(t, fmt.Sprintf("%v inserted into Authors", pk), entry.Description)
	assert.Equal(t, "tester@example.com", entry.User)
}

func TestListPagingSortingFiltering(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(t, f.authors)
	ctx := context.Background()

	payload := make([]map[string]interface{}, 0, 10)
	for i := 0; i < 10; i++ {
		country := "GR"
		if i%2 == 0 {
			country = "US"
		}
		payload = append(payload, map[string]interface{}{
			"Name":    fmt.Sprintf("Author %d", i),
			"Country": country,
		})
	}
	inserted, err := eng.BulkInsert(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, 10, inserted)
	assert.Equal(t, "10 records bulk inserted into Authors",
		f.lastAudit(t, models.AuditOpSubTypeBulkInsert).Description)

	page, err := eng.List(ctx, &ast.QueryParams{Limit: 4})
	require.NoError(t, err)
	assert.Len(t, page.List, 4)
	assert.Equal(t, int64(10), page.PageInfo.TotalRows)
	assert.Equal(t, 1, page.PageInfo.Page)
	assert.True(t, page.PageInfo.IsFirstPage)
	assert.False(t, page.PageInfo.IsLastPage)

	last, err := eng.List(ctx, &ast.QueryParams{Limit: 4, Offset: 8})
	require.NoError(t, err)
	assert.Len(t, last.List, 2)
	assert.True(t, last.PageInfo.IsLastPage)

	filtered, err := eng.List(ctx, &ast.QueryParams{
		Filters: []ast.FilterSpec{{Field: "Country", Op: "eq", Value: "GR"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), filtered.PageInfo.TotalRows)

	sorted, err := eng.List(ctx, &ast.QueryParams{
		Sorts: []ast.SortSpec{{Field: "Name", Direction: "desc"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, sorted.List)
	name, _ := sorted.List[0].Get("Name")
	assert.Equal(t, "Author 9", name)
}

func TestCountAndExist(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(t, f.authors)

	pk := insertAuthor(t, eng, "Ada", "UK")
	insertAuthor(t, eng, "Grace", "US")

	total, err := eng.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	narrowed, err := eng.Count(&ast.QueryParams{
		Filters: []ast.FilterSpec{{Field: "Country", Op: "eq", Value: "US"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), narrowed)

	exists, err := eng.Exist(pk)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = eng.Exist(99999)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFindOne(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(t, f.authors)
	ctx := context.Background()

	insertAuthor(t, eng, "Ada", "UK")
	insertAuthor(t, eng, "Grace", "US")

	rec, err := eng.FindOne(ctx, &ast.QueryParams{
		Filters: []ast.FilterSpec{{Field: "Name", Op: "eq", Value: "Grace"}},
	})
	require.NoError(t, err)
	country, _ := rec.Get("Country")
	assert.Equal(t, "US", country)

	// No match projects to an empty object, not null.
	empty, err := eng.FindOne(ctx, &ast.QueryParams{
		Filters: []ast.FilterSpec{{Field: "Name", Op: "eq", Value: "Nobody"}},
	})
	require.NoError(t, err)
	assert.Len(t, empty, 0)
	body, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}

func TestUpdateByPkAuditsChangedFields(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(t, f.authors)
	ctx := context.Background()

	pk := insertAuthor(t, eng, "Ada", "GR")

	rec, err := eng.UpdateByPk(ctx, pk, map[string]interface{}{"Country": "US", "Name": "Ada"})
	require.NoError(t, err)
	country, _ := rec.Get("Country")
	assert.Equal(t, "US", country)

	var entries []models.Audit
	require.NoError(t, f.db.Where("op_sub_type = ?", models.AuditOpSubTypeUpdate).Find(&entries).Error)
	require.Len(t, entries, 1) // only the field that actually changed
	assert.Equal(t,
		fmt.Sprintf("Table authors : %v field Country got changed from GR to US", pk),
		entries[0].Description)
}

func TestDeleteBlockedByLinkedRows(t *testing.T) {
	f := newEngineFixture(t)
	authorsEng := f.engine(t, f.authors)
	booksEng := f.engine(t, f.books)
	ctx := context.Background()

	authorPK := insertAuthor(t, authorsEng, "Ada", "UK")
	bookRec, err := booksEng.Insert(ctx, map[string]interface{}{"Title": "Notes", "AuthorId": authorPK})
	require.NoError(t, err)
	bookPK, _ := bookRec.Get("Id")

	err = authorsEng.DelByPk(ctx, authorPK)
	require.Error(t, err)
	var blocked *DeleteBlocked
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t,
		fmt.Sprintf("record with id %v cannot be deleted, it is still linked through: Books (1)", authorPK),
		blocked.Message)

	require.NoError(t, authorsEng.RemoveChild(ctx, "Books", authorPK, bookPK))
	assert.Equal(t,
		fmt.Sprintf("Record [id:%v] record unlinked with record [id:%v] record in Authors", bookPK, authorPK),
		f.lastAudit(t, models.AuditOpSubTypeUnlinkRecord).Description)

	require.NoError(t, authorsEng.DelByPk(ctx, authorPK))
	exists, err := authorsEng.Exist(authorPK)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t,
		fmt.Sprintf("%v deleted from Authors", authorPK),
		f.lastAudit(t, models.AuditOpSubTypeDelete).Description)
}

func TestAddChildAndNestedProjection(t *testing.T) {
	f := newEngineFixture(t)
	authorsEng := f.engine(t, f.authors)
	booksEng := f.engine(t, f.books)
	ctx := context.Background()

	authorPK := insertAuthor(t, authorsEng, "Ada", "UK")
	bookRec, err := booksEng.Insert(ctx, map[string]interface{}{"Title": "Notes"})
	require.NoError(t, err)
	bookPK, _ := bookRec.Get("Id")

	require.NoError(t, authorsEng.AddChild(ctx, "Books", authorPK, bookPK))
	assert.Equal(t,
		fmt.Sprintf("Record [id:%v] record linked with record [id:%v] record in Authors", bookPK, authorPK),
		f.lastAudit(t, models.AuditOpSubTypeLinkRecord).Description)

	// Has-many cell: a list of nested pk + display value records.
	authorRec, err := authorsEng.ReadByPk(ctx, authorPK, nil)
	require.NoError(t, err)
	val, ok := authorRec.Get("Books")
	require.True(t, ok)
	nested, ok := val.([]Record)
	require.True(t, ok)
	require.Len(t, nested, 1)
	title, _ := nested[0].Get("Title")
	assert.Equal(t, "Notes", title)

	// Belongs-to cell: a single nested record.
	readBook, err := booksEng.ReadByPk(ctx, bookPK, nil)
	require.NoError(t, err)
	val, ok = readBook.Get("Author")
	require.True(t, ok)
	author, ok := val.(Record)
	require.True(t, ok)
	name, _ := author.Get("Name")
	assert.Equal(t, "Ada", name)
}

func TestNestedInsertBelongsTo(t *testing.T) {
	f := newEngineFixture(t)
	authorsEng := f.engine(t, f.authors)
	booksEng := f.engine(t, f.books)
	ctx := context.Background()

	authorPK := insertAuthor(t, authorsEng, "Ada", "UK")

	rec, err := booksEng.NestedInsert(ctx, map[string]interface{}{
		"Title":  "Notes",
		"Author": map[string]interface{}{"id": authorPK},
	})
	require.NoError(t, err)

	val, ok := rec.Get("Author")
	require.True(t, ok)
	author, ok := val.(Record)
	require.True(t, ok)
	id, _ := author.Get("Id")
	assert.Equal(t, fmt.Sprintf("%v", authorPK), fmt.Sprintf("%v", id))
}

func TestBulkUpdateAndBulkDelete(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(t, f.authors)
	ctx := context.Background()

	pk1 := insertAuthor(t, eng, "Ada", "GR")
	pk2 := insertAuthor(t, eng, "Grace", "GR")
	pk3 := insertAuthor(t, eng, "Edsger", "NL")

	affected, err := eng.BulkUpdate(ctx, []map[string]interface{}{
		{"Id": pk1, "Country": "FR"},
		{"Id": 99999, "Country": "XX"}, // unknown pk is skipped
	})
	require.NoError(t, err)
	assert.Equal(t, 1, affected)
	assert.Equal(t, "1 records bulk updated in Authors",
		f.lastAudit(t, models.AuditOpSubTypeBulkUpdate).Description)

	deleted, err := eng.BulkDelete(ctx, []interface{}{pk2, pk3})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Equal(t, "2 records bulk deleted in Authors",
		f.lastAudit(t, models.AuditOpSubTypeBulkDelete).Description)

	total, err := eng.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestBulkUpdateAllAndBulkDeleteAll(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(t, f.authors)
	ctx := context.Background()

	insertAuthor(t, eng, "Ada", "GR")
	insertAuthor(t, eng, "Grace", "GR")
	insertAuthor(t, eng, "Edsger", "NL")

	params := &ast.QueryParams{Filters: []ast.FilterSpec{{Field: "Country", Op: "eq", Value: "GR"}}}

	affected, err := eng.BulkUpdateAll(ctx, params, map[string]interface{}{"Country": "EU"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	remaining, err := eng.Count(params)
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)

	deleted, err := eng.BulkDeleteAll(ctx, &ast.QueryParams{
		Filters: []ast.FilterSpec{{Field: "Country", Op: "eq", Value: "EU"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	total, err := eng.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestBulkAllWithoutFiltersTouchesEveryRow(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(t, f.authors)
	ctx := context.Background()

	insertAuthor(t, eng, "Ada", "GR")
	insertAuthor(t, eng, "Grace", "NL")

	affected, err := eng.BulkUpdateAll(ctx, nil, map[string]interface{}{"Country": "EU"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.Equal(t, "2 records bulk updated in Authors",
		f.lastAudit(t, models.AuditOpSubTypeBulkUpdate).Description)

	deleted, err := eng.BulkDeleteAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	total, err := eng.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestNewPageInfo(t *testing.T) {
	info := NewPageInfo(10, 4, 8)
	assert.Equal(t, 3, info.Page)
	assert.Equal(t, 4, info.PageSize)
	assert.False(t, info.IsFirstPage)
	assert.True(t, info.IsLastPage)

	// A zero limit must not divide by zero.
	info = NewPageInfo(10, 0, 0)
	assert.Equal(t, 1, info.Page)
	assert.Equal(t, 1, info.PageSize)
	assert.True(t, info.IsFirstPage)
}

func TestGroupBy(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(t, f.authors)

	insertAuthor(t, eng, "Ada", "GR")
	insertAuthor(t, eng, "Grace", "GR")
	insertAuthor(t, eng, "Edsger", "GR")
	insertAuthor(t, eng, "Barbara", "US")
	insertAuthor(t, eng, "Donald", "US")

	groups, err := eng.GroupBy("Country", nil)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	// Largest bucket first.
	assert.Equal(t, "GR", fmt.Sprintf("%v", groups[0].Key))
	assert.Equal(t, int64(3), groups[0].Count)
	assert.Equal(t, "US", fmt.Sprintf("%v", groups[1].Key))
	assert.Equal(t, int64(2), groups[1].Count)

	_, err = eng.GroupBy("Books", nil)
	assert.Error(t, err) // virtual columns cannot be grouped
}
