package ast

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aethra/gridbase/internal/auth"
	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/meta"
	"github.com/aethra/gridbase/internal/models"
)

// fixture seeds a two-table library schema: Authors with a has-many
// Books link, plus a denied and a system column on Authors.
type fixture struct {
	db      *gorm.DB
	store   *meta.Store
	builder *Builder

	project *models.Project
	authors *models.Model
	books   *models.Model

	authorID      uuid.UUID
	authorName    uuid.UUID
	authorSalary  uuid.UUID
	authorCreated uuid.UUID
	authorBooks   uuid.UUID

	bookID    uuid.UUID
	bookTitle uuid.UUID
	bookFK    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
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
	))

	f := &fixture{db: db}
	f.store = meta.NewStore(db, zerolog.Nop())
	f.builder = NewBuilder(f.store)

	f.project = &models.Project{ID: uuid.New(), Title: "Library", IsActive: true}
	require.NoError(t, db.Create(f.project).Error)

	authorModel := &models.Model{ID: uuid.New(), ProjectID: f.project.ID, Title: "Authors", TableName: "authors", IsActive: true}
	bookModel := &models.Model{ID: uuid.New(), ProjectID: f.project.ID, Title: "Books", TableName: "books", IsActive: true}
	require.NoError(t, db.Create(authorModel).Error)
	require.NoError(t, db.Create(bookModel).Error)

	f.authorID = f.addColumn(t, authorModel.ID, models.Column{Title: "Id", ColumnName: "id", UIDT: models.UITypeID, IsPrimaryKey: true, Order: 1})
	f.authorName = f.addColumn(t, authorModel.ID, models.Column{Title: "Name", ColumnName: "name", UIDT: models.UITypeSingleLineText, IsPrimaryValue: true, Order: 2})
	f.authorSalary = f.addColumn(t, authorModel.ID, models.Column{Title: "Salary", ColumnName: "salary", UIDT: models.UITypeNumber, Order: 3,
		VisibilityRules: models.JSONB{"viewer": "deny"}})
	f.authorCreated = f.addColumn(t, authorModel.ID, models.Column{Title: "CreatedAt", ColumnName: "created_at", UIDT: models.UITypeCreateTime, IsSystem: true, Order: 4})
	f.authorBooks = f.addColumn(t, authorModel.ID, models.Column{Title: "Books", ColumnName: "", UIDT: models.UITypeLinkToAnotherRecord, Order: 5})

	f.bookID = f.addColumn(t, bookModel.ID, models.Column{Title: "Id", ColumnName: "id", UIDT: models.UITypeID, IsPrimaryKey: true, Order: 1})
	f.bookTitle = f.addColumn(t, bookModel.ID, models.Column{Title: "Title", ColumnName: "title", UIDT: models.UITypeSingleLineText, IsPrimaryValue: true, Order: 2})
	f.bookFK = f.addColumn(t, bookModel.ID, models.Column{Title: "AuthorId", ColumnName: "author_id", UIDT: models.UITypeForeignKey, Order: 3})

	require.NoError(t, db.Create(&models.LinkColumnOption{
		ID:             uuid.New(),
		ColumnID:       f.authorBooks,
		RelationType:   models.RelationHasMany,
		RelatedModelID: bookModel.ID,
		ChildColumnID:  &f.bookFK,
	}).Error)

	f.authors = f.load(t, authorModel.ID)
	f.books = f.load(t, bookModel.ID)
	return f
}

func (f *fixture) addColumn(t *testing.T, modelID uuid.UUID, col models.Column) uuid.UUID {
	t.Helper()
	col.ID = uuid.New()
	col.ModelID = modelID
	require.NoError(t, f.db.Create(&col).Error)
	return col.ID
}

func (f *fixture) load(t *testing.T, modelID uuid.UUID) *models.Model {
	t.Helper()
	f.store.Invalidate()
	model, err := f.store.GetModel(modelID)
	require.NoError(t, err)
	return model
}

func TestBuildDefaultFieldSet(t *testing.T) {
	f := newFixture(t)

	tree, err := f.builder.Build(f.authors, nil, auth.ParseRoles("editor"), nil)
	require.NoError(t, err)

	// System columns stay hidden; the primary key is exempt.
	assert.Equal(t, []string{"Id", "Name", "Salary", "Books"}, tree.Titles())
}

func TestBuildDeniedColumnExcluded(t *testing.T) {
	f := newFixture(t)

	tree, err := f.builder.Build(f.authors, nil, auth.ParseRoles("viewer"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "Name", "Books"}, tree.Titles())
}

func TestBuildRequestedFieldsDropUnknownAndDenied(t *testing.T) {
	f := newFixture(t)

	params := &QueryParams{Fields: []string{"Name", "Salary", "Nope"}}
	tree, err := f.builder.Build(f.authors, nil, auth.ParseRoles("viewer"), params)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name"}, tree.Titles())
}

func TestBuildViewColumnOrderWins(t *testing.T) {
	f := newFixture(t)

	view := &models.View{
		ID: uuid.New(), ModelID: f.authors.ID, Title: "Curated", Type: models.ViewTypeGrid,
		Columns: []models.ViewColumn{
			{ColumnID: f.authorName, Show: true, Order: 1},
			{ColumnID: f.authorID, Show: true, Order: 2},
			{ColumnID: f.authorSalary, Show: false, Order: 3},
		},
	}

	tree, err := f.builder.Build(f.authors, view, auth.ParseRoles("editor"), nil)
	require.NoError(t, err)

	// Hidden columns drop out; columns the view never recorded trail
	// the curated set.
	assert.Equal(t, []string{"Name", "Id", "Books"}, tree.Titles())
}

func TestBuildShowSystemFields(t *testing.T) {
	f := newFixture(t)

	view := &models.View{ID: uuid.New(), ModelID: f.authors.ID, Title: "All", Type: models.ViewTypeGrid, ShowSystemFields: true}
	tree, err := f.builder.Build(f.authors, view, auth.ParseRoles("editor"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Id", "Name", "Salary", "CreatedAt", "Books"}, tree.Titles())
}

func TestBuildNestedDefaultProjection(t *testing.T) {
	f := newFixture(t)

	tree, err := f.builder.Build(f.authors, nil, auth.ParseRoles("editor"), nil)
	require.NoError(t, err)

	var linkNode *Node
	for i := range tree.Nodes {
		if tree.Nodes[i].Title == "Books" {
			linkNode = &tree.Nodes[i]
		}
	}
	require.NotNil(t, linkNode)
	require.NotNil(t, linkNode.Link)
	assert.Equal(t, models.RelationHasMany, linkNode.Link.RelationType)

	// Default nested projection: the related pk plus display value.
	require.NotNil(t, linkNode.Nested)
	assert.Equal(t, []string{"Id", "Title"}, linkNode.Nested.Titles())
}

func TestBuildNestedNarrowedFields(t *testing.T) {
	f := newFixture(t)

	params := &QueryParams{Nested: map[string][]string{"Books": {"Title"}}}
	tree, err := f.builder.Build(f.authors, nil, auth.ParseRoles("editor"), params)
	require.NoError(t, err)

	for _, node := range tree.Nodes {
		if node.Title == "Books" {
			assert.Equal(t, []string{"Title"}, node.Nested.Titles())
			return
		}
	}
	t.Fatal("link node missing from tree")
}

func TestBuildLookupCycleRejected(t *testing.T) {
	f := newFixture(t)

	// A belongs-to link back from books to authors, then two lookups
	// pointing at each other through the links.
	bookAuthorLink := f.addColumn(t, f.books.ID, models.Column{Title: "Author", UIDT: models.UITypeLinkToAnotherRecord, Order: 4})
	require.NoError(t, f.db.Create(&models.LinkColumnOption{
		ID:             uuid.New(),
		ColumnID:       bookAuthorLink,
		RelationType:   models.RelationBelongsTo,
		RelatedModelID: f.authors.ID,
		ChildColumnID:  &f.bookFK,
		ParentColumnID: &f.authorID,
	}).Error)

	authorLoop := f.addColumn(t, f.authors.ID, models.Column{Title: "BookLoop", UIDT: models.UITypeLookup, Order: 6})
	bookLoop := f.addColumn(t, f.books.ID, models.Column{Title: "AuthorLoop", UIDT: models.UITypeLookup, Order: 5})

	require.NoError(t, f.db.Create(&models.LookupColumnOption{
		ID: uuid.New(), ColumnID: authorLoop, LinkColumnID: f.authorBooks, LookupColumnID: bookLoop,
	}).Error)
	require.NoError(t, f.db.Create(&models.LookupColumnOption{
		ID: uuid.New(), ColumnID: bookLoop, LinkColumnID: bookAuthorLink, LookupColumnID: authorLoop,
	}).Error)

	authors := f.load(t, f.authors.ID)
	params := &QueryParams{Fields: []string{"BookLoop"}}

	_, err := f.builder.Build(authors, nil, auth.ParseRoles("editor"), params)
	require.Error(t, err)

	var cfgErr *apperrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "lookup chain loops through column")
}
