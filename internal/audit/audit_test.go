package audit

import (
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

	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/models"
)

func newRecorder(t *testing.T) (*Recorder, *gorm.DB) {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Audit{}))

	return NewRecorder(db, zerolog.Nop()), db
}

func testModel() *models.Model {
	return &models.Model{ID: uuid.New(), Title: "Authors", TableName: "authors"}
}

func lastEntry(t *testing.T, db *gorm.DB, subType string) models.Audit {
	t.Helper()
	var entry models.Audit
	require.NoError(t, db.Where("op_sub_type = ?", subType).Last(&entry).Error)
	return entry
}

func TestRowInserted(t *testing.T) {
	r, db := newRecorder(t)
	model := testModel()
	projectID := uuid.New()

	r.RowInserted(Ctx{User: "ada@example.com", IP: "10.0.0.1"}, projectID, model, 7)

	entry := lastEntry(t, db, models.AuditOpSubTypeInsert)
	assert.Equal(t, "7 inserted into Authors", entry.Description)
	assert.Equal(t, "7", entry.RowID)
	assert.Equal(t, models.AuditOpTypeData, entry.OpType)
	assert.Equal(t, "ada@example.com", entry.User)
	assert.Equal(t, "10.0.0.1", entry.IP)
	assert.Equal(t, projectID, entry.ProjectID)
	assert.Equal(t, model.ID, entry.FkModelID)
}

func TestFieldChanged(t *testing.T) {
	r, db := newRecorder(t)
	model := testModel()

	r.FieldChanged(Ctx{}, uuid.New(), model, 7, "Name", "Ada", "Grace")

	entry := lastEntry(t, db, models.AuditOpSubTypeUpdate)
	assert.Equal(t, "Table authors : 7 field Name got changed from Ada to Grace", entry.Description)
	assert.Equal(t, "7", entry.RowID)
}

func TestRowDeleted(t *testing.T) {
	r, db := newRecorder(t)

	r.RowDeleted(Ctx{}, uuid.New(), testModel(), 7)

	entry := lastEntry(t, db, models.AuditOpSubTypeDelete)
	assert.Equal(t, "7 deleted from Authors", entry.Description)
}

func TestBulkDescriptions(t *testing.T) {
	r, db := newRecorder(t)
	model := testModel()
	projectID := uuid.New()

	r.BulkInserted(Ctx{}, projectID, model, 10)
	r.BulkUpdated(Ctx{}, projectID, model, 4)
	r.BulkDeleted(Ctx{}, projectID, model, 3)

	assert.Equal(t, "10 records bulk inserted into Authors",
		lastEntry(t, db, models.AuditOpSubTypeBulkInsert).Description)
	assert.Equal(t, "4 records bulk updated in Authors",
		lastEntry(t, db, models.AuditOpSubTypeBulkUpdate).Description)
	assert.Equal(t, "3 records bulk deleted in Authors",
		lastEntry(t, db, models.AuditOpSubTypeBulkDelete).Description)

	// Bulk entries carry no row id.
	assert.Empty(t, lastEntry(t, db, models.AuditOpSubTypeBulkInsert).RowID)
}

func TestLinkUnlink(t *testing.T) {
	r, db := newRecorder(t)
	model := testModel()
	projectID := uuid.New()

	r.RecordLinked(Ctx{}, projectID, model, 1, 9)
	r.RecordUnlinked(Ctx{}, projectID, model, 1, 9)

	// The child id leads, the parent row follows; RowID still carries
	// the parent.
	assert.Equal(t, "Record [id:9] record linked with record [id:1] record in Authors",
		lastEntry(t, db, models.AuditOpSubTypeLinkRecord).Description)
	assert.Equal(t, "Record [id:9] record unlinked with record [id:1] record in Authors",
		lastEntry(t, db, models.AuditOpSubTypeUnlinkRecord).Description)
	assert.Equal(t, "1", lastEntry(t, db, models.AuditOpSubTypeLinkRecord).RowID)
}

func TestCommentLifecycle(t *testing.T) {
	r, _ := newRecorder(t)
	modelID := uuid.New()

	entry := r.Comment(Ctx{User: "ada@example.com"}, uuid.New(), modelID, "7", "looks wrong")
	require.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, models.AuditOpTypeComment, entry.OpType)

	updated, err := r.UpdateComment(entry.ID, "grace@example.com", "fixed now")
	require.NoError(t, err)
	assert.Equal(t, "fixed now", updated.Description)
	assert.Equal(t, "grace@example.com", updated.User)
}

func TestUpdateCommentRejectsDataEntries(t *testing.T) {
	r, db := newRecorder(t)

	r.RowInserted(Ctx{}, uuid.New(), testModel(), 1)
	entry := lastEntry(t, db, models.AuditOpSubTypeInsert)

	_, err := r.UpdateComment(entry.ID, "ada@example.com", "rewrite history")
	require.Error(t, err)

	var badReq *apperrors.BadRequestError
	require.ErrorAs(t, err, &badReq)
	assert.Equal(t, "only comments can be edited", badReq.Error())
}

func TestUpdateCommentNotFound(t *testing.T) {
	r, _ := newRecorder(t)

	_, err := r.UpdateComment(uuid.New(), "ada@example.com", "x")
	var notFound *apperrors.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestProjectAuditList(t *testing.T) {
	r, _ := newRecorder(t)
	projectID := uuid.New()
	model := testModel()
	other := testModel()

	for i := 0; i < 30; i++ {
		r.RowInserted(Ctx{}, projectID, model, i)
	}
	r.RowInserted(Ctx{}, projectID, other, 99)
	r.RowInserted(Ctx{}, uuid.New(), testModel(), 1) // different project

	entries, total, err := r.ProjectAuditList(projectID, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(31), total)
	assert.Len(t, entries, 25) // default page size

	entries, total, err = r.ProjectAuditList(projectID, ListOptions{ModelID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, "99", entries[0].RowID)

	entries, total, err = r.ProjectAuditList(projectID, ListOptions{RowID: "5", Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, fmt.Sprintf("%d inserted into Authors", 5), entries[0].Description)
}
