package contextstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(sqlx.NewDb(db, "sqlmock"), zap.NewNop())
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestGetUnknownCandidate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM candidate_contexts WHERE candidate_id = $1`)).
		WithArgs("CAND-404").
		WillReturnError(sql.ErrNoRows)

	c, err := s.Get(context.Background(), "CAND-404")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDecodesDocument(t *testing.T) {
	s, mock := newMockStore(t)
	doc, _ := json.Marshal(models.CandidateContext{
		CandidateID: "CAND-001",
		State:       models.CandidateActive,
		JobTitle:    "Senior Software Engineer",
	})
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM candidate_contexts WHERE candidate_id = $1`)).
		WithArgs("CAND-001").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))

	c, err := s.Get(context.Background(), "CAND-001")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Senior Software Engineer", c.JobTitle)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMergeNewCandidateWritesAudit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM candidate_contexts WHERE candidate_id = $1`)).
		WithArgs("CAND-001").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO candidate_contexts`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// one audit row per changed field: job_title, job_level
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO context_audit`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO context_audit`)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	out, err := s.SaveMerge(context.Background(), "CAND-001", models.ContextUpdate{
		JobTitle: "Senior Software Engineer",
		JobLevel: "P4",
	}, "alice@corp.com")
	require.NoError(t, err)
	assert.Equal(t, "alice@corp.com", out.CreatedBy)
	assert.Equal(t, models.CandidateActive, out.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveReplaceByDifferentActorLogsReplacement(t *testing.T) {
	s, mock := newMockStore(t)

	doc, _ := json.Marshal(models.CandidateContext{
		CandidateID: "CAND-001",
		State:       models.CandidateActive,
		JobTitle:    "Senior Software Engineer",
		CreatedBy:   "alice@corp.com",
	})
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM candidate_contexts WHERE candidate_id = $1`)).
		WithArgs("CAND-001").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO candidate_contexts`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO context_audit`)).
		WithArgs("CAND-001", "bob@corp.com",
			"Context created by alice@corp.com", "Context replaced by bob@corp.com",
			sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO context_audit`)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	out, err := s.SaveReplace(context.Background(), "CAND-001", models.ContextUpdate{
		JobTitle: "Engineering Manager",
	}, "bob@corp.com")
	require.NoError(t, err)
	assert.Equal(t, "bob@corp.com", out.CreatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetUnknownCandidate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM candidate_contexts WHERE candidate_id = $1`)).
		WithArgs("CAND-404").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := s.Reset(context.Background(), "CAND-404", "alice@corp.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetDeletesAndAudits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM candidate_contexts WHERE candidate_id = $1`)).
		WithArgs("CAND-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO context_audit`)).
		WithArgs("CAND-001", "alice@corp.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ok, err := s.Reset(context.Background(), "CAND-001", "alice@corp.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLog(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"candidate_id", "actor", "field", "old_value", "new_value", "created_at"}).
		AddRow("CAND-001", "alice@corp.com", "job_level", "", "P4", time.Now()).
		AddRow("CAND-001", "bob@corp.com", "job_level", "P4", "P5", time.Now())
	mock.ExpectQuery(`SELECT candidate_id, actor, field, old_value, new_value, created_at`).
		WithArgs("CAND-001").
		WillReturnRows(rows)

	entries, err := s.AuditLog(context.Background(), "CAND-001")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "job_level", entries[0].Field)
	assert.Equal(t, "P5", entries[1].NewValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}
