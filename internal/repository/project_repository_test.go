package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignx-api/internal/models"
)

func newProjectRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestProjectRepositoryCreateAssignsNumber(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()

	repo := NewProjectRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO projects")).
		WillReturnRows(sqlmock.NewRows([]string{"project_number"}).AddRow("AX-00042"))

	project := &models.Project{ClientID: "client-1", Title: "Essay", BaseRate: 10, WordCount: 1000, Deadline: time.Now().Add(72 * time.Hour)}
	require.NoError(t, repo.Create(context.Background(), project))
	assert.NotEmpty(t, project.ID)
	assert.Equal(t, "AX-00042", project.ProjectNumber)
	assert.Equal(t, models.ProjectStatusDraft, project.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryListCombinesParties(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()

	repo := NewProjectRepository(db)
	rows := sqlmock.NewRows([]string{"id", "status", "client_id"}).
		AddRow("p-1", "submitted", "client-1")
	mock.ExpectQuery(regexp.QuoteMeta("(supervisor_id = $2 OR (supervisor_id IS NULL AND status = 'submitted'))")).
		WithArgs("submitted", "sup-1").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.ProjectFilter{
		Status:       []models.ProjectStatus{models.ProjectStatusSubmitted},
		SupervisorID: "sup-1",
		Unclaimed:    true,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryApplyTransitionWritesEveryHop(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()

	repo := NewProjectRepository(db)
	reason := "missing citations"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE projects SET status = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "qc_rejection_count", "version"}).
			AddRow("p-1", "revision_requested", 1, 7))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO project_events")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO project_events")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO qc_reviews")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	project, err := repo.ApplyTransition(context.Background(), TransitionParams{
		ProjectID: "p-1",
		Expected:  models.ProjectStatusQCInProgress,
		Target:    models.ProjectStatusRevisionRequested,
		Hops: [][2]models.ProjectStatus{
			{models.ProjectStatusQCInProgress, models.ProjectStatusQCRejected},
			{models.ProjectStatusQCRejected, models.ProjectStatusRevisionRequested},
		},
		Action:      "reject_qc",
		ActorID:     "sup-1",
		ActorRole:   "supervisor",
		Reason:      &reason,
		ActorColumn: ActorSupervisor,
		Increment:   []string{"qc_rejection_count"},
		QCReview:    &models.QCReview{Round: 1, Decision: models.QCDecisionRejected, Reason: &reason, ReviewerID: "sup-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusRevisionRequested, project.Status)
	assert.Equal(t, 1, project.QCRejectionCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryApplyTransitionLosesRace(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()

	repo := NewProjectRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE projects SET")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
	mock.ExpectRollback()

	_, err := repo.ApplyTransition(context.Background(), TransitionParams{
		ProjectID: "p-1",
		Expected:  models.ProjectStatusDelivered,
		Target:    models.ProjectStatusCompleted,
		Hops:      [][2]models.ProjectStatus{{models.ProjectStatusDelivered, models.ProjectStatusCompleted}},
		Action:    "approve_delivery",
		ActorID:   "client-1",
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepositoryRejectsUnbalancedSettlement(t *testing.T) {
	db, _, cleanup := newProjectRepoMock(t)
	defer cleanup()

	repo := NewProjectRepository(db)
	_, err := repo.ApplyTransition(context.Background(), TransitionParams{
		ProjectID: "p-1",
		Expected:  models.ProjectStatusPaymentPending,
		Target:    models.ProjectStatusPaid,
		ActorRole: "system",
		Set: map[string]interface{}{
			"client_quote":          int64(100),
			"doer_payout":           int64(65),
			"supervisor_commission": int64(15),
			"platform_fee":          int64(10),
		},
	})
	require.Error(t, err)
}

func TestProjectRepositoryRejectsColumnsOutsideActorScope(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()

	repo := NewProjectRepository(db)
	_, err := repo.ApplyTransition(context.Background(), TransitionParams{
		ProjectID:   "p-1",
		Expected:    models.ProjectStatusInProgress,
		Target:      models.ProjectStatusSubmittedForQC,
		Hops:        [][2]models.ProjectStatus{{models.ProjectStatusInProgress, models.ProjectStatusSubmittedForQC}},
		Action:      "submit_work",
		ActorID:     "doer-1",
		ActorRole:   "doer",
		ActorColumn: ActorDoer,
		Set: map[string]interface{}{
			"submission_key": "round-1",
			"client_quote":   int64(1),
		},
	})
	require.ErrorIs(t, err, ErrColumnNotWritable)
	assert.Contains(t, err.Error(), "client_quote")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckColumnsPerRole(t *testing.T) {
	cases := []struct {
		name   string
		params TransitionParams
		denied bool
	}{
		{"status only", TransitionParams{ActorRole: "doer"}, false},
		{"doer revision round", TransitionParams{ActorRole: "doer", Set: map[string]interface{}{"submission_key": nil}, Increment: []string{"revision_count"}}, false},
		{"supervisor rejection count", TransitionParams{ActorRole: "supervisor", Increment: []string{"qc_rejection_count"}}, false},
		{"client grades", TransitionParams{ActorRole: "client", Set: map[string]interface{}{"client_grade": "A"}}, false},
		{"client cannot lock price", TransitionParams{ActorRole: "client", Set: map[string]interface{}{"price_locked": true}}, true},
		{"doer cannot bump rejections", TransitionParams{ActorRole: "doer", Increment: []string{"qc_rejection_count"}}, true},
		{"supervisor cannot mark paid", TransitionParams{ActorRole: "supervisor", Set: map[string]interface{}{"paid_at": time.Now()}}, true},
		{"unknown role", TransitionParams{ActorRole: "guest", Set: map[string]interface{}{"qc_notes": "x"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.CheckColumns()
			if tc.denied {
				require.ErrorIs(t, err, ErrColumnNotWritable)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestBuildTransitionUpdateGuards(t *testing.T) {
	doer := "doer-9"
	query, args := buildTransitionUpdate(TransitionParams{
		ProjectID:          "p-1",
		Expected:           models.ProjectStatusAssigning,
		Target:             models.ProjectStatusAssigned,
		ActorID:            "sup-1",
		ActorColumn:        ActorSupervisor,
		ExcludeBlacklisted: &doer,
		Set:                map[string]interface{}{"proposed_doer_id": nil, "doer_id": doer},
	}, time.Unix(0, 0))

	assert.Contains(t, query, "doer_id = $3, proposed_doer_id = $4")
	assert.Contains(t, query, "WHERE id = $5 AND status = $6 AND supervisor_id = $7")
	assert.Contains(t, query, "b.doer_id = $8")
	assert.Len(t, args, 8)
	assert.Equal(t, doer, args[7])
}

func TestProjectRepositoryListDueForAutoApproval(t *testing.T) {
	db, mock, cleanup := newProjectRepoMock(t)
	defer cleanup()

	repo := NewProjectRepository(db)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("auto_approve_at <= $2")).
		WithArgs(models.ProjectStatusDelivered, now, 25).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("p-1", "delivered"))

	list, err := repo.ListDueForAutoApproval(context.Background(), now, 25)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
