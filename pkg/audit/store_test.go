package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestRecord(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	actorID := int64(1)
	subjectID := int64(2)

	mock.ExpectQuery(`INSERT INTO audit_events \(tenant_id, event_type, actor_id, subject_id, detail\)`).
		WithArgs(int64(1), EventRolesReplaced, &actorID, &subjectID, `{"roles":"2"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), now))

	event := &Event{
		TenantID:  1,
		Type:      EventRolesReplaced,
		ActorID:   &actorID,
		SubjectID: &subjectID,
		Detail:    map[string]string{"roles": "2"},
	}
	require.NoError(t, store.Record(context.Background(), event))
	assert.Equal(t, int64(10), event.ID)
	assert.Equal(t, now, event.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWithoutDetail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO audit_events`).
		WithArgs(int64(1), EventSignOut, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), time.Now()))

	require.NoError(t, store.Record(context.Background(), &Event{TenantID: 1, Type: EventSignOut}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func auditColumns() []string {
	return []string{"id", "tenant_id", "event_type", "actor_id", "subject_id", "detail", "created_at"}
}

func TestListNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM audit_events\s+WHERE tenant_id = \$1 ORDER BY created_at DESC, id DESC LIMIT \$2`).
		WithArgs(int64(1), 50).
		WillReturnRows(sqlmock.NewRows(auditColumns()).
			AddRow(int64(2), int64(1), "rbac.roles_replaced", int64(9), int64(7), `{"roles":"1"}`, now).
			AddRow(int64(1), int64(1), "auth.sign_in", int64(7), nil, nil, now.Add(-time.Minute)))

	events, err := store.List(context.Background(), 1, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventRolesReplaced, events[0].Type)
	require.NotNil(t, events[0].SubjectID)
	assert.Equal(t, int64(7), *events[0].SubjectID)
	assert.Equal(t, map[string]string{"roles": "1"}, events[0].Detail)
	assert.Nil(t, events[1].SubjectID)
	assert.Nil(t, events[1].Detail)
}

func TestListFiltersByTypeAndSubject(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM audit_events\s+WHERE tenant_id = \$1 AND event_type = \$2 AND subject_id = \$3 ORDER BY .+ LIMIT \$4 OFFSET \$5`).
		WithArgs(int64(1), EventMemberRemoved, int64(7), 10, 20).
		WillReturnRows(sqlmock.NewRows(auditColumns()))

	events, err := store.List(context.Background(), 1, Filter{
		Type:      EventMemberRemoved,
		SubjectID: 7,
		Limit:     10,
		Offset:    20,
	})
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrune(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM audit_events`).
		WithArgs(90).
		WillReturnResult(sqlmock.NewResult(0, 12))

	pruned, err := store.Prune(context.Background(), 90)
	require.NoError(t, err)
	assert.Equal(t, int64(12), pruned)
}
