package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileService(t *testing.T) (*FileService, *fakeRepoManager, *fakeStorage, *fakeNotifier, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	rm := newFakeRepoManager()
	rm.users.users["u1"] = &models.User{ID: "u1", HasSyncAccess: true}
	rm.users.stats["u1"] = &models.StorageStats{Limit: 100, Used: 60}
	st := &fakeStorage{sizes: map[string]int64{}}
	n := &fakeNotifier{}
	return NewFileService(db, rm, st, n, logging.Nop()), rm, st, n, mock
}

func TestPresignUpload(t *testing.T) {
	s, rm, st, _, _ := newTestFileService(t)
	ctx := context.Background()

	resp, err := s.PresignUpload(ctx, "u1", &api.PresignUploadRequest{ID: "f1", Size: 40})
	require.NoError(t, err)
	assert.Equal(t, "u1/f1", resp.S3Key)
	assert.Equal(t, "https://s3/put/u1/f1", resp.URL)

	_, err = s.PresignUpload(ctx, "u1", &api.PresignUploadRequest{ID: "f1", Size: 41})
	require.ErrorIs(t, err, common.ErrQuotaExceeded)

	rm.users.users["u1"].HasSyncAccess = false
	_, err = s.PresignUpload(ctx, "u1", &api.PresignUploadRequest{ID: "f1", Size: 1})
	require.ErrorIs(t, err, common.ErrNoSyncAccess)

	rm.users.users["u1"].HasSyncAccess = true
	st.signErr = errors.New("sign")
	_, err = s.PresignUpload(ctx, "u1", &api.PresignUploadRequest{ID: "f1", Size: 1})
	require.ErrorContains(t, err, "sign")
}

func TestCommitUpload(t *testing.T) {
	s, rm, st, n, _ := newTestFileService(t)
	st.sizes["u1/f1"] = 30

	resp, err := s.CommitUpload(context.Background(), "u1", &api.CommitUploadRequest{ID: "f1", S3Key: "u1/f1"})
	require.NoError(t, err)
	assert.EqualValues(t, 60, resp.StorageUsed)

	require.Len(t, rm.files.committed, 1)
	assert.Equal(t, &models.FileObject{ID: "f1", UserID: "u1", S3Key: "u1/f1", Size: 30}, rm.files.committed[0])
	assert.Equal(t, []string{"u1"}, n.Calls())
	assert.Empty(t, st.deleted)
}

func TestCommitUpload_Failures(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		setup   func(*fakeRepoManager, *fakeStorage)
		wantErr error
		deleted []string
	}{
		{
			name:    "foreign key",
			key:     "u2/f1",
			wantErr: common.ErrorForbidden,
		},
		{
			name:    "object missing",
			key:     "u1/f1",
			wantErr: common.ErrorNotFound,
		},
		{
			name: "over quota",
			key:  "u1/f1",
			setup: func(_ *fakeRepoManager, st *fakeStorage) {
				st.sizes["u1/f1"] = 41
			},
			wantErr: common.ErrQuotaExceeded,
			deleted: []string{"u1/f1"},
		},
		{
			name: "row owned by someone else",
			key:  "u1/f1",
			setup: func(rm *fakeRepoManager, st *fakeStorage) {
				st.sizes["u1/f1"] = 1
				rm.files.commitErr = common.ErrorNotFound
			},
			wantErr: common.ErrorForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, rm, st, n, _ := newTestFileService(t)
			if tt.setup != nil {
				tt.setup(rm, st)
			}

			_, err := s.CommitUpload(context.Background(), "u1", &api.CommitUploadRequest{ID: "f1", S3Key: tt.key})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.deleted, st.deleted)
			assert.Empty(t, rm.files.committed)
			assert.Empty(t, n.Calls())
		})
	}
}

func TestViewURL(t *testing.T) {
	s, _, _, _, _ := newTestFileService(t)

	resp, err := s.ViewURL(context.Background(), "u1", "u1/f1")
	require.NoError(t, err)
	assert.Equal(t, "https://s3/get/u1/f1", resp.URL)

	_, err = s.ViewURL(context.Background(), "u1", "u10/f1")
	require.ErrorIs(t, err, common.ErrorForbidden)
}

func TestDeleteNote(t *testing.T) {
	s, rm, st, n, mock := newTestFileService(t)
	rm.files.keys = []string{"u1/a", "u1/b"}
	st.deleteErr = errors.New("denied")

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, s.DeleteNote(context.Background(), "u1", "n1"))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"u1/a", "u1/b"}, st.deleted)
	assert.Equal(t, []string{"n1"}, rm.files.detached)
	assert.Equal(t, []string{"n1"}, rm.records.deleted)
	assert.Equal(t, []string{"u1"}, n.Calls())
}

func TestDeleteNote_RollsBack(t *testing.T) {
	s, rm, _, n, mock := newTestFileService(t)
	rm.records.deleteErr = errors.New("db down")

	mock.ExpectBegin()
	mock.ExpectRollback()

	require.ErrorContains(t, s.DeleteNote(context.Background(), "u1", "n1"), "error deleting note")
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, n.Calls())
}
