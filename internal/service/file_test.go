package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeStorage struct {
	key         string
	contentType string
	data        []byte
	err         error
}

func (s *fakeStorage) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.key, s.contentType, s.data = key, contentType, data
	return "https://files.example.com/" + key, nil
}

func TestUploadStoresAllowedFile(t *testing.T) {
	storage := &fakeStorage{}
	svc := NewFileService(storage, 1<<20, logger.NewNop())

	file, err := svc.Upload(context.Background(), "alice", "../../secret/photo.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	assert.Equal(t, "image/png", file.ContentType)
	assert.Equal(t, "photo.png", file.Name)
	assert.Equal(t, int64(len(pngHeader)), file.Size)
	assert.True(t, strings.HasPrefix(storage.key, "alice/"))
	assert.True(t, strings.HasSuffix(storage.key, ".png"))
	assert.Equal(t, "https://files.example.com/"+storage.key, file.URL)
	assert.Equal(t, pngHeader, storage.data)
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		body    []byte
		wantErr error
	}{
		{name: "anonymous", userID: "", body: pngHeader, wantErr: apperrors.ErrUnauthorized},
		{name: "empty", userID: "alice", body: nil, wantErr: apperrors.ErrValidation},
		{name: "too large", userID: "alice", body: append(append([]byte{}, pngHeader...), make([]byte, 64)...), wantErr: apperrors.ErrValidation},
		{name: "disallowed type", userID: "alice", body: []byte("just some plain text"), wantErr: apperrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := &fakeStorage{}
			svc := NewFileService(storage, 64, logger.NewNop())
			_, err := svc.Upload(context.Background(), tt.userID, "f", bytes.NewReader(tt.body))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, storage.data)
		})
	}
}

func TestUploadStorageFailure(t *testing.T) {
	svc := NewFileService(&fakeStorage{err: errors.New("disk full")}, 1<<20, logger.NewNop())

	_, err := svc.Upload(context.Background(), "alice", "photo.png", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}
