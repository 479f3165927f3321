package service

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// AllowedUploadTypes is the content-type allow-list for attachments.
var AllowedUploadTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ObjectStorage stores file bytes and returns a durable URL for them.
type ObjectStorage interface {
	Put(ctx context.Context, key, contentType string, data []byte) (url string, err error)
}

type FileService interface {
	// Upload checks size and sniffed content type before storing the file.
	// The returned URL is what messages carry as file_ref.
	Upload(ctx context.Context, userID, filename string, r io.Reader) (*domain.UploadedFile, error)
}

type fileService struct {
	storage  ObjectStorage
	maxBytes int64
	log      logger.Logger
	now      func() time.Time
}

func NewFileService(storage ObjectStorage, maxBytes int64, log logger.Logger) FileService {
	return &fileService{
		storage:  storage,
		maxBytes: maxBytes,
		log:      log,
		now:      time.Now,
	}
}

func (s *fileService) Upload(ctx context.Context, userID, filename string, r io.Reader) (*domain.UploadedFile, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}

	// read one byte past the limit to detect oversized bodies
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, apperrors.Validation("failed to read upload: %v", err)
	}
	if len(data) == 0 {
		return nil, apperrors.Validation("file is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, apperrors.Validation("file exceeds the %s limit", humanize.Bytes(uint64(s.maxBytes)))
	}

	mtype := mimetype.Detect(data)
	contentType, ok := allowedType(mtype)
	if !ok {
		return nil, apperrors.Validation("file type %s is not allowed", mtype.String())
	}

	key := path.Join(userID, s.now().UTC().Format("2006/01/02"), uuid.NewString()+mtype.Extension())
	url, err := s.storage.Put(ctx, key, contentType, data)
	if err != nil {
		s.log.Error("Failed to store upload", "error", err, "user_id", userID, "size", len(data))
		if apperrors.IsCategorized(err) {
			return nil, err
		}
		return nil, apperrors.Unavailable(err, "store file")
	}

	s.log.Info("File uploaded", "user_id", userID, "content_type", contentType, "size", humanize.Bytes(uint64(len(data))))
	return &domain.UploadedFile{
		URL:         url,
		Name:        sanitizeFilename(filename),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func allowedType(mtype *mimetype.MIME) (string, bool) {
	for m := mtype; m != nil; m = m.Parent() {
		for _, allowed := range AllowedUploadTypes {
			if m.Is(allowed) {
				return allowed, true
			}
		}
	}
	return "", false
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return string(bytes.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, []byte(name)))
}
