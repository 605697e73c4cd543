package service

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/policy"
	"taskmanager/internal/repository"
	"taskmanager/internal/storage"
	"taskmanager/pkg/logger"
)

// Upload is a file received from the client. Filename is the client-supplied name.
type Upload struct {
	Filename string
	Body     io.Reader
}

type AttachmentInput struct {
	TaskID *int64
	File   *Upload
}

type AttachmentService struct {
	tx      repository.TxManager
	storage *storage.Storage
	logger  *zap.Logger
}

func NewAttachmentService(tx repository.TxManager, store *storage.Storage, logger *zap.Logger) *AttachmentService {
	return &AttachmentService{tx: tx, storage: store, logger: logger}
}

func (s *AttachmentService) List(ctx context.Context, userID int64, taskID *int64, page repository.Page) (*ListResult[model.AttachmentWithUploader], error) {
	repos := s.tx.Repos()
	rows, total, err := repos.Attachments.ListVisible(ctx, userID, taskID, page)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.UploadedByID)
	}
	users, err := loadUsers(ctx, repos.Users, ids...)
	if err != nil {
		return nil, err
	}
	items := make([]model.AttachmentWithUploader, 0, len(rows))
	for _, a := range rows {
		items = append(items, model.AttachmentWithUploader{Attachment: a, UploadedBy: users.get(a.UploadedByID)})
	}
	return &ListResult[model.AttachmentWithUploader]{Items: items, Total: total}, nil
}

func (s *AttachmentService) Get(ctx context.Context, userID, id int64) (*model.AttachmentWithUploader, error) {
	a, err := s.tx.Repos().Attachments.GetVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.withUploader(ctx, a)
}

// Create stores the uploaded file and records it against a visible task.
// filename and file_size always come from the upload itself.
func (s *AttachmentService) Create(ctx context.Context, userID int64, in AttachmentInput) (*model.AttachmentWithUploader, error) {
	repos := s.tx.Repos()
	a := &model.Attachment{UploadedByID: userID}
	if err := s.checkInput(ctx, repos, userID, a, in, true); err != nil {
		return nil, err
	}
	if err := s.store(a, in.File); err != nil {
		return nil, err
	}
	if err := repos.Attachments.Insert(ctx, a); err != nil {
		s.discard(a.StorageKey)
		return nil, mapWriteError(err, "", "")
	}
	logger.WithTrace(ctx, s.logger).Info("Attachment uploaded",
		zap.Int64("attachment_id", a.ID),
		zap.Int64("task_id", a.TaskID),
		zap.Int64("size", a.FileSize),
	)
	return s.withUploader(ctx, a)
}

// Update moves an attachment to another visible task and/or replaces its file.
// Only the uploader may change it.
func (s *AttachmentService) Update(ctx context.Context, userID, id int64, in AttachmentInput, partial bool) (*model.AttachmentWithUploader, error) {
	repos := s.tx.Repos()
	a, err := repos.Attachments.GetVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := policy.CheckAuthor(userID, a.UploadedByID); err != nil {
		return nil, err
	}
	if err := s.checkInput(ctx, repos, userID, a, in, !partial); err != nil {
		return nil, err
	}

	oldKey := a.StorageKey
	if in.File != nil {
		if err := s.store(a, in.File); err != nil {
			return nil, err
		}
	}
	if err := repos.Attachments.Update(ctx, a); err != nil {
		if a.StorageKey != oldKey {
			s.discard(a.StorageKey)
		}
		return nil, mapWriteError(err, "", "")
	}
	if a.StorageKey != oldKey {
		s.discard(oldKey)
	}
	return s.withUploader(ctx, a)
}

// Delete removes the attachment row and then its stored file.
func (s *AttachmentService) Delete(ctx context.Context, userID, id int64) error {
	repos := s.tx.Repos()
	a, err := repos.Attachments.GetVisible(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := policy.CheckAuthor(userID, a.UploadedByID); err != nil {
		return err
	}
	if err := repos.Attachments.Delete(ctx, a.ID); err != nil {
		return err
	}
	s.discard(a.StorageKey)
	logger.WithTrace(ctx, s.logger).Info("Attachment deleted", zap.Int64("attachment_id", a.ID))
	return nil
}

// Open returns the attachment record and a reader over its stored file. The caller closes the file.
func (s *AttachmentService) Open(ctx context.Context, userID, id int64) (*model.Attachment, afero.File, error) {
	a, err := s.tx.Repos().Attachments.GetVisible(ctx, id, userID)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.storage.Open(a.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.WithTrace(ctx, s.logger).Warn("Attachment file missing",
				zap.Int64("attachment_id", a.ID),
				zap.String("key", a.StorageKey),
			)
			return nil, nil, apperr.NotFound("File not found.")
		}
		return nil, nil, err
	}
	return a, f, nil
}

func (s *AttachmentService) checkInput(ctx context.Context, repos *repository.Repositories, userID int64, a *model.Attachment, in AttachmentInput, full bool) error {
	verr := &apperr.ValidationError{}
	if full && in.File == nil {
		verr.Add("file", "No file was submitted.")
	}
	if in.File != nil && uploadName(in.File.Filename) == "" {
		verr.Add("file", "The submitted file is empty.")
	}

	switch {
	case in.TaskID != nil:
		visible, err := repos.Tasks.IsVisible(ctx, *in.TaskID, userID)
		if err != nil {
			return err
		}
		if !visible {
			invalidPK(verr, "task", *in.TaskID)
		} else {
			a.TaskID = *in.TaskID
		}
	case full:
		verr.Add("task", "This field is required.")
	}
	return verr.OrNil()
}

func (s *AttachmentService) store(a *model.Attachment, up *Upload) error {
	name := uploadName(up.Filename)
	key, size, err := s.storage.Save(name, up.Body)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return apperr.Invalid("file", "The submitted file exceeds the upload size limit.")
		}
		return err
	}
	a.StorageKey, a.Filename, a.FileSize = key, name, size
	return nil
}

func (s *AttachmentService) discard(key string) {
	if err := s.storage.Delete(key); err != nil {
		s.logger.Warn("Failed to remove attachment file", zap.String("key", key), zap.Error(err))
	}
}

func (s *AttachmentService) withUploader(ctx context.Context, a *model.Attachment) (*model.AttachmentWithUploader, error) {
	users, err := loadUsers(ctx, s.tx.Repos().Users, a.UploadedByID)
	if err != nil {
		return nil, err
	}
	return &model.AttachmentWithUploader{Attachment: *a, UploadedBy: users.get(a.UploadedByID)}, nil
}

// uploadName strips any client directory components and bounds the length.
func uploadName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	if r := []rune(name); len(r) > model.FilenameMaxLen {
		name = string(r[:model.FilenameMaxLen])
	}
	return name
}
