package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/repository"
	"taskmanager/pkg/logger"
)

type TagService struct {
	tx     repository.TxManager
	logger *zap.Logger
}

func NewTagService(tx repository.TxManager, logger *zap.Logger) *TagService {
	return &TagService{tx: tx, logger: logger}
}

func (s *TagService) List(ctx context.Context, userID int64, page repository.Page) (*ListResult[model.TagWithCreator], error) {
	repos := s.tx.Repos()
	rows, total, err := repos.Tags.ListOwned(ctx, userID, page)
	if err != nil {
		return nil, err
	}
	users, err := loadUsers(ctx, repos.Users, userID)
	if err != nil {
		return nil, err
	}
	items := make([]model.TagWithCreator, 0, len(rows))
	for _, t := range rows {
		items = append(items, model.TagWithCreator{Tag: t, CreatedBy: users.get(t.CreatedByID)})
	}
	return &ListResult[model.TagWithCreator]{Items: items, Total: total}, nil
}

func (s *TagService) Get(ctx context.Context, userID, id int64) (*model.TagWithCreator, error) {
	t, err := s.tx.Repos().Tags.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.withCreator(ctx, t)
}

func (s *TagService) Create(ctx context.Context, userID int64, name *string) (*model.TagWithCreator, error) {
	t := &model.Tag{CreatedByID: userID}
	if err := applyTagName(t, name, true); err != nil {
		return nil, err
	}
	if err := s.tx.Repos().Tags.Insert(ctx, t); err != nil {
		return nil, mapWriteError(err, "name", "tag with this name already exists.")
	}
	logger.WithTrace(ctx, s.logger).Info("Tag created", zap.Int64("tag_id", t.ID))
	return s.withCreator(ctx, t)
}

func (s *TagService) Update(ctx context.Context, userID, id int64, name *string, partial bool) (*model.TagWithCreator, error) {
	repos := s.tx.Repos()
	t, err := repos.Tags.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := applyTagName(t, name, !partial); err != nil {
		return nil, err
	}
	if err := repos.Tags.Update(ctx, t); err != nil {
		return nil, mapWriteError(err, "name", "tag with this name already exists.")
	}
	return s.withCreator(ctx, t)
}

func (s *TagService) Delete(ctx context.Context, userID, id int64) error {
	repos := s.tx.Repos()
	t, err := repos.Tags.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := repos.Tags.Delete(ctx, t.ID); err != nil {
		return err
	}
	logger.WithTrace(ctx, s.logger).Info("Tag deleted", zap.Int64("tag_id", t.ID))
	return nil
}

func (s *TagService) withCreator(ctx context.Context, t *model.Tag) (*model.TagWithCreator, error) {
	users, err := loadUsers(ctx, s.tx.Repos().Users, t.CreatedByID)
	if err != nil {
		return nil, err
	}
	return &model.TagWithCreator{Tag: *t, CreatedBy: users.get(t.CreatedByID)}, nil
}

func applyTagName(t *model.Tag, name *string, required bool) error {
	verr := &apperr.ValidationError{}
	if required {
		requiredText(verr, "name", name, model.NameMaxLen)
	} else {
		checkText(verr, "name", name, model.NameMaxLen)
	}
	if name != nil {
		t.Name = strings.TrimSpace(*name)
	}
	return verr.OrNil()
}
