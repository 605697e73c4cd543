package service

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/repository"
	"taskmanager/pkg/logger"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type CategoryInput struct {
	Name        *string
	Description *string
	Color       *string
}

type CategoryService struct {
	tx     repository.TxManager
	logger *zap.Logger
}

func NewCategoryService(tx repository.TxManager, logger *zap.Logger) *CategoryService {
	return &CategoryService{tx: tx, logger: logger}
}

func (s *CategoryService) List(ctx context.Context, userID int64, page repository.Page) (*ListResult[model.CategoryWithCreator], error) {
	repos := s.tx.Repos()
	rows, total, err := repos.Categories.ListOwned(ctx, userID, page)
	if err != nil {
		return nil, err
	}
	users, err := loadUsers(ctx, repos.Users, userID)
	if err != nil {
		return nil, err
	}
	items := make([]model.CategoryWithCreator, 0, len(rows))
	for _, c := range rows {
		items = append(items, model.CategoryWithCreator{Category: c, CreatedBy: users.get(c.CreatedByID)})
	}
	return &ListResult[model.CategoryWithCreator]{Items: items, Total: total}, nil
}

func (s *CategoryService) Get(ctx context.Context, userID, id int64) (*model.CategoryWithCreator, error) {
	c, err := s.tx.Repos().Categories.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.withCreator(ctx, c)
}

func (s *CategoryService) Create(ctx context.Context, userID int64, in CategoryInput) (*model.CategoryWithCreator, error) {
	c := &model.Category{Color: model.DefaultCategoryColor, CreatedByID: userID}
	if err := applyCategoryInput(c, in, true); err != nil {
		return nil, err
	}
	if err := s.tx.Repos().Categories.Insert(ctx, c); err != nil {
		return nil, mapWriteError(err, "name", "category with this name already exists.")
	}
	logger.WithTrace(ctx, s.logger).Info("Category created", zap.Int64("category_id", c.ID))
	return s.withCreator(ctx, c)
}

// Update changes a category the requester created. Categories of other users are not found.
func (s *CategoryService) Update(ctx context.Context, userID, id int64, in CategoryInput, partial bool) (*model.CategoryWithCreator, error) {
	repos := s.tx.Repos()
	c, err := repos.Categories.GetOwned(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := applyCategoryInput(c, in, !partial); err != nil {
		return nil, err
	}
	if err := repos.Categories.Update(ctx, c); err != nil {
		return nil, mapWriteError(err, "name", "category with this name already exists.")
	}
	return s.withCreator(ctx, c)
}

func (s *CategoryService) Delete(ctx context.Context, userID, id int64) error {
	repos := s.tx.Repos()
	c, err := repos.Categories.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := repos.Categories.Delete(ctx, c.ID); err != nil {
		return err
	}
	logger.WithTrace(ctx, s.logger).Info("Category deleted", zap.Int64("category_id", c.ID))
	return nil
}

func (s *CategoryService) withCreator(ctx context.Context, c *model.Category) (*model.CategoryWithCreator, error) {
	users, err := loadUsers(ctx, s.tx.Repos().Users, c.CreatedByID)
	if err != nil {
		return nil, err
	}
	return &model.CategoryWithCreator{Category: *c, CreatedBy: users.get(c.CreatedByID)}, nil
}

func applyCategoryInput(c *model.Category, in CategoryInput, requireName bool) error {
	verr := &apperr.ValidationError{}
	if requireName {
		requiredText(verr, "name", in.Name, model.NameMaxLen)
	} else {
		checkText(verr, "name", in.Name, model.NameMaxLen)
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.Color != nil {
		color := strings.TrimSpace(*in.Color)
		if !colorPattern.MatchString(color) {
			verr.Add("color", "Enter a color in #RRGGBB format.")
		} else {
			c.Color = color
		}
	}
	return verr.OrNil()
}
