package service

import (
	"context"

	"go.uber.org/zap"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/policy"
	"taskmanager/internal/repository"
	"taskmanager/pkg/logger"
)

type CommentInput struct {
	TaskID  *int64
	Content *string
}

type CommentService struct {
	tx     repository.TxManager
	logger *zap.Logger
}

func NewCommentService(tx repository.TxManager, logger *zap.Logger) *CommentService {
	return &CommentService{tx: tx, logger: logger}
}

// List pages through comments on tasks visible to userID, optionally narrowed to one task.
func (s *CommentService) List(ctx context.Context, userID int64, taskID *int64, page repository.Page) (*ListResult[model.CommentWithAuthor], error) {
	repos := s.tx.Repos()
	rows, total, err := repos.Comments.ListVisible(ctx, userID, taskID, page)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.AuthorID)
	}
	users, err := loadUsers(ctx, repos.Users, ids...)
	if err != nil {
		return nil, err
	}
	items := make([]model.CommentWithAuthor, 0, len(rows))
	for _, c := range rows {
		items = append(items, model.CommentWithAuthor{Comment: c, Author: users.get(c.AuthorID)})
	}
	return &ListResult[model.CommentWithAuthor]{Items: items, Total: total}, nil
}

func (s *CommentService) Get(ctx context.Context, userID, id int64) (*model.CommentWithAuthor, error) {
	c, err := s.tx.Repos().Comments.GetVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.withAuthor(ctx, c)
}

func (s *CommentService) Create(ctx context.Context, userID int64, in CommentInput) (*model.CommentWithAuthor, error) {
	repos := s.tx.Repos()
	c := &model.Comment{AuthorID: userID}
	if err := s.applyInput(ctx, repos, userID, c, in, true); err != nil {
		return nil, err
	}
	if err := repos.Comments.Insert(ctx, c); err != nil {
		return nil, mapWriteError(err, "", "")
	}
	logger.WithTrace(ctx, s.logger).Info("Comment created",
		zap.Int64("comment_id", c.ID),
		zap.Int64("task_id", c.TaskID),
	)
	return s.withAuthor(ctx, c)
}

// Update edits a comment. Only its author may change it.
func (s *CommentService) Update(ctx context.Context, userID, id int64, in CommentInput, partial bool) (*model.CommentWithAuthor, error) {
	repos := s.tx.Repos()
	c, err := repos.Comments.GetVisible(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := policy.CheckAuthor(userID, c.AuthorID); err != nil {
		return nil, err
	}
	if err := s.applyInput(ctx, repos, userID, c, in, !partial); err != nil {
		return nil, err
	}
	if err := repos.Comments.Update(ctx, c); err != nil {
		return nil, mapWriteError(err, "", "")
	}
	return s.withAuthor(ctx, c)
}

func (s *CommentService) Delete(ctx context.Context, userID, id int64) error {
	repos := s.tx.Repos()
	c, err := repos.Comments.GetVisible(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := policy.CheckAuthor(userID, c.AuthorID); err != nil {
		return err
	}
	if err := repos.Comments.Delete(ctx, c.ID); err != nil {
		return err
	}
	logger.WithTrace(ctx, s.logger).Info("Comment deleted", zap.Int64("comment_id", c.ID))
	return nil
}

func (s *CommentService) applyInput(ctx context.Context, repos *repository.Repositories, userID int64, c *model.Comment, in CommentInput, full bool) error {
	verr := &apperr.ValidationError{}
	if full {
		requiredText(verr, "content", in.Content, 0)
	} else {
		checkText(verr, "content", in.Content, 0)
	}
	if in.Content != nil {
		c.Content = *in.Content
	}

	if in.TaskID == nil {
		if full {
			verr.Add("task", "This field is required.")
		}
		return verr.OrNil()
	}
	visible, err := repos.Tasks.IsVisible(ctx, *in.TaskID, userID)
	if err != nil {
		return err
	}
	if !visible {
		invalidPK(verr, "task", *in.TaskID)
	} else {
		c.TaskID = *in.TaskID
	}
	return verr.OrNil()
}

func (s *CommentService) withAuthor(ctx context.Context, c *model.Comment) (*model.CommentWithAuthor, error) {
	users, err := loadUsers(ctx, s.tx.Repos().Users, c.AuthorID)
	if err != nil {
		return nil, err
	}
	return &model.CommentWithAuthor{Comment: *c, Author: users.get(c.AuthorID)}, nil
}
