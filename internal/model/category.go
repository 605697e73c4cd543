package model

import "time"

const (
	NameMaxLen           = 50
	DefaultCategoryColor = "#808080"
)

type Category struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Color       string    `db:"color"`
	CreatedByID int64     `db:"created_by_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type CategoryWithCreator struct {
	Category
	CreatedBy User
}

type Tag struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	CreatedByID int64     `db:"created_by_id"`
	CreatedAt   time.Time `db:"created_at"`
}

type TagWithCreator struct {
	Tag
	CreatedBy User
}
