package model

import "time"

type Comment struct {
	ID        int64     `db:"id"`
	TaskID    int64     `db:"task_id"`
	AuthorID  int64     `db:"author_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type CommentWithAuthor struct {
	Comment
	Author User
}

const FilenameMaxLen = 255

type Attachment struct {
	ID           int64     `db:"id"`
	TaskID       int64     `db:"task_id"`
	StorageKey   string    `db:"storage_key"`
	Filename     string    `db:"filename"`
	FileSize     int64     `db:"file_size"`
	UploadedByID int64     `db:"uploaded_by_id"`
	UploadedAt   time.Time `db:"uploaded_at"`
}

type AttachmentWithUploader struct {
	Attachment
	UploadedBy User
}
