package model

import "time"

type Message struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Content    string    `json:"content"`
	ImagePaths []string  `json:"image_paths"`
	VideoPath  *string   `json:"video_path"`
	FilePaths  []string  `json:"file_paths"`
	Approved   bool      `json:"approved"`
	CreatedAt  time.Time `json:"created_at"`
}

// BlobPaths returns every upload path referenced by the message itself.
func (m *Message) BlobPaths() []string {
	paths := make([]string, 0, len(m.ImagePaths)+len(m.FilePaths)+1)
	paths = append(paths, m.ImagePaths...)
	if m.VideoPath != nil {
		paths = append(paths, *m.VideoPath)
	}
	paths = append(paths, m.FilePaths...)
	return paths
}

type Reply struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	ParentID  *int64    `json:"parent_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Content   string    `json:"content"`
	ImagePath *string   `json:"image_path"`
	VideoPath *string   `json:"video_path"`
	CreatedAt time.Time `json:"created_at"`
}

// ReplyNode is a reply with its nested children, as returned by the reply tree.
type ReplyNode struct {
	Reply
	Children []*ReplyNode `json:"children"`
}
