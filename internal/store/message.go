package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/maycafe/internal/model"
)

type MessageStore struct {
	db DBTX
}

func NewMessageStore(db DBTX) *MessageStore {
	return &MessageStore{db: db}
}

// WithTx returns a MessageStore that runs its queries inside tx.
func (s *MessageStore) WithTx(tx *sql.Tx) *MessageStore {
	return &MessageStore{db: tx}
}

func scanMessage(sc scanner) (*model.Message, error) {
	var m model.Message
	var images, files string
	var video sql.NullString
	var approved int

	err := sc.Scan(&m.ID, &m.Title, &m.Name, &m.Email, &m.Content, &images, &video, &files, &approved, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(images), &m.ImagePaths); err != nil {
		return nil, fmt.Errorf("decode image paths: %w", err)
	}
	if err := json.Unmarshal([]byte(files), &m.FilePaths); err != nil {
		return nil, fmt.Errorf("decode file paths: %w", err)
	}
	if m.ImagePaths == nil {
		m.ImagePaths = []string{}
	}
	if m.FilePaths == nil {
		m.FilePaths = []string{}
	}
	m.VideoPath = stringPtr(video)
	m.Approved = approved != 0
	return &m, nil
}

const messageCols = `id, title, name, email, content, image_paths, video_path, file_paths, approved, created_at`

func encodePaths(paths []string) (string, error) {
	if paths == nil {
		paths = []string{}
	}
	b, err := json.Marshal(paths)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *MessageStore) Create(ctx context.Context, m *model.Message) (*model.Message, error) {
	images, err := encodePaths(m.ImagePaths)
	if err != nil {
		return nil, fmt.Errorf("encode image paths: %w", err)
	}
	files, err := encodePaths(m.FilePaths)
	if err != nil {
		return nil, fmt.Errorf("encode file paths: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (title, name, email, content, image_paths, video_path, file_paths, approved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Title, m.Name, m.Email, m.Content, images, nullString(m.VideoPath), files, boolToInt(m.Approved),
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MessageStore) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageCols+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

// ListApproved returns approved messages, newest first.
func (s *MessageStore) ListApproved(ctx context.Context) ([]model.Message, error) {
	return s.list(ctx, `SELECT `+messageCols+` FROM messages WHERE approved = 1 ORDER BY created_at DESC, id DESC`)
}

// ListAll returns every message regardless of moderation state, newest first.
func (s *MessageStore) ListAll(ctx context.Context) ([]model.Message, error) {
	return s.list(ctx, `SELECT `+messageCols+` FROM messages ORDER BY created_at DESC, id DESC`)
}

func (s *MessageStore) list(ctx context.Context, query string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

func (s *MessageStore) Update(ctx context.Context, id int64, title, content string) (*model.Message, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET title = ?, content = ? WHERE id = ?`,
		title, content, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *MessageStore) Approve(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE messages SET approved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("approve message: %w", err)
	}
	return nil
}

// Delete removes the message; its replies go with it through the foreign key cascade.
func (s *MessageStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// --- Reply methods ---

func scanReply(sc scanner) (*model.Reply, error) {
	var r model.Reply
	var parentID sql.NullInt64
	var image, video sql.NullString

	err := sc.Scan(&r.ID, &r.MessageID, &parentID, &r.Name, &r.Email, &r.Content, &image, &video, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		r.ParentID = &parentID.Int64
	}
	r.ImagePath = stringPtr(image)
	r.VideoPath = stringPtr(video)
	return &r, nil
}

const replyCols = `id, message_id, parent_id, name, email, content, image_path, video_path, created_at`

func (s *MessageStore) CreateReply(ctx context.Context, r *model.Reply) (*model.Reply, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO replies (message_id, parent_id, name, email, content, image_path, video_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.MessageID, nullInt64(r.ParentID), r.Name, r.Email, r.Content, nullString(r.ImagePath), nullString(r.VideoPath),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reply: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetReply(ctx, id)
}

func (s *MessageStore) GetReply(ctx context.Context, id int64) (*model.Reply, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+replyCols+` FROM replies WHERE id = ?`, id)
	r, err := scanReply(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reply: %w", err)
	}
	return r, nil
}

// ListReplies returns every reply of a message in creation order.
func (s *MessageStore) ListReplies(ctx context.Context, messageID int64) ([]model.Reply, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+replyCols+` FROM replies WHERE message_id = ? ORDER BY created_at ASC, id ASC`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	var replies []model.Reply
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		replies = append(replies, *r)
	}
	return replies, rows.Err()
}
