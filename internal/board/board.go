// Package board implements the public message board: messages, nested
// replies, attachments and moderation.
package board

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/maycafe/internal/apperr"
	"github.com/dukerupert/maycafe/internal/blob"
	"github.com/dukerupert/maycafe/internal/model"
	"github.com/dukerupert/maycafe/internal/notify"
	"github.com/dukerupert/maycafe/internal/store"
)

const previewLen = 100

type Attachments struct {
	Images []blob.Upload
	Video  *blob.Upload
	Files  []blob.Upload
}

type NewMessage struct {
	Title       string
	Name        string
	Email       string
	Content     string
	Attachments Attachments
}

type NewReply struct {
	MessageID int64
	ParentID  *int64
	Name      string
	Email     string
	Content   string
	Image     *blob.Upload
	Video     *blob.Upload
}

type Service struct {
	db       *sql.DB
	messages *store.MessageStore
	blobs    blob.Store
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	nameMu   sync.Mutex
	lastName time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, used for naming stored attachments.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *sql.DB, blobs blob.Store, notifier notify.Notifier, logger *slog.Logger, opts ...Option) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	s := &Service{
		db:       db,
		messages: store.NewMessageStore(db),
		blobs:    blobs,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListApproved returns the public board, newest first.
func (s *Service) ListApproved(ctx context.Context) ([]model.Message, error) {
	msgs, err := s.messages.ListApproved(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list messages")
	}
	return nonNil(msgs), nil
}

// ListAll returns every message for moderation, newest first.
func (s *Service) ListAll(ctx context.Context) ([]model.Message, error) {
	msgs, err := s.messages.ListAll(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "list messages")
	}
	return nonNil(msgs), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Message, error) {
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, "get message")
	}
	if m == nil {
		return nil, apperr.E(apperr.NotFound, "message not found")
	}
	return m, nil
}

func (s *Service) Create(ctx context.Context, in NewMessage) (*model.Message, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Content = strings.TrimSpace(in.Content)
	if in.Title == "" || in.Name == "" || in.Email == "" || in.Content == "" {
		return nil, apperr.E(apperr.Validation, "title, name, email and content are required")
	}

	var saved []string
	msg := &model.Message{
		Title:    in.Title,
		Name:     in.Name,
		Email:    in.Email,
		Content:  in.Content,
		Approved: true,
	}

	for _, up := range in.Attachments.Images {
		p, err := s.saveIfAllowed(ctx, up, blob.ImageExts)
		if err != nil {
			s.discard(saved)
			return nil, err
		}
		if p != "" {
			msg.ImagePaths = append(msg.ImagePaths, p)
			saved = append(saved, p)
		}
	}
	if in.Attachments.Video != nil {
		p, err := s.saveIfAllowed(ctx, *in.Attachments.Video, blob.VideoExts)
		if err != nil {
			s.discard(saved)
			return nil, err
		}
		if p != "" {
			msg.VideoPath = &p
			saved = append(saved, p)
		}
	}
	for _, up := range in.Attachments.Files {
		p, err := s.saveIfAllowed(ctx, up, nil)
		if err != nil {
			s.discard(saved)
			return nil, err
		}
		if p != "" {
			msg.FilePaths = append(msg.FilePaths, p)
			saved = append(saved, p)
		}
	}

	created, err := s.messages.Create(ctx, msg)
	if err != nil {
		s.discard(saved)
		return nil, apperr.Wrap(err, "create message")
	}

	s.notifier.Notify(notify.Event{
		Kind:      notify.KindMessageCreated,
		MessageID: created.ID,
		Title:     created.Title,
		Author:    created.Name,
		Preview:   notify.Preview(created.Content, previewLen),
	})
	return created, nil
}

// Update changes the title and content. Attachments cannot be edited.
func (s *Service) Update(ctx context.Context, id int64, title, content string) (*model.Message, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if title == "" || content == "" {
		return nil, apperr.E(apperr.Validation, "title and content are required")
	}

	m, err := s.messages.Update(ctx, id, title, content)
	if err != nil {
		return nil, apperr.Wrap(err, "update message")
	}
	return m, nil
}

// Approve publishes a message. Approving twice is harmless.
func (s *Service) Approve(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.messages.Approve(ctx, id); err != nil {
		return apperr.Wrap(err, "approve message")
	}
	return nil
}

// Delete removes a message, its replies and every file they reference. The
// paths are collected in the same write transaction as the delete, so a reply
// posted concurrently either lands before it and is cleaned up here or fails.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var paths []string
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		messages := s.messages.WithTx(tx)

		m, err := messages.GetByID(ctx, id)
		if err != nil {
			return apperr.Wrap(err, "get message")
		}
		if m == nil {
			return apperr.E(apperr.NotFound, "message not found")
		}
		replies, err := messages.ListReplies(ctx, id)
		if err != nil {
			return apperr.Wrap(err, "list replies")
		}

		paths = m.BlobPaths()
		for _, r := range replies {
			if r.ImagePath != nil {
				paths = append(paths, *r.ImagePath)
			}
			if r.VideoPath != nil {
				paths = append(paths, *r.VideoPath)
			}
		}

		if err := messages.Delete(ctx, id); err != nil {
			return apperr.Wrap(err, "delete message")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.discard(paths)
	return nil
}

func (s *Service) AddReply(ctx context.Context, in NewReply) (*model.Reply, error) {
	m, err := s.Get(ctx, in.MessageID)
	if err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		parent, err := s.messages.GetReply(ctx, *in.ParentID)
		if err != nil {
			return nil, apperr.Wrap(err, "get parent reply")
		}
		if parent == nil || parent.MessageID != in.MessageID {
			return nil, apperr.E(apperr.Validation, "parent reply does not belong to this message")
		}
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Content = strings.TrimSpace(in.Content)
	if in.Name == "" || in.Email == "" || in.Content == "" {
		return nil, apperr.E(apperr.Validation, "name, email and content are required")
	}

	reply := &model.Reply{
		MessageID: in.MessageID,
		ParentID:  in.ParentID,
		Name:      in.Name,
		Email:     in.Email,
		Content:   in.Content,
	}

	var saved []string
	if in.Image != nil {
		p, err := s.saveIfAllowed(ctx, *in.Image, blob.ImageExts)
		if err != nil {
			return nil, err
		}
		if p != "" {
			reply.ImagePath = &p
			saved = append(saved, p)
		}
	}
	if in.Video != nil {
		p, err := s.saveIfAllowed(ctx, *in.Video, blob.VideoExts)
		if err != nil {
			s.discard(saved)
			return nil, err
		}
		if p != "" {
			reply.VideoPath = &p
			saved = append(saved, p)
		}
	}

	created, err := s.messages.CreateReply(ctx, reply)
	if err != nil {
		s.discard(saved)
		return nil, apperr.Wrap(err, "create reply")
	}

	s.notifier.Notify(notify.Event{
		Kind:      notify.KindReplyCreated,
		MessageID: m.ID,
		ReplyID:   created.ID,
		Title:     m.Title,
		Author:    created.Name,
		Preview:   notify.Preview(created.Content, previewLen),
	})
	return created, nil
}

// saveIfAllowed stores up and returns its path. Files without a name, or
// whose extension is not in allowed, are skipped and yield "". A nil set
// accepts any extension.
func (s *Service) saveIfAllowed(ctx context.Context, up blob.Upload, allowed map[string]bool) (string, error) {
	if up.Filename == "" || up.Body == nil {
		return "", nil
	}
	if allowed != nil && !blob.Allowed(up.Filename, allowed) {
		s.logger.Debug("skipping attachment with disallowed extension", "filename", up.Filename)
		return "", nil
	}
	p, err := s.blobs.Save(ctx, blob.GenerateName(s.nameTime(), up.Filename), up.Body)
	if err != nil {
		return "", apperr.Wrap(err, "save attachment")
	}
	return p, nil
}

// nameTime returns a strictly increasing timestamp so that two uploads of the
// same file in one request get distinct names.
func (s *Service) nameTime() time.Time {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	t := s.now()
	if !t.After(s.lastName) {
		t = s.lastName.Add(time.Microsecond)
	}
	s.lastName = t
	return t
}

// discard deletes blobs on a best-effort basis. Missing files are fine.
func (s *Service) discard(paths []string) {
	for _, p := range paths {
		if err := s.blobs.Delete(context.Background(), p); err != nil {
			s.logger.Warn("delete blob", "path", p, "error", err)
		}
	}
}

func nonNil(msgs []model.Message) []model.Message {
	if msgs == nil {
		return []model.Message{}
	}
	return msgs
}
