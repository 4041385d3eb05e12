package board

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/maycafe/internal/apperr"
	"github.com/dukerupert/maycafe/internal/blob"
	"github.com/dukerupert/maycafe/internal/database"
	"github.com/dukerupert/maycafe/internal/model"
	"github.com/dukerupert/maycafe/internal/notify"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(ev notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

type testEnv struct {
	svc      *Service
	db       *sql.DB
	root     string
	notifier *recordingNotifier
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	root := t.TempDir()
	n := &recordingNotifier{}
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(db, blob.NewLocalStore(root), n, slog.Default(),
		WithClock(func() time.Time { return clock }))
	return &testEnv{svc: svc, db: db, root: root, notifier: n}
}

func upload(name, body string) blob.Upload {
	return blob.Upload{Filename: name, Body: strings.NewReader(body)}
}

func (e *testEnv) exists(t *testing.T, p string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(p)))
	return err == nil
}

func createMessage(t *testing.T, svc *Service, title string) *model.Message {
	t.Helper()
	m, err := svc.Create(context.Background(), NewMessage{Title: title, Name: "Ann", Email: "ann@example.com", Content: "hello"})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	return m
}

func TestCreateValidation(t *testing.T) {
	env := setupService(t)
	tests := []NewMessage{
		{Title: "  ", Name: "Ann", Email: "a@x", Content: "c"},
		{Title: "t", Name: "", Email: "a@x", Content: "c"},
		{Title: "t", Name: "Ann", Email: "\t", Content: "c"},
		{Title: "t", Name: "Ann", Email: "a@x", Content: " \n "},
	}
	for _, in := range tests {
		_, err := env.svc.Create(context.Background(), in)
		if !apperr.Is(err, apperr.Validation) {
			t.Errorf("Create(%+v) err = %v, want validation", in, err)
		}
	}
	if len(env.notifier.events) != 0 {
		t.Error("invalid messages should not notify")
	}
}

func TestCreateWithAttachments(t *testing.T) {
	env := setupService(t)

	m, err := env.svc.Create(context.Background(), NewMessage{
		Title: " Latte art ", Name: "Ann", Email: "ann@example.com", Content: "look",
		Attachments: Attachments{
			Images: []blob.Upload{upload("a.png", "1"), upload("a.png", "2"), upload("b.bmp", "3")},
			Video:  &blob.Upload{Filename: "clip.mp4", Body: strings.NewReader("v")},
			Files:  []blob.Upload{upload("menu.xyz", "f")},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if m.Title != "Latte art" {
		t.Errorf("title = %q, want trimmed", m.Title)
	}
	if !m.Approved {
		t.Error("new messages are published immediately")
	}
	if len(m.ImagePaths) != 2 {
		t.Fatalf("image paths = %v, want 2 (bmp skipped)", m.ImagePaths)
	}
	if m.ImagePaths[0] == m.ImagePaths[1] {
		t.Error("duplicate upload names collided")
	}
	if m.VideoPath == nil || !strings.HasSuffix(*m.VideoPath, "_clip.mp4") {
		t.Errorf("video path = %v", m.VideoPath)
	}
	if len(m.FilePaths) != 1 {
		t.Errorf("generic files accept any extension, got %v", m.FilePaths)
	}
	for _, p := range m.BlobPaths() {
		if !strings.HasPrefix(p, "uploads/") {
			t.Errorf("path %q missing uploads/ prefix", p)
		}
		if !env.exists(t, p) {
			t.Errorf("blob %q not written", p)
		}
	}
}

func TestCreateNotifiesWithPreview(t *testing.T) {
	env := setupService(t)
	long := strings.Repeat("é", 150)

	m, err := env.svc.Create(context.Background(), NewMessage{Title: "t", Name: "Ann", Email: "a@x", Content: long})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(env.notifier.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(env.notifier.events))
	}
	ev := env.notifier.events[0]
	if ev.Kind != notify.KindMessageCreated || ev.MessageID != m.ID {
		t.Errorf("event = %+v", ev)
	}
	if n := utf8.RuneCountInString(ev.Preview); n != 100 {
		t.Errorf("preview length = %d runes, want 100", n)
	}
	if !strings.HasSuffix(ev.Preview, "...") {
		t.Errorf("preview %q should mark the cut", ev.Preview)
	}
}

func TestUpdate(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := createMessage(t, env.svc, "first")

	if _, err := env.svc.Update(ctx, 999, "x", "y"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("update missing err = %v, want not found", err)
	}
	if _, err := env.svc.Update(ctx, m.ID, "", "y"); !apperr.Is(err, apperr.Validation) {
		t.Errorf("update empty err = %v, want validation", err)
	}

	got, err := env.svc.Update(ctx, m.ID, "second", "edited")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "second" || got.Content != "edited" || got.Name != "Ann" {
		t.Errorf("updated = %+v", got)
	}
}

func TestApproveIdempotent(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := createMessage(t, env.svc, "first")

	env.db.Exec(`UPDATE messages SET approved = 0 WHERE id = ?`, m.ID)
	list, _ := env.svc.ListApproved(ctx)
	if len(list) != 0 {
		t.Fatalf("hidden message listed publicly")
	}
	all, _ := env.svc.ListAll(ctx)
	if len(all) != 1 {
		t.Fatalf("admin list = %d, want 1", len(all))
	}

	for i := 0; i < 2; i++ {
		if err := env.svc.Approve(ctx, m.ID); err != nil {
			t.Fatalf("approve #%d: %v", i+1, err)
		}
	}
	list, _ = env.svc.ListApproved(ctx)
	if len(list) != 1 {
		t.Errorf("approved list = %d, want 1", len(list))
	}
	if err := env.svc.Approve(ctx, 999); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("approve missing err = %v", err)
	}
}

func TestAddReplyValidation(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m1 := createMessage(t, env.svc, "one")
	m2 := createMessage(t, env.svc, "two")

	_, err := env.svc.AddReply(ctx, NewReply{MessageID: 999, Name: "B", Email: "b@x", Content: "c"})
	if !apperr.Is(err, apperr.NotFound) {
		t.Errorf("reply to missing message err = %v", err)
	}

	other, err := env.svc.AddReply(ctx, NewReply{MessageID: m2.ID, Name: "B", Email: "b@x", Content: "c"})
	if err != nil {
		t.Fatalf("add reply: %v", err)
	}
	_, err = env.svc.AddReply(ctx, NewReply{MessageID: m1.ID, ParentID: &other.ID, Name: "B", Email: "b@x", Content: "c"})
	if !apperr.Is(err, apperr.Validation) {
		t.Errorf("cross-message parent err = %v, want validation", err)
	}

	missing := int64(12345)
	_, err = env.svc.AddReply(ctx, NewReply{MessageID: m1.ID, ParentID: &missing, Name: "B", Email: "b@x", Content: "c"})
	if !apperr.Is(err, apperr.Validation) {
		t.Errorf("missing parent err = %v, want validation", err)
	}

	_, err = env.svc.AddReply(ctx, NewReply{MessageID: m1.ID, Name: "B", Email: "b@x", Content: "  "})
	if !apperr.Is(err, apperr.Validation) {
		t.Errorf("empty content err = %v, want validation", err)
	}
}

func TestReplyTreeNesting(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := createMessage(t, env.svc, "thread")

	add := func(parent *int64, content string) *model.Reply {
		r, err := env.svc.AddReply(ctx, NewReply{MessageID: m.ID, ParentID: parent, Name: "B", Email: "b@x", Content: content})
		if err != nil {
			t.Fatalf("add reply %s: %v", content, err)
		}
		return r
	}
	a := add(nil, "A")
	b := add(&a.ID, "B")
	add(&b.ID, "C")
	add(&a.ID, "B2")
	add(nil, "D")

	tree, err := env.svc.ReplyTree(ctx, m.ID)
	if err != nil {
		t.Fatalf("reply tree: %v", err)
	}
	if len(tree) != 2 || tree[0].Content != "A" || tree[1].Content != "D" {
		t.Fatalf("roots = %v", contents(tree))
	}
	if got := contents(tree[0].Children); strings.Join(got, ",") != "B,B2" {
		t.Errorf("children of A = %v", got)
	}
	if got := contents(tree[0].Children[0].Children); strings.Join(got, ",") != "C" {
		t.Errorf("children of B = %v", got)
	}
	if tree[1].Children == nil || len(tree[1].Children) != 0 {
		t.Errorf("leaf children should be an empty slice, got %v", tree[1].Children)
	}

	if len(env.notifier.events) != 6 || env.notifier.events[5].Kind != notify.KindReplyCreated {
		t.Errorf("expected reply notifications, got %d events", len(env.notifier.events))
	}

	if _, err := env.svc.ReplyTree(ctx, 999); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("tree of missing message err = %v", err)
	}
}

func contents(nodes []*model.ReplyNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Content
	}
	return out
}

func TestBuildTreeDeepChain(t *testing.T) {
	const depth = 100000
	replies := make([]model.Reply, depth)
	for i := range replies {
		replies[i] = model.Reply{ID: int64(i + 1), Content: "r"}
		if i > 0 {
			parent := int64(i)
			replies[i].ParentID = &parent
		}
	}

	roots := BuildTree(replies)
	if len(roots) != 1 {
		t.Fatalf("roots = %d, want 1", len(roots))
	}
	n, count := roots[0], 1
	for len(n.Children) == 1 {
		n = n.Children[0]
		count++
	}
	if count != depth {
		t.Errorf("chain length = %d, want %d", count, depth)
	}
}

func TestDeleteRemovesRepliesAndBlobs(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	m, err := env.svc.Create(ctx, NewMessage{
		Title: "t", Name: "Ann", Email: "a@x", Content: "c",
		Attachments: Attachments{Images: []blob.Upload{upload("a.png", "1")}, Files: []blob.Upload{upload("doc.txt", "2")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	r, err := env.svc.AddReply(ctx, NewReply{
		MessageID: m.ID, Name: "B", Email: "b@x", Content: "c",
		Image: &blob.Upload{Filename: "r.gif", Body: strings.NewReader("g")},
	})
	if err != nil {
		t.Fatalf("add reply: %v", err)
	}

	paths := append(m.BlobPaths(), *r.ImagePath)
	// One file already vanished from disk; delete must still succeed.
	os.Remove(filepath.Join(env.root, filepath.FromSlash(m.FilePaths[0])))

	if err := env.svc.Delete(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, p := range paths {
		if env.exists(t, p) {
			t.Errorf("blob %q survived delete", p)
		}
	}

	var n int
	env.db.QueryRow(`SELECT COUNT(*) FROM replies WHERE message_id = ?`, m.ID).Scan(&n)
	if n != 0 {
		t.Errorf("replies remaining = %d", n)
	}
	if err := env.svc.Delete(ctx, m.ID); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("second delete err = %v, want not found", err)
	}
}

func TestDeleteRacingRepliesLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "board.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	root := filepath.Join(dir, "blobs")
	svc := NewService(db, blob.NewLocalStore(root), nil, slog.Default())
	ctx := context.Background()
	m := createMessage(t, svc, "busy thread")

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			svc.AddReply(ctx, NewReply{
				MessageID: m.ID, Name: "B", Email: "b@x", Content: "late reply",
				Image: &blob.Upload{Filename: fmt.Sprintf("r%d.png", i), Body: strings.NewReader("img")},
			})
		}(i)
	}
	close(start)
	if err := svc.Delete(ctx, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	wg.Wait()

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM replies`).Scan(&n)
	if n != 0 {
		t.Errorf("replies remaining = %d", n)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "uploads"))
	if len(entries) != 0 {
		t.Errorf("orphaned files: %d", len(entries))
	}
}
