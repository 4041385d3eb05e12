package board

import (
	"context"

	"github.com/dukerupert/maycafe/internal/apperr"
	"github.com/dukerupert/maycafe/internal/model"
)

// ReplyTree returns the top-level replies of a message with their children
// nested to any depth. Siblings keep creation order.
func (s *Service) ReplyTree(ctx context.Context, messageID int64) ([]*model.ReplyNode, error) {
	if _, err := s.Get(ctx, messageID); err != nil {
		return nil, err
	}
	replies, err := s.messages.ListReplies(ctx, messageID)
	if err != nil {
		return nil, apperr.Wrap(err, "list replies")
	}
	return BuildTree(replies), nil
}

// BuildTree assembles replies, which must be sorted by creation time, into a
// forest. It makes one pass to index nodes and one to link them, so chains of
// any depth are handled without recursion. A reply whose parent is not in
// the slice is treated as a root.
func BuildTree(replies []model.Reply) []*model.ReplyNode {
	nodes := make(map[int64]*model.ReplyNode, len(replies))
	for i := range replies {
		nodes[replies[i].ID] = &model.ReplyNode{Reply: replies[i], Children: []*model.ReplyNode{}}
	}

	roots := []*model.ReplyNode{}
	for i := range replies {
		n := nodes[replies[i].ID]
		if replies[i].ParentID != nil {
			if parent, ok := nodes[*replies[i].ParentID]; ok {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}
