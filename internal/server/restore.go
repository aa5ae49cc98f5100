package server

import (
	"context"
	"encoding/json"
	"errors"

	"traitors-table/internal/db"
	"traitors-table/internal/store"
)

// Restore rebuilds the tree from the persisted node rows. It must run before
// the handler starts serving.
func (s *Server) Restore(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database not configured")
	}
	var nodes []db.Node
	if err := s.db.WithContext(ctx).Order("rev asc").Order("path asc").Find(&nodes).Error; err != nil {
		return err
	}
	changes := nodesToChanges(nodes)
	if err := s.store.Restore(changes); err != nil {
		return err
	}
	s.log.Info().Int("nodes", len(nodes)).Int64("revision", s.store.Revision()).Msg("state restored")
	return nil
}

func nodesToChanges(nodes []db.Node) []store.Change {
	changes := make([]store.Change, 0, len(nodes))
	for _, node := range nodes {
		changes = append(changes, store.Change{
			Path:  node.Path,
			Value: json.RawMessage(node.Value),
			Rev:   node.Rev,
		})
	}
	return changes
}
