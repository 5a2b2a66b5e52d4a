package resolver

import (
	"context"

	"go.uber.org/zap"

	"decision-graph/backend/internal/graph"
	"decision-graph/backend/internal/ontology"
	"decision-graph/backend/internal/similarity"
)

// MergeStats reports the outcome of a duplicate sweep
type MergeStats struct {
	GroupsFound    int `json:"groups_found"`
	EntitiesMerged int `json:"entities_merged"`
}

// MergeDuplicates sweeps the owner's entities for fuzzy-duplicate groups and
// folds each group into a single node. The primary of a group is the entity
// carrying a canonical spelling when one exists, otherwise the first seen.
func (r *Resolver) MergeDuplicates(ctx context.Context, ownerID string) (MergeStats, error) {
	stats := MergeStats{}

	candidates := r.loadCandidates(ctx, ownerID)
	if len(candidates) < 2 {
		return stats, nil
	}

	groups := r.groupDuplicates(candidates)
	stats.GroupsFound = len(groups)

	for _, group := range groups {
		primary := group[0]
		for _, entity := range group {
			if ontology.IsCanonicalValue(entity.Name) {
				primary = entity
				break
			}
		}

		for _, entity := range group {
			if entity.ID == primary.ID {
				continue
			}
			if err := r.store.MergeEntities(ctx, primary.ID, entity.ID); err != nil {
				return stats, err
			}
			stats.EntitiesMerged++
		}
	}

	if stats.EntitiesMerged > 0 {
		r.logger.Info("Duplicate entities merged",
			zap.Int("groups", stats.GroupsFound),
			zap.Int("merged", stats.EntitiesMerged),
		)
	}
	return stats, nil
}

// groupDuplicates greedily clusters entities whose names score at or above
// the fuzzy threshold. Each entity lands in at most one group.
func (r *Resolver) groupDuplicates(candidates []graph.EntityRef) [][]graph.EntityRef {
	var groups [][]graph.EntityRef
	processed := make(map[string]bool)

	for i, entity := range candidates {
		if processed[entity.ID] {
			continue
		}
		group := []graph.EntityRef{entity}
		processed[entity.ID] = true

		for _, other := range candidates[i+1:] {
			if processed[other.ID] {
				continue
			}
			score := similarity.Ratio(
				ontology.NormalizeName(entity.Name),
				ontology.NormalizeName(other.Name),
			)
			if score >= r.fuzzyThreshold {
				group = append(group, other)
				processed[other.ID] = true
			}
		}

		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}
