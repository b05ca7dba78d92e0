package resolution

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/siherrmann/facter/database"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
)

// Engine resolves job scoped candidate entidades against the persisted store.
// A candidate whose best match scores at or above the similarity threshold is
// resolved directly to the canonical target, fresh candidates are never
// materialized as separate entidades. Candidates without a match become new
// canonical entidades at commit time.
//
// Resolution reads are advisory, the persistence gateway re-checks versions
// and the canonical-name unique index inside the commit transaction.
type Engine struct {
	entidades database.EntidadesDBHandlerFunctions
	embedder  EmbedFunc
	config    model.ResolutionConfig
	lookup    *cache.Cache
	logger    *slog.Logger
}

// NewEngine creates a new entity resolution engine.
func NewEngine(entidades database.EntidadesDBHandlerFunctions, config model.ResolutionConfig, logger *slog.Logger) (*Engine, error) {
	if entidades == nil {
		return nil, helper.NewError("engine validation", fmt.Errorf("entidades handler is required"))
	}
	if config.SimilarityThreshold <= 0 || config.SimilarityThreshold > 1 {
		return nil, helper.NewError("engine validation", fmt.Errorf("similarity threshold must be in (0,1], got %v", config.SimilarityThreshold))
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 10
	}

	return &Engine{
		entidades: entidades,
		config:    config,
		lookup:    cache.New(config.CacheTTL, 2*config.CacheTTL),
		logger:    logger,
	}, nil
}

// SetEmbedder sets the name embedder. Optional, only used when the
// configuration enables embeddings.
func (e *Engine) SetEmbedder(embedder EmbedFunc) {
	e.embedder = embedder
}

// Resolve maps each candidate to its canonical persisted entidad or marks it
// as new. Candidates within the same job that normalize to the same name and
// type collapse onto the first one.
func (e *Engine) Resolve(candidates []*model.Entidad) (*model.ResolvedEntitySet, error) {
	resolved := &model.ResolvedEntitySet{
		Matched:   map[int64]int64{},
		Collapsed: map[int64]int64{},
	}
	mergedInto := map[int64]*model.Entidad{}
	newByKey := map[string]*model.Entidad{}
	plannedFusions := map[int64]bool{}

	for _, candidate := range candidates {
		key := lookupKey(candidate)

		// Two new candidates for the same referent in one job collapse onto
		// the first. Collapsed keeps the job scoped target id separate from
		// the persisted store ids in Matched.
		if first, ok := newByKey[key]; ok {
			first.AppendAliases(append([]string{candidate.Name}, candidate.Aliases...))
			first.AppendDescription(descriptionBullets(candidate.Description))
			resolved.Collapsed[candidate.ID] = first.ID
			continue
		}

		target, err := e.lookupCached(key)
		if err != nil {
			return nil, err
		}
		if target == nil {
			winner, losers, err := e.search(candidate)
			if err != nil {
				return nil, err
			}
			target = winner

			for _, loser := range losers {
				if plannedFusions[loser.ID] {
					continue
				}
				plannedFusions[loser.ID] = true
				resolved.Fusions = append(resolved.Fusions, model.Fusion{
					SourceID:      loser.ID,
					TargetID:      target.ID,
					SourceVersion: loser.Version,
				})
			}
		}

		if target == nil {
			newByKey[key] = candidate
			resolved.New = append(resolved.New, candidate)
			continue
		}

		merged, ok := mergedInto[target.ID]
		if !ok {
			copied := *target
			merged = &copied
			mergedInto[target.ID] = merged
			resolved.MergedInto = append(resolved.MergedInto, merged)
		}
		merged.AppendAliases(append([]string{candidate.Name}, candidate.Aliases...))
		merged.AppendDescription(descriptionBullets(candidate.Description))

		resolved.Matched[candidate.ID] = target.ID
		e.lookup.Set(key, target.ID, cache.DefaultExpiration)
	}

	return resolved, nil
}

// lookupCached returns the cached canonical entidad for the key, or nil on a
// miss. Stale entries pointing at a since-fused entidad are dropped.
func (e *Engine) lookupCached(key string) (*model.Entidad, error) {
	cached, ok := e.lookup.Get(key)
	if !ok {
		return nil, nil
	}

	target, err := e.entidades.SelectEntidad(cached.(int64))
	if err != nil {
		e.lookup.Delete(key)
		return nil, nil
	}
	if !target.IsCanonical() {
		e.lookup.Delete(key)
		return nil, nil
	}

	return target, nil
}

// search runs the similarity search for a candidate. It returns the winning
// match at or above the threshold (nil when there is none) and any further
// above-threshold matches, which denote the same referent and are to be fused
// into the winner.
func (e *Engine) search(candidate *model.Entidad) (*model.Entidad, []*model.Entidad, error) {
	if e.config.UseEmbeddings && e.embedder != nil && len(candidate.NameEmbedding) == 0 {
		embedding, err := e.embedder(candidate.Name)
		if err != nil {
			// The embedding channel is advisory, trigram similarity carries
			// the search on its own.
			e.logger.Warn("Name embedding failed", "name", candidate.Name, "error", err.Error())
		} else {
			candidate.NameEmbedding = embedding
		}
	}

	matches, err := e.entidades.SelectSimilarEntidades(
		model.NormalizeName(candidate.Name),
		candidate.Type,
		candidate.NameEmbedding,
		e.config.SearchLimit,
	)
	if err != nil {
		return nil, nil, helper.NewError("similarity search", err)
	}

	var above []*model.Entidad
	for _, match := range matches {
		if match.Similarity >= e.config.SimilarityThreshold {
			above = append(above, match)
		}
	}
	if len(above) == 0 {
		return nil, nil, nil
	}

	// Deterministic tie-break between matches above threshold: greater
	// relation count first, then the lexicographically smaller name.
	sort.SliceStable(above, func(i, j int) bool {
		if above[i].RelationCount != above[j].RelationCount {
			return above[i].RelationCount > above[j].RelationCount
		}
		return above[i].Name < above[j].Name
	})

	return above[0], above[1:], nil
}

func lookupKey(candidate *model.Entidad) string {
	return string(candidate.Type) + "\x00" + model.NormalizeName(candidate.Name)
}

// descriptionBullets splits an accumulated description into its bullet lines.
func descriptionBullets(description string) []string {
	var bullets []string
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
		if line != "" {
			bullets = append(bullets, line)
		}
	}
	return bullets
}
