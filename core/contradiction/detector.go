package contradiction

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/siherrmann/facter/database"
	"github.com/siherrmann/facter/helper"
	"github.com/siherrmann/facter/model"
)

// minContentOverlap is the token overlap below which two hechos are treated
// as unrelated claims rather than contradictory versions of the same claim.
const minContentOverlap = 0.3

// Detector compares a job's new hechos against previously persisted hechos
// that share at least one resolved entidad and an overlapping or proximate
// occurrence window. Hechos with no shared entidad are never compared.
// Detection is advisory, it annotates the consolidated result and never
// blocks persistence.
type Detector struct {
	hechos    database.HechosDBHandlerFunctions
	relations database.RelationsDBHandlerFunctions
	config    model.ContradictionConfig
	logger    *slog.Logger
}

// NewDetector creates a new contradiction detector.
func NewDetector(hechos database.HechosDBHandlerFunctions, relations database.RelationsDBHandlerFunctions, config model.ContradictionConfig, logger *slog.Logger) (*Detector, error) {
	if hechos == nil {
		return nil, helper.NewError("detector validation", fmt.Errorf("hechos handler is required"))
	}
	if relations == nil {
		return nil, helper.NewError("detector validation", fmt.Errorf("relations handler is required"))
	}
	if config.ProximityDays <= 0 {
		config.ProximityDays = 30
	}

	return &Detector{
		hechos:    hechos,
		relations: relations,
		config:    config,
		logger:    logger,
	}, nil
}

// Detect returns the contradictions between the job's new hechos and the
// persisted hechos in scope. HechoID on the results is job scoped,
// ContradictsHechoID carries the store identifier of the persisted hecho.
func (d *Detector) Detect(extraction *model.Extraction, resolved *model.ResolvedEntitySet) ([]*model.Contradiccion, error) {
	if extraction == nil || len(extraction.Hechos) == 0 || resolved == nil {
		return nil, nil
	}

	// Only entidades matched to a persisted canonical target can link new
	// hechos to persisted ones.
	var matchedIDs []int64
	matched := map[int64]bool{}
	for _, target := range resolved.MergedInto {
		if !matched[target.ID] {
			matched[target.ID] = true
			matchedIDs = append(matchedIDs, target.ID)
		}
	}
	if len(matchedIDs) == 0 {
		return nil, nil
	}

	newEntidades, newProtagonists := entidadSets(extraction.HechoEntidad, func(id int64) int64 {
		return resolved.CanonicalID(id)
	})

	from, to, ok := occurrenceWindow(extraction.Hechos)
	if !ok {
		return nil, nil
	}
	proximity := time.Duration(d.config.ProximityDays) * 24 * time.Hour

	existing, err := d.hechos.SelectHechosByEntidades(matchedIDs, from.Add(-proximity), to.Add(proximity))
	if err != nil {
		return nil, helper.NewError("select hechos in scope", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}

	existingIDs := make([]int64, 0, len(existing))
	for _, hecho := range existing {
		existingIDs = append(existingIDs, hecho.ID)
	}
	existingRelations, err := d.relations.SelectHechoEntidadByHechos(existingIDs)
	if err != nil {
		return nil, helper.NewError("select relations in scope", err)
	}
	existingEntidades, existingProtagonists := entidadSets(existingRelations, func(id int64) int64 {
		return id
	})

	var contradicciones []*model.Contradiccion
	for _, hecho := range extraction.Hechos {
		for _, persisted := range existing {
			if !sharesEntidad(newEntidades[hecho.ID], existingEntidades[persisted.ID], matched) {
				continue
			}
			if !hecho.OverlapsOrNear(persisted, proximity) {
				continue
			}

			contradiccion := classify(hecho, persisted, newProtagonists[hecho.ID], existingProtagonists[persisted.ID])
			if contradiccion == nil {
				continue
			}

			d.logger.Info("Detected contradiction",
				"hecho", hecho.ID,
				"contradicts", persisted.ID,
				"type", string(contradiccion.Type),
				"severity", contradiccion.Severity,
			)
			contradicciones = append(contradicciones, contradiccion)
		}
	}

	return contradicciones, nil
}

// classify compares two hechos describing a proximate claim about shared
// entidades and returns a typed contradiction, or nil when the contents do
// not diverge. Severity 5 denotes mutually exclusive claims about the same
// entity and time window, 1 a minor wording discrepancy.
func classify(hecho *model.Hecho, persisted *model.Hecho, protagonists map[int64]bool, persistedProtagonists map[int64]bool) *model.Contradiccion {
	words, numbers := tokenize(hecho.Content)
	persistedWords, persistedNumbers := tokenize(persisted.Content)

	similarity := jaccard(words, persistedWords)
	overlaps := !hecho.OccurredFrom.After(persisted.OccurredTo) && !persisted.OccurredFrom.After(hecho.OccurredTo)

	// Dissimilar wording alone does not clear a pair: two proximate claims
	// about the same entidades with disjoint windows contradict on the date
	// even when their vocabularies barely intersect.
	if similarity < minContentOverlap {
		if !overlaps {
			return &model.Contradiccion{
				HechoID:            hecho.ID,
				ContradictsHechoID: persisted.ID,
				Type:               model.ContradiccionDate,
				Severity:           3,
				Explanation:        "occurrence windows are disjoint",
			}
		}
		return nil
	}

	var divergences []model.ContradiccionType
	var reasons []string
	if !overlaps {
		divergences = append(divergences, model.ContradiccionDate)
		reasons = append(reasons, "occurrence windows are disjoint")
	}
	if len(hecho.Countries) > 0 && len(persisted.Countries) > 0 && disjoint(hecho.Countries, persisted.Countries) {
		divergences = append(divergences, model.ContradiccionLocation)
		reasons = append(reasons, "geographies do not intersect")
	}
	if len(numbers) > 0 && len(persistedNumbers) > 0 && !sameSet(numbers, persistedNumbers) {
		divergences = append(divergences, model.ContradiccionValue)
		reasons = append(reasons, "quantities differ")
	}
	if overlaps && len(protagonists) > 0 && len(persistedProtagonists) > 0 && disjointIDs(protagonists, persistedProtagonists) {
		divergences = append(divergences, model.ContradiccionEntities)
		reasons = append(reasons, "claims attributed to different protagonists")
	}

	result := &model.Contradiccion{
		HechoID:            hecho.ID,
		ContradictsHechoID: persisted.ID,
		Explanation:        strings.Join(reasons, "; "),
	}

	switch {
	case len(divergences) >= 2:
		result.Type = model.ContradiccionComplete
		result.Severity = 5
	case len(divergences) == 1:
		result.Type = divergences[0]
		result.Severity = 3
		if result.Type == model.ContradiccionValue {
			result.Severity = 4
		}
	case similarity < 0.6:
		result.Type = model.ContradiccionContent
		result.Severity = 2
		result.Explanation = "same claim with divergent content"
	case similarity < 0.9:
		result.Type = model.ContradiccionContent
		result.Severity = 1
		result.Explanation = "minor wording discrepancy"
	default:
		return nil
	}

	return result
}

// entidadSets builds per-hecho entidad id sets and protagonist subsets from
// hecho-entidad relations, mapping each entidad id through resolve.
func entidadSets(relations []*model.HechoEntidad, resolve func(int64) int64) (map[int64]map[int64]bool, map[int64]map[int64]bool) {
	entidades := map[int64]map[int64]bool{}
	protagonists := map[int64]map[int64]bool{}
	for _, relation := range relations {
		id := resolve(relation.EntidadID)
		if entidades[relation.HechoID] == nil {
			entidades[relation.HechoID] = map[int64]bool{}
		}
		entidades[relation.HechoID][id] = true

		if relation.Role == model.RoleProtagonist {
			if protagonists[relation.HechoID] == nil {
				protagonists[relation.HechoID] = map[int64]bool{}
			}
			protagonists[relation.HechoID][id] = true
		}
	}
	return entidades, protagonists
}

// sharesEntidad reports whether the two sets intersect on an entidad matched
// to a persisted canonical target.
func sharesEntidad(a map[int64]bool, b map[int64]bool, matched map[int64]bool) bool {
	for id := range a {
		if matched[id] && b[id] {
			return true
		}
	}
	return false
}

func occurrenceWindow(hechos []*model.Hecho) (time.Time, time.Time, bool) {
	var from, to time.Time
	found := false
	for _, hecho := range hechos {
		if !found || hecho.OccurredFrom.Before(from) {
			from = hecho.OccurredFrom
		}
		if !found || hecho.OccurredTo.After(to) {
			to = hecho.OccurredTo
		}
		found = true
	}
	return from, to, found
}

// tokenize splits content into lowercased word tokens and numeric tokens.
// Short tokens are dropped, they carry no claim content.
func tokenize(content string) (map[string]bool, map[string]bool) {
	words := map[string]bool{}
	numbers := map[string]bool{}
	for _, token := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != ','
	}) {
		token = strings.Trim(token, ".,")
		if token == "" {
			continue
		}
		if value, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64); err == nil {
			numbers[strconv.FormatFloat(value, 'f', -1, 64)] = true
			continue
		}
		if len([]rune(token)) < 3 {
			continue
		}
		words[token] = true
	}
	return words, numbers
}

func jaccard(a map[string]bool, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func sameSet(a map[string]bool, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for token := range a {
		if !b[token] {
			return false
		}
	}
	return true
}

func disjoint(a []string, b []string) bool {
	set := map[string]bool{}
	for _, value := range a {
		set[strings.ToLower(value)] = true
	}
	for _, value := range b {
		if set[strings.ToLower(value)] {
			return false
		}
	}
	return true
}

func disjointIDs(a map[int64]bool, b map[int64]bool) bool {
	for id := range a {
		if b[id] {
			return false
		}
	}
	return true
}
