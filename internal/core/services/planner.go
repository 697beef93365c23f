package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/embedding"
	"github.com/custodia-labs/recall/internal/filter"
	"github.com/custodia-labs/recall/internal/logger"
	"github.com/custodia-labs/recall/internal/rql"
)

// Ensure Planner implements the interface.
var _ driving.QueryService = (*Planner)(nil)

// Weights bundles the per-source fusion weights. Each applies to its
// source's normalized score in every mode; a source with no candidates
// contributes nothing.
type Weights struct {
	Lexical  float64
	Semantic float64
}

// Planner implements RQL validation, hybrid candidate generation, score
// fusion, canonical ordering, snapshot pagination, and explain assembly.
type Planner struct {
	store    driven.Store
	lexical  driven.LexicalIndex
	vector   driven.VectorIndex
	embedder embedding.HashEmbedder

	weights       Weights
	maxLimit      int
	minCandidates int
}

// NewPlanner constructs a Planner. vector may be nil, in which case
// semantic mode degrades to lexical-only with a warning.
func NewPlanner(store driven.Store, lexical driven.LexicalIndex, vector driven.VectorIndex, embedder embedding.HashEmbedder, weights Weights, maxLimit, minCandidates int) *Planner {
	if maxLimit <= 0 {
		maxLimit = 1000
	}
	if minCandidates <= 0 {
		minCandidates = 50
	}
	return &Planner{
		store: store, lexical: lexical, vector: vector, embedder: embedder,
		weights: weights, maxLimit: maxLimit, minCandidates: minCandidates,
	}
}

// Query implements driving.QueryService.
func (p *Planner) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	logger.Section("plan")
	start := time.Now()

	q, err := rql.ParseQuery(req.RQL)
	if err != nil {
		return nil, domain.Wrap(domain.KindValidation, "parse RQL", err)
	}
	logger.Debug("table=%s using_semantic=%v using_lexical=%v", q.Table, q.UsingSemantic != nil, q.UsingLexical != nil)

	limit, offset := p.effectiveLimitOffset(q)

	var warnings []domain.Warning
	if q.OrderBy != nil && q.OrderBy.Target == rql.OrderScore && q.UsingSemantic == nil && q.UsingLexical == nil {
		warnings = append(warnings, domain.Warning{
			Code: "order_by_score_ignored", Stage: "validate",
			Message: "ORDER BY score has no effect without a USING clause",
		})
		q.OrderBy = nil
	}

	pred, err := filter.Compile(q.Filter, q.Table)
	if err != nil {
		return nil, domain.Wrap(domain.KindValidation, "compile filter", err)
	}

	snapshot := req.Snapshot
	if snapshot == "" {
		snapshot, err = p.store.SnapshotToken(ctx)
		if err != nil {
			return nil, domain.Wrap(domain.KindIO, "read snapshot token", err)
		}
	}

	var (
		result   *domain.QueryResult
		explain  *domain.Explain
		timings  []domain.StageTiming
	)

	switch {
	case q.UsingSemantic != nil || q.UsingLexical != nil:
		result, explain, err = p.queryScored(ctx, q, pred, snapshot, limit, offset, &warnings, &timings)
	default:
		result, err = p.queryStrict(ctx, q, pred, snapshot, limit, offset)
	}
	if err != nil {
		return nil, err
	}

	result.Warnings = append(result.Warnings, warnings...)
	result.Fields = convertFields(q.Fields)
	stats, err := p.store.Stats(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.KindIO, "read corpus stats", err)
	}
	stats.Snapshot = snapshot
	result.Stats = stats
	result.EffectiveLimit = limit
	result.EffectiveOffset = offset

	if req.Explain {
		if explain == nil {
			explain = &domain.Explain{Mode: "filter"}
		}
		explain.Timings = append(timings, domain.StageTiming{Stage: "total", Millis: msSince(start)})
		result.Explain = explain
	}

	if req.ContextBudget > 0 {
		result.Context = PackContext(result.Results, req.ContextBudget, req.ContextDiversity)
	}

	return result, nil
}

func msSince(t time.Time) float64 { return float64(time.Since(t).Microseconds()) / 1000.0 }

func (p *Planner) effectiveLimitOffset(q *rql.Query) (limit, offset int) {
	limit = 20
	if q.Limit != nil {
		limit = *q.Limit
	}
	if limit > p.maxLimit {
		limit = p.maxLimit
	}
	if limit < 0 {
		limit = 0
	}
	if q.Offset != nil {
		offset = *q.Offset
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// queryStrict handles the no-USING case: no scoring, Store does the
// ordering and pagination directly.
func (p *Planner) queryStrict(ctx context.Context, q *rql.Query, pred domain.Predicate, snapshot string, limit, offset int) (*domain.QueryResult, error) {
	order := p.resolveUserOrder(q)
	switch q.Table {
	case domain.TableDoc:
		docs, err := p.store.ListDocs(ctx, pred, snapshot, order, limit, offset)
		if err != nil {
			return nil, domain.Wrap(domain.KindIO, "list docs", err)
		}
		results := make([]domain.ScoredChunk, len(docs))
		for i, d := range docs {
			results[i] = domain.ScoredChunk{Doc: d}
		}
		return &domain.QueryResult{Table: q.Table, Results: results}, nil
	default:
		chunks, err := p.store.ListChunks(ctx, pred, snapshot, order, limit, offset)
		if err != nil {
			return nil, domain.Wrap(domain.KindIO, "list chunks", err)
		}
		return &domain.QueryResult{Table: q.Table, Results: chunks}, nil
	}
}

func (p *Planner) resolveUserOrder(q *rql.Query) domain.SortKey {
	if q.OrderBy == nil || q.OrderBy.Target != rql.OrderField {
		return domain.SortKey{}
	}
	name := q.OrderBy.Field.Name
	if key, ok := q.OrderBy.Field.MetaKey(); ok {
		name = "meta." + key
	}
	return domain.SortKey{Field: name, Desc: q.OrderBy.Dir == rql.Desc}
}

func normalize(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return raw
	}
	first := true
	var lo, hi float64
	for _, v := range raw {
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make(map[string]float64, len(raw))
	if len(raw) == 1 || hi == lo {
		for id := range raw {
			out[id] = 1.0
		}
		return out
	}
	span := hi - lo
	for id, v := range raw {
		out[id] = (v - lo) / span
	}
	return out
}

// queryScored handles hybrid/semantic/lexical candidate generation,
// fusion, hydration, and in-process canonical ordering.
func (p *Planner) queryScored(ctx context.Context, q *rql.Query, pred domain.Predicate, snapshot string, limit, offset int, warnings *[]domain.Warning, timings *[]domain.StageTiming) (*domain.QueryResult, *domain.Explain, error) {
	kCand := limit + offset
	if kCand < p.minCandidates {
		kCand = p.minCandidates
	}

	var (
		lexRaw         map[string]float64
		semRaw         map[string]float64
		lexWarn        []driven.LexicalWarning
		lexErr, semErr error
		lexMillis, semMillis float64
		sawLex, sawSem bool
	)

	var wg sync.WaitGroup
	if q.UsingLexical != nil {
		sawLex = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			t0 := time.Now()
			mode := driven.ModeFTS5
			hits, w, err := p.lexical.Search(ctx, *q.UsingLexical, mode, pred, snapshot, kCand)
			lexWarn, lexErr = w, err
			if err == nil {
				lexRaw = make(map[string]float64, len(hits))
				for _, h := range hits {
					lexRaw[h.ChunkID] = h.Score
				}
			}
			lexMillis = msSince(t0)
		}()
	}
	if q.UsingSemantic != nil {
		if p.vector == nil {
			semErr = domain.NewError(domain.KindIO, "vector index unavailable")
		} else {
			sawSem = true
			wg.Add(1)
			go func() {
				defer wg.Done()
				t0 := time.Now()
				vec := p.embedder.Embed(*q.UsingSemantic)
				hits, err := p.vector.Search(ctx, vec, kCand, pred, snapshot)
				semErr = err
				if err == nil {
					semRaw = make(map[string]float64, len(hits))
					for _, h := range hits {
						semRaw[h.ChunkID] = h.Score
					}
				}
				semMillis = msSince(t0)
			}()
		}
	}
	wg.Wait()

	if sawLex {
		*timings = append(*timings, domain.StageTiming{Stage: "lexical", Millis: lexMillis})
	}
	if sawSem {
		*timings = append(*timings, domain.StageTiming{Stage: "semantic", Millis: semMillis})
	}

	mode := "hybrid"
	switch {
	case q.UsingSemantic != nil && q.UsingLexical == nil:
		mode = "semantic"
	case q.UsingLexical != nil && q.UsingSemantic == nil:
		mode = "lexical"
	}

	if lexErr != nil {
		*warnings = append(*warnings, domain.Warning{Code: "lexical_unavailable", Stage: "lexical", Message: lexErr.Error()})
		lexRaw = nil
	}
	if semErr != nil {
		*warnings = append(*warnings, domain.Warning{Code: "semantic_unavailable", Stage: "semantic", Message: semErr.Error()})
		semRaw = nil
	}
	for _, w := range lexWarn {
		*warnings = append(*warnings, domain.Warning{
			Code: w.Code, Message: w.Message, Stage: "lexical", Detail: w.Sanitized,
		})
	}

	normLex := normalize(lexRaw)
	normSem := normalize(semRaw)

	fused := make(map[string]float64)
	for id, v := range normLex {
		fused[id] += p.weights.Lexical * v
	}
	for id, v := range normSem {
		fused[id] += p.weights.Semantic * v
	}

	ids := make([]string, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}

	chunksByID, docsByID, err := p.store.GetChunksByIDs(ctx, ids, snapshot)
	if err != nil {
		return nil, nil, domain.Wrap(domain.KindIO, "hydrate candidates", err)
	}

	results := make([]domain.ScoredChunk, 0, len(ids))
	for _, id := range ids {
		chunk, ok := chunksByID[id]
		if !ok {
			continue
		}
		doc := docsByID[chunk.DocID]
		sc := domain.ScoredChunk{
			Doc: doc, Chunk: chunk, Score: fused[id],
			NormLexical: normLex[id], NormSemantic: normSem[id],
		}
		if v, ok := lexRaw[id]; ok {
			sc.LexicalScore = v
		}
		if v, ok := semRaw[id]; ok {
			sc.SemanticScore = v
		}
		results = append(results, sc)
	}

	if q.Table == domain.TableDoc {
		results = collapseToDocMax(results)
	}

	orderUserField, orderDesc, hasUserField := userOrderField(q)
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if hasUserField {
			av, numeric := fieldValue(a, orderUserField)
			bv, _ := fieldValue(b, orderUserField)
			if numeric {
				if af, bf := parseFloat(av), parseFloat(bv); af != bf {
					if orderDesc {
						return af > bf
					}
					return af < bf
				}
			} else if av != bv {
				if orderDesc {
					return av > bv
				}
				return av < bv
			}
		} else if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Doc.Path != b.Doc.Path {
			return a.Doc.Path < b.Doc.Path
		}
		if q.Table == domain.TableChunk {
			if a.Chunk.Offset != b.Chunk.Offset {
				return a.Chunk.Offset < b.Chunk.Offset
			}
			return a.Chunk.ID < b.Chunk.ID
		}
		return a.Doc.ID < b.Doc.ID
	})

	results = paginate(results, offset, limit)

	explain := &domain.Explain{
		Mode: mode, LexicalWeight: p.weights.Lexical, SemanticWeight: p.weights.Semantic,
		LexicalCandCount: len(lexRaw), SemanticCandCount: len(semRaw),
	}
	for _, w := range lexWarn {
		if w.Sanitized != "" {
			explain.Sanitized = &domain.SanitizedQuery{Original: w.Original, Sanitized: w.Sanitized}
		}
	}

	return &domain.QueryResult{Table: q.Table, Results: results}, explain, nil
}

func collapseToDocMax(in []domain.ScoredChunk) []domain.ScoredChunk {
	best := make(map[string]domain.ScoredChunk, len(in))
	for _, sc := range in {
		cur, ok := best[sc.Doc.ID]
		if !ok || sc.Score > cur.Score {
			best[sc.Doc.ID] = sc
		}
	}
	out := make([]domain.ScoredChunk, 0, len(best))
	for _, sc := range best {
		out = append(out, sc)
	}
	return out
}

func paginate(in []domain.ScoredChunk, offset, limit int) []domain.ScoredChunk {
	if offset >= len(in) {
		return []domain.ScoredChunk{}
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}

func userOrderField(q *rql.Query) (field rql.FieldRef, desc bool, ok bool) {
	if q.OrderBy == nil || q.OrderBy.Target != rql.OrderField {
		return rql.FieldRef{}, false, false
	}
	return q.OrderBy.Field, q.OrderBy.Dir == rql.Desc, true
}

// fieldValue extracts a comparable string/numeric representation of a
// field for ORDER BY on an already-hydrated scored result.
func fieldValue(sc domain.ScoredChunk, f rql.FieldRef) (value string, numeric bool) {
	if key, ok := f.MetaKey(); ok {
		if v, ok := sc.Doc.Meta[key]; ok {
			return fmt.Sprint(v), false
		}
		return "", false
	}
	switch f.Name {
	case "path":
		return sc.Doc.Path, false
	case "mtime":
		return sc.Doc.MTime, false
	case "tag":
		return sc.Doc.Tag, false
	case "source":
		return sc.Doc.Source, false
	case "hash":
		return sc.Doc.Hash, false
	case "id":
		if f.Table == domain.TableChunk {
			return sc.Chunk.ID, false
		}
		return sc.Doc.ID, false
	case "offset":
		return strconv.Itoa(sc.Chunk.Offset), true
	case "tokens":
		return strconv.Itoa(sc.Chunk.Tokens), true
	case "doc_id":
		return sc.Chunk.DocID, false
	default:
		return "", false
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// convertFields translates a parsed SELECT list into domain's
// import-free projection representation, so internal/response can shape
// results without this package's callers needing the rql package.
func convertFields(items []rql.SelectItem) []domain.ProjectionItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]domain.ProjectionItem, len(items))
	for i, it := range items {
		switch it.Kind {
		case rql.SelectAll:
			out[i] = domain.ProjectionItem{Kind: domain.ProjectAll}
		case rql.SelectScore:
			out[i] = domain.ProjectionItem{Kind: domain.ProjectScore}
		default:
			out[i] = domain.ProjectionItem{
				Kind:  domain.ProjectField,
				Field: domain.ProjectionField{Table: it.Field.Table, Name: it.Field.Name},
			}
		}
	}
	return out
}
