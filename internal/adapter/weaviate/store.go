// Package weaviate implements the vector store client against a Weaviate
// instance. Chunk ids are UUIDs, so they are used directly as object ids;
// writing an existing id overwrites the whole object, which is what makes
// re-ingestion idempotent.
package weaviate

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"docbrain/internal/vector"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	return s.client.Schema().ClassExistenceChecker().WithClassName(name).Do(ctx)
}

func (s *Store) CreateCollection(ctx context.Context, name string) error {
	class := &models.Class{
		Class:       name,
		Description: "A text window of an ingested document",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			{Name: "text", DataType: []string{"text"}},
			{Name: "sourceUrl", DataType: []string{"string"}}, // exact match for delete-by-source
			{Name: "startPos", DataType: []string{"int"}},
			{Name: "endPos", DataType: []string{"int"}},
			{Name: "chunkId", DataType: []string{"string"}},
			{Name: "sequenceIndex", DataType: []string{"int"}},
		},
	}
	return s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

// SampleDimension reads one stored vector and reports its length, 0 when
// the collection is empty. Weaviate classes do not declare dimensionality,
// so this is how an existing collection is verified against configuration.
func (s *Store) SampleDimension(ctx context.Context, name string) (int, error) {
	res, err := s.client.GraphQL().Get().
		WithClassName(name).
		WithLimit(1).
		WithFields(graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "vector"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	for _, obj := range classObjects(res, name) {
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if vec, ok := additional["vector"].([]interface{}); ok {
				return len(vec), nil
			}
		}
	}
	return 0, nil
}

func (s *Store) UpsertBatch(ctx context.Context, name string, records []vector.Record) ([]string, error) {
	objects := make([]*models.Object, len(records))
	for i, r := range records {
		objects[i] = &models.Object{
			Class: name,
			ID:    strfmt.UUID(r.ChunkID),
			Properties: map[string]interface{}{
				"text":          r.Text,
				"sourceUrl":     r.SourceURL,
				"startPos":      r.StartPos,
				"endPos":        r.EndPos,
				"chunkId":       r.ChunkID,
				"sequenceIndex": r.SequenceIndex,
			},
			Vector: models.C11yVector(r.Vector),
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return nil, err
	}

	var failed []string
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			failed = append(failed, string(item.ID))
		}
	}
	return failed, nil
}

func (s *Store) DeleteBySource(ctx context.Context, name, sourceURL string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(name).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"sourceUrl"}).
			WithOperator(filters.Equal).
			WithValueString(sourceURL)).
		Do(ctx)
	return err
}

func (s *Store) Query(ctx context.Context, name string, vec []float32, limit int, filter map[string]interface{}) ([]vector.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "sourceUrl"},
		{Name: "startPos"},
		{Name: "endPos"},
		{Name: "chunkId"},
		{Name: "sequenceIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(name).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...)
	if where := buildWhere(filter); where != nil {
		query = query.WithWhere(where)
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var hits []vector.Hit
	for _, props := range classObjects(res, name) {
		hit := vector.Hit{}
		if v, ok := props["text"].(string); ok {
			hit.Text = v
		}
		if v, ok := props["sourceUrl"].(string); ok {
			hit.SourceURL = v
		}
		if v, ok := props["chunkId"].(string); ok {
			hit.ChunkID = v
		}
		if v, ok := props["startPos"].(float64); ok {
			hit.StartPos = int(v)
		}
		if v, ok := props["endPos"].(float64); ok {
			hit.EndPos = int(v)
		}
		if v, ok := props["sequenceIndex"].(float64); ok {
			hit.SequenceIndex = int(v)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if score, ok := additional["certainty"].(float64); ok {
				hit.Score = float32(score)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// buildWhere turns a payload filter into an equality where clause. Keys are
// sorted so the generated GraphQL is stable across calls.
func buildWhere(filter map[string]interface{}) *filters.WhereBuilder {
	if len(filter) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	operands := make([]*filters.WhereBuilder, 0, len(keys))
	for _, k := range keys {
		cond := filters.Where().WithPath([]string{k}).WithOperator(filters.Equal)
		switch v := filter[k].(type) {
		case string:
			cond = cond.WithValueString(v)
		case int:
			cond = cond.WithValueInt(int64(v))
		case int64:
			cond = cond.WithValueInt(v)
		case bool:
			cond = cond.WithValueBoolean(v)
		default:
			cond = cond.WithValueString(fmt.Sprintf("%v", v))
		}
		operands = append(operands, cond)
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

func (s *Store) Count(ctx context.Context, name string) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(name).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := data[name].([]interface{}); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := row["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

func classObjects(res *models.GraphQLResponse, name string) []map[string]interface{} {
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := data[name].([]interface{})
	if !ok {
		return nil
	}
	objects := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if props, ok := item.(map[string]interface{}); ok {
			objects = append(objects, props)
		}
	}
	return objects
}
