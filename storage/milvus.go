package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"videoChat/config"
	"videoChat/core"
)

// ---------------- Milvus implementation ----------------

type MilvusVectorStore struct {
	mc   client.Client
	coll string
	dim  int
}

func NewMilvusVectorStore(ctx context.Context, cfg *config.Config) (*MilvusVectorStore, error) {
	mc, err := client.NewClient(ctx, client.Config{
		Address:  cfg.MilvusAddr,
		Username: cfg.MilvusUsername,
		Password: cfg.MilvusPassword,
		APIKey:   cfg.MilvusAPIKey, // Zilliz Cloud
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusVectorStore{mc: mc, coll: cfg.MilvusCollection, dim: cfg.EmbeddingDim}
	if err := s.ensureSchemaAndIndex(ctx); err != nil {
		mc.Close()
		return nil, err
	}
	return s, nil
}

func (s *MilvusVectorStore) Backend() string { return "milvus" }

func (s *MilvusVectorStore) Close() error { return s.mc.Close() }

func (s *MilvusVectorStore) ensureSchemaAndIndex(ctx context.Context) error {
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return fmt.Errorf("has collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema().WithName(s.coll).WithDescription("video context chunks")
		schema.WithField(entity.NewField().WithName("chunk_id").WithIsPrimaryKey(true).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("context_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusVectorStore) Upsert(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]string, 0, len(chunks))
	contextIDs := make([]string, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Vector) != s.dim {
			return fmt.Errorf("chunk %s: vector has %d dims, collection expects %d", c.ID, len(c.Vector), s.dim)
		}
		ids = append(ids, c.ID)
		contextIDs = append(contextIDs, c.ContextID)
		texts = append(texts, c.Text)
		vectors = append(vectors, c.Vector)
	}

	_, err := s.mc.Upsert(ctx, s.coll, "",
		entity.NewColumnVarChar("chunk_id", ids),
		entity.NewColumnVarChar("context_id", contextIDs),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus upsert: %w", err)
	}
	return nil
}

func prefixExpr(prefix string) string {
	// like only treats % as a wildcard; escape it in the literal part.
	p := strings.ReplaceAll(prefix, "%", `\%`)
	return "chunk_id like " + quote(p+"%")
}

func (s *MilvusVectorStore) queryIDs(ctx context.Context, expr string) ([]string, error) {
	rs, err := s.mc.Query(ctx, s.coll, nil, expr, []string{"chunk_id"},
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("milvus query: %w", err)
	}
	col, ok := rs.GetColumn("chunk_id").(*entity.ColumnVarChar)
	if !ok {
		return nil, nil
	}
	return col.Data(), nil
}

func (s *MilvusVectorStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	expr := prefixExpr(prefix)
	ids, err := s.queryIDs(ctx, expr)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.mc.Delete(ctx, s.coll, "", expr); err != nil {
		return 0, fmt.Errorf("milvus delete: %w", err)
	}
	return len(ids), nil
}

func (s *MilvusVectorStore) Exists(ctx context.Context, prefix string) (bool, error) {
	ids, err := s.queryIDs(ctx, prefixExpr(prefix))
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (s *MilvusVectorStore) Search(ctx context.Context, contextID string, vector []float32, topK int) ([]core.Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := "context_id == " + quote(contextID)
	res, err := s.mc.Search(ctx, s.coll, []string{}, filter, []string{"chunk_id", "context_id", "text"},
		[]entity.Vector{entity.FloatVector(vector)}, "vector", entity.COSINE, topK, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var hits []core.Hit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			hit := core.Hit{Score: float64(r.Scores[i])}
			hit.ID = varCharAt(cols["chunk_id"], i)
			hit.ContextID = varCharAt(cols["context_id"], i)
			hit.Text = varCharAt(cols["text"], i)
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func (s *MilvusVectorStore) List(ctx context.Context, contextID string, limit int) ([]core.Hit, error) {
	rs, err := s.mc.Query(ctx, s.coll, nil, "context_id == "+quote(contextID), []string{"chunk_id", "text"},
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("milvus query: %w", err)
	}
	idCol := rs.GetColumn("chunk_id")
	textCol := rs.GetColumn("text")
	if idCol == nil {
		return nil, nil
	}
	hits := make([]core.Hit, 0, idCol.Len())
	for i := 0; i < idCol.Len(); i++ {
		hits = append(hits, core.Hit{ID: varCharAt(idCol, i), ContextID: contextID, Text: varCharAt(textCol, i)})
	}
	sortHitsByID(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func varCharAt(c entity.Column, i int) string {
	vc, ok := c.(*entity.ColumnVarChar)
	if !ok {
		return ""
	}
	data := vc.Data()
	if i < len(data) {
		return data[i]
	}
	return ""
}
