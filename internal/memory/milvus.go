package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// Common errors for vector store operations
var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrEmptyEntries     = errors.New("no entries provided for insertion")
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrInsertFailed     = errors.New("failed to insert entries")
	ErrSearchFailed     = errors.New("failed to search vectors")
)

// Entry is one stored brief summary with its provenance.
type Entry struct {
	BriefID     string
	Topic       string
	Text        string
	GeneratedAt time.Time
	Score       float32
}

// VectorStore persists embedded brief summaries and retrieves the most
// similar ones for a query vector.
type VectorStore interface {
	Insert(ctx context.Context, entry Entry, vector []float32) error
	Search(ctx context.Context, vector []float32, topK int, topic string) ([]Entry, error)
	Close() error
}

// MilvusConfig holds connection and collection settings.
type MilvusConfig struct {
	Address        string
	CollectionName string
	Dimension      int

	// HNSW index parameters.
	M              int
	EfConstruction int
}

// DefaultMilvusConfig returns settings for a local Milvus with
// text-embedding-3-large vectors.
func DefaultMilvusConfig() MilvusConfig {
	return MilvusConfig{
		Address:        "localhost:19530",
		CollectionName: "loom_briefs",
		Dimension:      3072,
		M:              16,
		EfConstruction: 256,
	}
}

// MilvusStore implements VectorStore against a Milvus collection.
type MilvusStore struct {
	client client.Client
	config MilvusConfig
}

// NewMilvusStore connects to Milvus and ensures the collection exists
// with the brief-summary schema.
func NewMilvusStore(ctx context.Context, config MilvusConfig) (*MilvusStore, error) {
	if config.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &MilvusStore{client: c, config: config}
	if err := store.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return store, nil
}

func (m *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.config.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.config.CollectionName,
		AutoID:         true,
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     true,
			},
			{
				Name:     "brief_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "topic",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.config.Dimension),
				},
			},
			{
				Name:     "generated_at",
				DataType: entity.FieldTypeInt64, // Unix timestamp
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, m.config.M, m.config.EfConstruction)
	if err != nil {
		return fmt.Errorf("failed to create index config: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.config.CollectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := m.client.LoadCollection(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// Insert stores one brief summary with its vector.
func (m *MilvusStore) Insert(ctx context.Context, e Entry, vector []float32) error {
	if e.Text == "" {
		return ErrEmptyEntries
	}
	if len(vector) != m.config.Dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(vector))
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("brief_id", []string{e.BriefID}),
		entity.NewColumnVarChar("topic", []string{e.Topic}),
		entity.NewColumnVarChar("text", []string{e.Text}),
		entity.NewColumnFloatVector("embedding", m.config.Dimension, [][]float32{vector}),
		entity.NewColumnInt64("generated_at", []int64{e.GeneratedAt.Unix()}),
	}

	if _, err := m.client.Insert(ctx, m.config.CollectionName, "", columns...); err != nil {
		return fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}
	if err := m.client.Flush(ctx, m.config.CollectionName, false); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}
	return nil
}

// Search returns the topK most similar entries, optionally restricted to
// one topic.
func (m *MilvusStore) Search(ctx context.Context, vector []float32, topK int, topic string) ([]Entry, error) {
	if len(vector) != m.config.Dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, m.config.Dimension, len(vector))
	}

	expr := ""
	if topic != "" {
		expr = fmt.Sprintf(`topic == "%s"`, topic)
	}

	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	vectors := []entity.Vector{entity.FloatVector(vector)}
	outputFields := []string{"brief_id", "topic", "text", "generated_at"}

	results, err := m.client.Search(
		ctx,
		m.config.CollectionName,
		nil,
		expr,
		outputFields,
		vectors,
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	if len(results) == 0 {
		return []Entry{}, nil
	}

	entries := make([]Entry, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		e := Entry{Score: results[0].Scores[i]}
		for _, field := range results[0].Fields {
			switch field.Name() {
			case "brief_id":
				e.BriefID = field.(*entity.ColumnVarChar).Data()[i]
			case "topic":
				e.Topic = field.(*entity.ColumnVarChar).Data()[i]
			case "text":
				e.Text = field.(*entity.ColumnVarChar).Data()[i]
			case "generated_at":
				e.GeneratedAt = time.Unix(field.(*entity.ColumnInt64).Data()[i], 0)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close releases the Milvus connection.
func (m *MilvusStore) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}
