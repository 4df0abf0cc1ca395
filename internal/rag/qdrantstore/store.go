// Package qdrantstore implements rag.VectorIndex on a Qdrant server over gRPC.
package qdrantstore

import (
	"context"
	"fmt"

	"github.com/prcontext/internal/rag"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
)

// Config holds the Qdrant connection settings
type Config struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	APIKey string `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

// Store is a rag.VectorIndex backed by Qdrant
type Store struct {
	client *qdrant.Client
}

var _ rag.VectorIndex = (*Store)(nil)

// New connects to Qdrant. The client is safe for concurrent use and should be
// shared process-wide.
func New(cfg Config) (*Store, error) {
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	log.Debug().Str("host", cfg.Host).Int("port", cfg.Port).Msg("Connected to qdrant")
	return &Store{client: client}, nil
}

// Close releases the gRPC connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) CollectionExists(ctx context.Context, collection string) (bool, error) {
	return s.client.CollectionExists(ctx, collection)
}

func (s *Store) CreateCollection(ctx context.Context, collection string, dim int, distance rag.Distance) error {
	if distance != rag.DistanceCosine {
		return fmt.Errorf("unsupported distance %q", distance)
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (s *Store) CreatePayloadIndex(ctx context.Context, collection, field string, typ rag.PayloadType) error {
	fieldType := qdrant.FieldType_FieldTypeKeyword
	if typ == rag.PayloadInteger {
		fieldType = qdrant.FieldType_FieldTypeInteger
	}
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      field,
		FieldType:      fieldType.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	return err
}

func (s *Store) Upsert(ctx context.Context, collection string, points []rag.Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("point %s payload: %w", p.ID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	return err
}

func (s *Store) Delete(ctx context.Context, collection string, filter rag.Filter) error {
	f, err := toFilter(filter)
	if err != nil {
		return err
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(f),
	})
	return err
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, filter rag.Filter, limit int) ([]rag.ScoredPoint, error) {
	f, err := toFilter(filter)
	if err != nil {
		return nil, err
	}
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         f,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	out := make([]rag.ScoredPoint, 0, len(hits))
	for _, h := range hits {
		out = append(out, rag.ScoredPoint{
			ID:      h.GetId().GetUuid(),
			Score:   h.GetScore(),
			Payload: fromPayload(h.GetPayload()),
		})
	}
	return out, nil
}

func toFilter(f rag.Filter) (*qdrant.Filter, error) {
	must, err := toConditions(f.Must)
	if err != nil {
		return nil, err
	}
	mustNot, err := toConditions(f.MustNot)
	if err != nil {
		return nil, err
	}
	return &qdrant.Filter{Must: must, MustNot: mustNot}, nil
}

func toConditions(conds []rag.Condition) ([]*qdrant.Condition, error) {
	out := make([]*qdrant.Condition, 0, len(conds))
	for _, c := range conds {
		switch v := c.Value.(type) {
		case string:
			out = append(out, qdrant.NewMatch(c.Key, v))
		case int64:
			out = append(out, qdrant.NewMatchInt(c.Key, v))
		case int:
			out = append(out, qdrant.NewMatchInt(c.Key, int64(v)))
		case bool:
			out = append(out, qdrant.NewMatchBool(c.Key, v))
		default:
			return nil, fmt.Errorf("unsupported filter value %T for %s", c.Value, c.Key)
		}
	}
	return out, nil
}

func fromPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = kind.BoolValue
		}
	}
	return out
}
