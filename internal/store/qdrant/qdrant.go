// Package qdrant implements store.Store against a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/efebarandurmaz/vecsync/internal/store"
)

// Payload keys reserved for record fields. Entity metadata is stored
// alongside them, so metadata field names must not collide with these.
const (
	payloadEntityType = "entity_type"
	payloadEntityID   = "entity_id"
	payloadContent    = "content"
	payloadCreatedAt  = "created_at"
)

// Store implements store.Store using Qdrant.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New connects to Qdrant and ensures the collection exists with the given
// vector dimension and cosine distance.
func New(ctx context.Context, host string, port int, collection string, dimension int) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	s := &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}
	if err := s.ensureCollection(ctx, dimension); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: s.collection,
	})
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return nil
}

func (s *Store) StoreVector(ctx context.Context, entityType, entityID, content string, vector []float32, metadata map[string]string) (string, error) {
	vectorID := store.NewVectorID()
	payload := map[string]*pb.Value{
		payloadEntityType: stringValue(entityType),
		payloadEntityID:   stringValue(entityID),
		payloadContent:    stringValue(content),
		payloadCreatedAt:  stringValue(time.Now().UTC().Format(time.RFC3339Nano)),
	}
	for k, v := range metadata {
		payload[k] = stringValue(v)
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: vectorID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
			Payload: payload,
		}},
	})
	if err != nil {
		return "", &store.WriteError{Backend: s.Type(), Op: "upsert", Err: err}
	}
	return vectorID, nil
}

func (s *Store) BatchStore(ctx context.Context, records []store.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	points := make([]*pb.PointStruct, len(records))
	ids := make([]string, len(records))
	for i, rec := range records {
		id := store.NewVectorID()
		ids[i] = id
		payload := map[string]*pb.Value{
			payloadEntityType: stringValue(rec.EntityType),
			payloadEntityID:   stringValue(rec.EntityID),
			payloadContent:    stringValue(rec.Content),
			payloadCreatedAt:  stringValue(now),
		}
		for k, v := range rec.Metadata {
			payload[k] = stringValue(v)
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Embedding}}},
			Payload: payload,
		}
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return nil, &store.WriteError{Backend: s.Type(), Op: "batch upsert", Err: err}
	}
	return ids, nil
}

func (s *Store) GetVector(ctx context.Context, vectorID string) (*store.Record, error) {
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collection,
		Ids:            []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: vectorID}}},
		WithPayload:    withPayload(),
		WithVectors:    withVectors(),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant get: %w", err)
	}
	if len(resp.GetResult()) == 0 {
		return nil, nil
	}
	rec := recordFromPoint(resp.GetResult()[0].GetId(), resp.GetResult()[0].GetPayload(), resp.GetResult()[0].GetVectors())
	return &rec, nil
}

func (s *Store) GetVectorByEntity(ctx context.Context, entityType, entityID string) (*store.Record, error) {
	limit := uint32(16)
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collection,
		Filter:         entityFilter(entityType, entityID),
		Limit:          &limit,
		WithPayload:    withPayload(),
		WithVectors:    withVectors(),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll: %w", err)
	}
	points := resp.GetResult()
	if len(points) == 0 {
		return nil, nil
	}

	// More than one point can exist in the window between writing a new
	// record and deleting the old one; the newest is the current record.
	best := points[0]
	for _, p := range points[1:] {
		if payloadString(p.GetPayload(), payloadCreatedAt) > payloadString(best.GetPayload(), payloadCreatedAt) {
			best = p
		}
	}
	rec := recordFromPoint(best.GetId(), best.GetPayload(), best.GetVectors())
	return &rec, nil
}

func (s *Store) RemoveVector(ctx context.Context, entityType, entityID string) (bool, error) {
	count, err := s.countFilter(ctx, entityFilter(entityType, entityID))
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: entityFilter(entityType, entityID)},
		},
	})
	if err != nil {
		return false, fmt.Errorf("qdrant delete: %w", err)
	}
	return true, nil
}

func (s *Store) RemoveVectorByID(ctx context.Context, vectorID string) (bool, error) {
	existing, err := s.GetVector(ctx, vectorID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: vectorID}}}},
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("qdrant delete by id: %w", err)
	}
	return true, nil
}

func (s *Store) Search(ctx context.Context, query store.SearchQuery) ([]store.SearchHit, error) {
	if query.Limit <= 0 {
		return nil, fmt.Errorf("search limit must be positive, got %d", query.Limit)
	}
	var filter *pb.Filter
	if query.EntityType != "" {
		filter = typeFilter(query.EntityType)
	}
	threshold := query.Threshold

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         query.Vector,
		Limit:          uint64(query.Limit),
		Filter:         filter,
		ScoreThreshold: &threshold,
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	hits := make([]store.SearchHit, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		payload := pt.GetPayload()
		hits[i] = store.SearchHit{
			VectorID:   pt.GetId().GetUuid(),
			EntityType: payloadString(payload, payloadEntityType),
			EntityID:   payloadString(payload, payloadEntityID),
			Content:    payloadString(payload, payloadContent),
			Score:      pt.GetScore(),
			Metadata:   metadataFromPayload(payload),
		}
	}
	return hits, nil
}

func (s *Store) CountByEntityType(ctx context.Context, entityType string) (int, error) {
	return s.countFilter(ctx, typeFilter(entityType))
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.countFilter(ctx, nil)
}

func (s *Store) ClearByEntityType(ctx context.Context, entityType string) (int, error) {
	count, err := s.countFilter(ctx, typeFilter(entityType))
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: typeFilter(entityType)},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant clear by type: %w", err)
	}
	return count, nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: &pb.Filter{}},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant clear all: %w", err)
	}
	return nil
}

func (s *Store) Type() string { return "qdrant" }

func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) countFilter(ctx context.Context, filter *pb.Filter) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func withVectors() *pb.WithVectorsSelector {
	return &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func typeFilter(entityType string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{keywordCondition(payloadEntityType, entityType)}}
}

func entityFilter(entityType, entityID string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{
		keywordCondition(payloadEntityType, entityType),
		keywordCondition(payloadEntityID, entityID),
	}}
}

func payloadString(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func metadataFromPayload(payload map[string]*pb.Value) map[string]string {
	meta := make(map[string]string)
	for k, v := range payload {
		switch k {
		case payloadEntityType, payloadEntityID, payloadContent, payloadCreatedAt:
		default:
			meta[k] = v.GetStringValue()
		}
	}
	return meta
}

func recordFromPoint(id *pb.PointId, payload map[string]*pb.Value, vectors *pb.VectorsOutput) store.Record {
	createdAt, _ := time.Parse(time.RFC3339Nano, payloadString(payload, payloadCreatedAt))
	return store.Record{
		VectorID:   id.GetUuid(),
		EntityType: payloadString(payload, payloadEntityType),
		EntityID:   payloadString(payload, payloadEntityID),
		Content:    payloadString(payload, payloadContent),
		Embedding:  vectors.GetVector().GetData(),
		Metadata:   metadataFromPayload(payload),
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

var _ store.Store = (*Store)(nil)
