// Package neo4j implements rich.Store on Neo4j. Each record is a node
// labelled Record, merged on its (entity_type, entity_id) composite key.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/vecsync/internal/rich"
)

// Store implements rich.Store using Neo4j.
type Store struct {
	driver neo4j.DriverWithContext
}

// New creates a Neo4j-backed rich store and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Store{driver: driver}, nil
}

func (s *Store) Upsert(ctx context.Context, rec rich.Record) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx,
			"MERGE (r:Record {entity_type: $type, entity_id: $id}) "+
				"ON CREATE SET r.created_at = $now "+
				"SET r.content = $content, r.analysis = $analysis, r.metadata = $metadata, r.updated_at = $now",
			map[string]any{
				"type":     rec.EntityType,
				"id":       rec.EntityID,
				"content":  rec.Content,
				"analysis": rec.Analysis,
				"metadata": string(metadata),
				"now":      now,
			})
	})
	if err != nil {
		return fmt.Errorf("upsert record %s/%s: %w", rec.EntityType, rec.EntityID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, entityType, entityID string) (*rich.Record, error) {
	records, err := s.GetMany(ctx, []rich.Key{{EntityType: entityType, EntityID: entityID}})
	if err != nil {
		return nil, err
	}
	if rec, ok := records[rich.Key{EntityType: entityType, EntityID: entityID}]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (s *Store) GetMany(ctx context.Context, keys []rich.Key) (map[rich.Key]rich.Record, error) {
	if len(keys) == 0 {
		return map[rich.Key]rich.Record{}, nil
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	// Keys are grouped per type so each lookup is one indexed IN query.
	byType := make(map[string][]string)
	for _, key := range keys {
		byType[key.EntityType] = append(byType[key.EntityType], key.EntityID)
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		out := make(map[rich.Key]rich.Record, len(keys))
		for entityType, ids := range byType {
			records, err := tx.Run(ctx,
				"MATCH (r:Record {entity_type: $type}) WHERE r.entity_id IN $ids "+
					"RETURN r.entity_id, r.content, r.analysis, r.metadata, r.created_at, r.updated_at",
				map[string]any{"type": entityType, "ids": ids})
			if err != nil {
				return nil, err
			}
			for records.Next(ctx) {
				rec := recordFromRow(entityType, records.Record())
				out[rich.Key{EntityType: entityType, EntityID: rec.EntityID}] = rec
			}
			if err := records.Err(); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get records: %w", err)
	}
	return result.(map[rich.Key]rich.Record), nil
}

func (s *Store) Delete(ctx context.Context, entityType, entityID string) (bool, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (r:Record {entity_type: $type, entity_id: $id}) DETACH DELETE r RETURN count(r)",
			map[string]any{"type": entityType, "id": entityID})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return rec.Values[0].(int64) > 0, nil
	})
	if err != nil {
		return false, fmt.Errorf("delete record %s/%s: %w", entityType, entityID, err)
	}
	return result.(bool), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (r:Record) RETURN count(r)", nil)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return int(rec.Values[0].(int64)), nil
	})
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return result.(int), nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, "MATCH (r:Record) DETACH DELETE r", nil)
	})
	if err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

// Ping verifies connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func recordFromRow(entityType string, row *neo4j.Record) rich.Record {
	rec := rich.Record{EntityType: entityType}
	if v, ok := row.Values[0].(string); ok {
		rec.EntityID = v
	}
	if v, ok := row.Values[1].(string); ok {
		rec.Content = v
	}
	if v, ok := row.Values[2].(string); ok {
		rec.Analysis = v
	}
	if v, ok := row.Values[3].(string); ok && v != "" {
		_ = json.Unmarshal([]byte(v), &rec.Metadata)
	}
	if v, ok := row.Values[4].(string); ok {
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, ok := row.Values[5].(string); ok {
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return rec
}

var _ rich.Store = (*Store)(nil)
