// Package qdrant provides a profile store backed by a remote Qdrant
// instance over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/efebarandurmaz/kindred/internal/profile"
	"github.com/efebarandurmaz/kindred/internal/store"
)

// QdrantStore implements store.Store against a Qdrant collection.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dim         int
}

// New connects to Qdrant and ensures the collection exists with cosine
// distance and the given vector size.
func New(ctx context.Context, host string, port int, collection string, dim int) (*QdrantStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	s := &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dim:         dim,
	}
	if err := s.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	resp, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant list collections: %w", err)
	}
	for _, c := range resp.Collections {
		if c.Name == s.collection {
			return nil
		}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %q: %w", s.collection, err)
	}
	return nil
}

func (s *QdrantStore) Insert(ctx context.Context, rec store.Record) error {
	if len(rec.Vector) != s.dim {
		return store.ErrDimensionMismatch
	}
	// Upsert would silently overwrite, so duplicate ids are checked first.
	if _, err := s.Get(ctx, rec.Profile.ID); err == nil {
		return store.ErrDuplicateID
	} else if err != store.ErrNotFound {
		return err
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points: []*pb.PointStruct{{
			Id:      pointID(rec.Profile.ID),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}}},
			Payload: toPayload(rec.Profile),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (s *QdrantStore) Get(ctx context.Context, id string) (profile.Profile, error) {
	resp, err := s.points.Get(ctx, &pb.GetPoints{
		CollectionName: s.collection,
		Ids:            []*pb.PointId{pointID(id)},
		WithPayload:    withPayload(),
	})
	if err != nil {
		return profile.Profile{}, fmt.Errorf("qdrant get: %w", err)
	}
	if len(resp.Result) == 0 {
		return profile.Profile{}, store.ErrNotFound
	}
	return fromPayload(id, resp.Result[0].Payload), nil
}

func (s *QdrantStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID(id)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

func (s *QdrantStore) List(ctx context.Context, limit int) ([]profile.Profile, error) {
	lim := uint32(limit)
	resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: s.collection,
		Limit:          &lim,
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll: %w", err)
	}
	out := make([]profile.Profile, 0, len(resp.Result))
	for _, pt := range resp.Result {
		out = append(out, fromPayload(pt.Id.GetUuid(), pt.Payload))
	}
	return out, nil
}

func (s *QdrantStore) Query(ctx context.Context, vector []float32, k int) ([]store.Hit, error) {
	if len(vector) != s.dim {
		return nil, store.ErrDimensionMismatch
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(k),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	hits := make([]store.Hit, len(resp.Result))
	for i, pt := range resp.Result {
		// Qdrant reports cosine *similarity* as the score.
		hits[i] = store.Hit{ID: pt.Id.GetUuid(), Distance: 1 - pt.Score}
	}
	return hits, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.Result.Count), nil
}

func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
}

func withPayload() *pb.WithPayloadSelector {
	return &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
}

func toPayload(p profile.Profile) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"name":        {Kind: &pb.Value_StringValue{StringValue: p.Name}},
		"description": {Kind: &pb.Value_StringValue{StringValue: p.Description}},
		"created_at":  {Kind: &pb.Value_StringValue{StringValue: p.CreatedAt.Format(time.RFC3339Nano)}},
	}
	if p.Age != 0 {
		payload["age"] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.Age)}}
	}
	if p.Location != "" {
		payload["location"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: p.Location}}
	}
	return payload
}

func fromPayload(id string, payload map[string]*pb.Value) profile.Profile {
	p := profile.Profile{
		ID:          id,
		Name:        payload["name"].GetStringValue(),
		Description: payload["description"].GetStringValue(),
		Age:         int(payload["age"].GetIntegerValue()),
		Location:    payload["location"].GetStringValue(),
	}
	if ts := payload["created_at"].GetStringValue(); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			p.CreatedAt = t
		}
	}
	return p
}

var _ store.Store = (*QdrantStore)(nil)
