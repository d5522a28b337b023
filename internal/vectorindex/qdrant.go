// Package vectorindex maintains a qdrant index of combined item
// embeddings, one collection per item variant. The index is
// write-through: the engine upserts after every committed embedding
// write and deletes on cleanup, keeping an ANN-searchable copy of the
// store's canonical vectors.
package vectorindex

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/refound/refound/internal/item"
)

// Config holds connection settings for a Qdrant instance.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient dials the Qdrant gRPC endpoint and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

func collectionFor(typ item.Type) string {
	return string(typ) + "_items"
}

// EnsureCollections creates the per-variant collections if they do not
// already exist.
func (c *Client) EnsureCollections(ctx context.Context, dimension uint64) error {
	for _, typ := range []item.Type{item.TypeLost, item.TypeFound} {
		name := collectionFor(typ)
		_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
		if err == nil {
			continue
		}
		_, err = c.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: name,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     dimension,
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}
	return nil
}

// UpsertItem inserts or updates an item's combined embedding in its
// variant collection.
func (c *Client) UpsertItem(ctx context.Context, typ item.Type, id int64, vector []float32, payload map[string]string) error {
	payloadMap := make(map[string]*pb.Value)
	for k, v := range payload {
		payloadMap[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collectionFor(typ),
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: payloadMap,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert %s/%d: %w", typ, id, err)
	}
	return nil
}

// DeleteItem removes an item's point from its variant collection.
func (c *Client) DeleteItem(ctx context.Context, typ item.Type, id int64) error {
	_, err := c.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collectionFor(typ),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete %s/%d: %w", typ, id, err)
	}
	return nil
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
