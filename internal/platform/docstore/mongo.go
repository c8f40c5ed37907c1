package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo maps each collection onto a MongoDB collection. The document id is
// stored as _id and surfaced again as "id" on read.
type Mongo struct {
	db *mongo.Database
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

func (g *Mongo) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	filter, err := mongoFilter(filters)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "_createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := g.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	docs := []Document{}
	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		docs = append(docs, fromBSONDocument(m))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

// mongoFilter translates filters into a query document. "id" is mapped onto
// the primary key.
func mongoFilter(filters []Filter) (bson.D, error) {
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	out := bson.D{}
	for _, f := range filters {
		field := f.Field
		if field == "id" {
			field = "_id"
		}
		value := normalize(f.Value)
		switch f.Op {
		case OpEqual:
			out = append(out, bson.E{Key: field, Value: value})
		case OpNotEqual:
			out = append(out, bson.E{Key: field, Value: bson.M{"$ne": value}})
		case OpIn:
			out = append(out, bson.E{Key: field, Value: bson.M{"$in": value}})
		}
	}
	return out, nil
}

func (g *Mongo) Create(ctx context.Context, collection string, doc Document) (string, error) {
	if err := ValidateCollection(collection); err != nil {
		return "", err
	}
	stored := bson.M{}
	for k, v := range doc.Clone() {
		stored[k] = v
	}
	id, _ := stored["id"].(string)
	if id == "" {
		id = uuid.New().String()
	}
	delete(stored, "id")
	stored["_id"] = id
	stored["_createdAt"] = time.Now().UTC()

	if _, err := g.db.Collection(collection).InsertOne(ctx, stored); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
		}
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (g *Mongo) Update(ctx context.Context, collection, id string, patch Document) error {
	if err := ValidateCollection(collection); err != nil {
		return err
	}
	set := bson.M{}
	for k, v := range patch.Clone() {
		if k == "id" || k == "_id" {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		n, err := g.db.Collection(collection).CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, id, err)
		}
		if n == 0 {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return nil
	}
	res, err := g.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}

func fromBSONDocument(m bson.M) Document {
	doc := Document{}
	for k, v := range m {
		switch k {
		case "_id":
			doc["id"] = fmt.Sprint(fromBSON(v))
		case "_createdAt":
		default:
			doc[k] = fromBSON(v)
		}
	}
	return doc
}

// fromBSON converts driver-specific container and scalar types into the plain
// Go values the rest of the system expects.
func fromBSON(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = fromBSON(val)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = fromBSON(val)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	}
	return v
}
