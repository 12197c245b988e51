package mongo

import (
	"context"
	"errors"

	"alcyxob/gym-notifier/internal/repository"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements repository.Store on a MongoDB database. Document ids are
// UUID strings so that id ordering matches the other backends.
type Store struct {
	db *mongo.Database
}

var _ repository.Store = (*Store)(nil)

// NewStore creates a Store backed by db.
func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) collection(c repository.Collection) *mongo.Collection {
	return s.db.Collection(string(c))
}

// Find runs q against the collection. The cursor condition and the filters
// on the same field are merged into one operator document.
func (s *Store) Find(ctx context.Context, c repository.Collection, q repository.Query) ([]repository.Document, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = repository.FieldID
	}
	direction := 1
	if q.Descending {
		direction = -1
	}
	sort := bson.D{{Key: orderBy, Value: direction}}
	if orderBy != repository.FieldID {
		sort = append(sort, bson.E{Key: repository.FieldID, Value: direction})
	}
	findOptions := options.Find().SetSort(sort)
	if q.Limit > 0 {
		findOptions.SetLimit(int64(q.Limit))
	}

	cursor, err := s.collection(c).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	docs := []repository.Document{}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Get retrieves a single document by its ID.
func (s *Store) Get(ctx context.Context, c repository.Collection, id string) (repository.Document, error) {
	var doc repository.Document
	err := s.collection(c).FindOne(ctx, bson.M{repository.FieldID: id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// Insert stores doc, generating a UUID id when it has none.
func (s *Store) Insert(ctx context.Context, c repository.Collection, doc repository.Document) (string, error) {
	id := repository.DocumentID(doc)
	if id == "" {
		id = uuid.NewString()
	}
	toInsert := make(bson.M, len(doc)+1)
	for k, v := range doc {
		toInsert[k] = v
	}
	toInsert[repository.FieldID] = id

	if _, err := s.collection(c).InsertOne(ctx, toInsert); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", repository.ErrDuplicateID
		}
		return "", err
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, c repository.Collection, id string, fields repository.Document) error {
	result, err := s.collection(c).UpdateOne(ctx, bson.M{repository.FieldID: id}, bson.M{"$set": withoutID(fields)})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, c repository.Collection, id string) error {
	result, err := s.collection(c).DeleteOne(ctx, bson.M{repository.FieldID: id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) Batch(c repository.Collection) repository.Batch {
	return &bulkBatch{collection: s.collection(c)}
}

// bulkBatch sends its writes as one ordered BulkWrite. Mongo applies each
// write atomically but not the bulk as a whole, so callers must be safe to
// re-run after a partial commit.
type bulkBatch struct {
	collection *mongo.Collection
	models     []mongo.WriteModel
}

func (b *bulkBatch) Update(id string, fields repository.Document) {
	b.models = append(b.models, mongo.NewUpdateOneModel().
		SetFilter(bson.M{repository.FieldID: id}).
		SetUpdate(bson.M{"$set": withoutID(fields)}))
}

func (b *bulkBatch) Delete(id string) {
	b.models = append(b.models, mongo.NewDeleteOneModel().SetFilter(bson.M{repository.FieldID: id}))
}

func (b *bulkBatch) Len() int {
	return len(b.models)
}

func (b *bulkBatch) Commit(ctx context.Context) error {
	if len(b.models) == 0 {
		return nil
	}
	if len(b.models) > repository.MaxBatchWrites {
		return repository.ErrBatchTooLarge
	}
	if _, err := b.collection.BulkWrite(ctx, b.models, options.BulkWrite().SetOrdered(true)); err != nil {
		return err
	}
	b.models = nil
	return nil
}

func buildFilter(q repository.Query) (bson.M, error) {
	filter := bson.M{}
	cond := func(field string) bson.M {
		existing, ok := filter[field].(bson.M)
		if !ok {
			existing = bson.M{}
			filter[field] = existing
		}
		return existing
	}

	for _, f := range q.Filters {
		switch f.Op {
		case repository.OpEq:
			cond(f.Field)["$eq"] = f.Value
		case repository.OpIn:
			values, ok := f.Value.([]any)
			if !ok {
				return nil, repository.ErrInvalidQuery
			}
			cond(f.Field)["$in"] = values
		case repository.OpGte:
			cond(f.Field)["$gte"] = f.Value
		case repository.OpLte:
			cond(f.Field)["$lte"] = f.Value
		default:
			return nil, repository.ErrInvalidQuery
		}
	}

	if q.After != nil {
		orderBy := q.OrderBy
		if orderBy == "" {
			orderBy = repository.FieldID
		}
		op := "$gt"
		if q.Descending {
			op = "$lt"
		}
		cond(orderBy)[op] = q.After
	}
	return filter, nil
}

func withoutID(fields repository.Document) bson.M {
	out := make(bson.M, len(fields))
	for k, v := range fields {
		if k != repository.FieldID {
			out[k] = v
		}
	}
	return out
}
