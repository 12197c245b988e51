package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound      = RepositoryError("not found")
	ErrDuplicateID   = RepositoryError("duplicate id")
	ErrBatchTooLarge = RepositoryError("batch exceeds the maximum write count")
	ErrInvalidQuery  = RepositoryError("invalid query")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// MaxBatchWrites is the largest number of writes a single batch may commit.
// Callers that touch more records must paginate.
const MaxBatchWrites = 400

// FieldID is the document id field; it is also the default sort key.
const FieldID = "_id"

// Collection names a logical collection of the store.
type Collection string

const (
	CollectionUsers         Collection = "users"
	CollectionSessions      Collection = "training_sessions"
	CollectionPlans         Collection = "workout_plans"
	CollectionNotifications Collection = "notifications"
	CollectionExercises     Collection = "exercises"
)

// Operator of a query filter. Only equality, membership and range bounds are
// supported; cross-collection joins happen in the calling service.
type Operator string

const (
	OpEq  Operator = "=="
	OpIn  Operator = "in"
	OpGte Operator = ">="
	OpLte Operator = "<="
)

type Filter struct {
	Field string
	Op    Operator
	Value any
}

func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// In matches documents whose field equals one of values.
func In(field string, values ...any) Filter {
	return Filter{Field: field, Op: OpIn, Value: values}
}

func Gte(field string, value any) Filter {
	return Filter{Field: field, Op: OpGte, Value: value}
}

func Lte(field string, value any) Filter {
	return Filter{Field: field, Op: OpLte, Value: value}
}

// Query selects documents matching every filter. When After is set only
// documents whose OrderBy value sorts strictly after it (before it when
// Descending) are returned, which gives cursor pagination over OrderBy.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	After      any
	Limit      int
}

// Document is the wire shape of a stored record.
type Document = bson.M

// Store is the document store every service works against.
type Store interface {
	Find(ctx context.Context, c Collection, q Query) ([]Document, error)
	Get(ctx context.Context, c Collection, id string) (Document, error)
	// Insert stores doc and returns its id. A missing or empty _id is generated.
	Insert(ctx context.Context, c Collection, doc Document) (string, error)
	// Update sets the given top-level fields on an existing document.
	Update(ctx context.Context, c Collection, id string, fields Document) error
	Delete(ctx context.Context, c Collection, id string) error
	Batch(c Collection) Batch
}

// Batch groups writes on one collection. Commit applies at most
// MaxBatchWrites writes and fails with ErrBatchTooLarge beyond that.
type Batch interface {
	Update(id string, fields Document)
	Delete(id string)
	Len() int
	Commit(ctx context.Context) error
}

// Encode converts a bson-tagged value into a Document.
func Encode(v any) (Document, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode converts a Document into the bson-tagged value pointed to by out.
func Decode(doc Document, out any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// DecodeAll decodes docs into a slice of T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := Decode(doc, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// DocumentID returns the string id of doc, or "" when it has none.
func DocumentID(doc Document) string {
	id, _ := doc[FieldID].(string)
	return id
}

// SubDocument returns v as a Document when it holds an embedded document in
// any of the shapes the bson decoder produces, or nil otherwise.
func SubDocument(v any) Document {
	switch d := v.(type) {
	case primitive.M:
		return Document(d)
	case map[string]any:
		return Document(d)
	case primitive.D:
		return Document(d.Map())
	}
	return nil
}
