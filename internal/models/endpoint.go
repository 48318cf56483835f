package models

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/opendata-gateway/go/internal/db"
)

// ProtocolType selects the backend invocation protocol of an API version
type ProtocolType string

const (
	ProtocolHTTP ProtocolType = "http"
	ProtocolSOAP ProtocolType = "soap"
)

// SchemaType is the closed set of body schema node types
type SchemaType string

const (
	SchemaBoolean SchemaType = "boolean"
	SchemaNumber  SchemaType = "number"
	SchemaString  SchemaType = "string"
	SchemaArray   SchemaType = "array"
	SchemaObject  SchemaType = "object"
)

// SchemaNode is one node of a stored body schema. Objects list their required
// children; arrays declare the element shape in Items.
type SchemaNode struct {
	Type     SchemaType   `bson:"type" json:"type"`
	Key      string       `bson:"key,omitempty" json:"key,omitempty"`
	Children []SchemaNode `bson:"children,omitempty" json:"children,omitempty"`
	Items    *SchemaNode  `bson:"items,omitempty" json:"items,omitempty"`
}

// ApiVersion describes one callable backend operation
type ApiVersion struct {
	Version             int               `bson:"version" json:"version"`
	Type                ProtocolType      `bson:"type" json:"type"`
	URL                 string            `bson:"url" json:"url"`
	Method              string            `bson:"method" json:"method"`
	HeaderParams        []string          `bson:"headerParams,omitempty" json:"headerParams,omitempty"`
	QueryParams         []string          `bson:"queryParams,omitempty" json:"queryParams,omitempty"`
	PathParams          []string          `bson:"pathParams,omitempty" json:"pathParams,omitempty"`
	HasBody             bool              `bson:"hasBody" json:"hasBody"`
	BodySchema          *SchemaNode       `bson:"bodySchema,omitempty" json:"bodySchema,omitempty"`
	StaticHeaders       map[string]string `bson:"staticHeaders,omitempty" json:"staticHeaders,omitempty"`
	AllowHeaderOverride bool              `bson:"allowHeaderOverride" json:"allowHeaderOverride"`
	SOAPTemplate        string            `bson:"soapTemplate,omitempty" json:"soapTemplate,omitempty"`
	Enabled             bool              `bson:"enabled" json:"enabled"`
	DisabledMessage     string            `bson:"disabledMessage,omitempty" json:"disabledMessage,omitempty"`
}

// ApiEndpoint groups the published versions of one backend API
type ApiEndpoint struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name"`
	Enabled         bool               `bson:"enabled" json:"enabled"`
	DisabledMessage string             `bson:"disabledMessage,omitempty" json:"disabledMessage,omitempty"`
	Versions        []ApiVersion       `bson:"versions" json:"versions"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
}

// VersionNumber returns the version with the given number, or nil
func (e *ApiEndpoint) VersionNumber(n int) *ApiVersion {
	for i := range e.Versions {
		if e.Versions[i].Version == n {
			return &e.Versions[i]
		}
	}
	return nil
}

// EndpointRepository provides read access to API endpoints
type EndpointRepository struct {
	mongo *db.Mongo
}

func NewEndpointRepository(m *db.Mongo) *EndpointRepository {
	return &EndpointRepository{mongo: m}
}

func (r *EndpointRepository) Collection() *mongo.Collection {
	return r.mongo.Collection("endpoints")
}

func (r *EndpointRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*ApiEndpoint, error) {
	var e ApiEndpoint
	err := r.Collection().FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Create inserts an endpoint. Used by provisioning workflows and tests.
func (r *EndpointRepository) Create(ctx context.Context, e *ApiEndpoint) (*ApiEndpoint, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	result, err := r.Collection().InsertOne(ctx, e)
	if err != nil {
		return nil, err
	}

	oid, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, errors.New("failed to get inserted ID")
	}
	e.ID = oid

	return e, nil
}
