package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"condorview/internal/domain"
	"condorview/internal/grid"
)

// mongoConnector implements Connector for MongoDB. Documents come back as
// ordered objects so nested fields flatten into datacube rows.
type mongoConnector struct {
	client *mongo.Client
	dbName string
	log    *zap.Logger
}

// mongoQuery is the JSON structure users write for MongoDB queries. Filter,
// projection, sort and pipeline accept Extended JSON ($oid, $date, ...).
type mongoQuery struct {
	Collection string          `json:"collection"`
	Operation  string          `json:"operation,omitempty"` // find (default) or aggregate
	Filter     json.RawMessage `json:"filter,omitempty"`
	Projection json.RawMessage `json:"projection,omitempty"`
	Sort       json.RawMessage `json:"sort,omitempty"`
	Pipeline   json.RawMessage `json:"pipeline,omitempty"`
}

func newMongoConnector(conn *domain.DatabaseConnection, password string, log *zap.Logger) (*mongoConnector, error) {
	uri := buildMongoURI(conn, password)
	dbName := conn.Database
	if dbName == "" {
		dbName = mongoDatabaseFromURI(uri)
	}

	log.Debug("connecting to mongo", zap.String("uri", redactMongoURI(uri)), zap.String("database", dbName))
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoConnector{client: client, dbName: dbName, log: log}, nil
}

// buildMongoURI uses a full mongodb:// or mongodb+srv:// host as given,
// filling a <password> placeholder; otherwise it builds one from host:port
// with ExtraJSON entries as URI options.
func buildMongoURI(conn *domain.DatabaseConnection, password string) string {
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri := conn.Host
		if password != "" {
			uri = strings.ReplaceAll(uri, "<password>", url.QueryEscape(password))
			uri = strings.ReplaceAll(uri, "<db_password>", url.QueryEscape(password))
		}
		return uri
	}

	port := conn.Port
	if port == 0 {
		port = 27017
	}
	u := url.URL{Scheme: "mongodb", Host: fmt.Sprintf("%s:%d", conn.Host, port), Path: "/"}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
	}
	if conn.ExtraJSON != "" && conn.ExtraJSON != "{}" {
		var extras map[string]string
		if json.Unmarshal([]byte(conn.ExtraJSON), &extras) == nil && len(extras) > 0 {
			q := url.Values{}
			for k, v := range extras {
				q.Set(k, v)
			}
			u.RawQuery = q.Encode()
		}
	}
	return u.String()
}

// mongoDatabaseFromURI returns the path component of a mongo URI, "test"
// when there is none.
func mongoDatabaseFromURI(uri string) string {
	if u, err := url.Parse(uri); err == nil {
		if db := strings.Trim(u.Path, "/"); db != "" {
			return db
		}
	}
	return "test"
}

func redactMongoURI(uri string) string {
	if u, err := url.Parse(uri); err == nil {
		return u.Redacted()
	}
	return "<unparseable uri>"
}

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

// parsedMongoQuery is a mongoQuery with its documents decoded.
type parsedMongoQuery struct {
	collection string
	operation  string
	filter     bson.D
	projection bson.D
	sort       bson.D
	pipeline   bson.A
}

// parseMongoQuery decodes the query JSON and its Extended JSON documents.
func parseMongoQuery(query string) (*parsedMongoQuery, error) {
	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	if mq.Collection == "" {
		return nil, fmt.Errorf("query must specify 'collection'")
	}
	pq := &parsedMongoQuery{collection: mq.Collection, operation: mq.Operation}
	var err error
	if pq.filter, err = extJSONDoc(mq.Filter); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if pq.projection, err = extJSONDoc(mq.Projection); err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}
	if pq.sort, err = extJSONDoc(mq.Sort); err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}
	if len(mq.Pipeline) > 0 {
		var wrapped struct {
			Pipeline bson.A `bson:"pipeline"`
		}
		raw := append(append([]byte(`{"pipeline":`), mq.Pipeline...), '}')
		if err := bson.UnmarshalExtJSON(raw, false, &wrapped); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		pq.pipeline = wrapped.Pipeline
	}
	return pq, nil
}

func extJSONDoc(raw json.RawMessage) (bson.D, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (m *mongoConnector) Query(ctx context.Context, query string, maxRows int) (*Result, error) {
	pq, err := parseMongoQuery(query)
	if err != nil {
		return nil, err
	}
	maxRows = effectiveMaxRows(maxRows)
	coll := m.client.Database(m.dbName).Collection(pq.collection)

	var cursor *mongo.Cursor
	switch pq.operation {
	case "", "find":
		opts := options.Find().SetLimit(int64(maxRows) + 1)
		if pq.projection != nil {
			opts.SetProjection(pq.projection)
		}
		if pq.sort != nil {
			opts.SetSort(pq.sort)
		}
		filter := pq.filter
		if filter == nil {
			filter = bson.D{}
		}
		cursor, err = coll.Find(ctx, filter, opts)
	case "aggregate":
		pipeline := pq.pipeline
		if pipeline == nil {
			pipeline = bson.A{}
		}
		for _, stage := range pipeline {
			if isWriteStage(stage) {
				return nil, ErrWriteQuery
			}
		}
		cursor, err = coll.Aggregate(ctx, pipeline)
	default:
		return nil, fmt.Errorf("unsupported operation %q: %w", pq.operation, ErrWriteQuery)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pq.collection, err)
	}
	defer cursor.Close(ctx)

	res := &Result{Documents: []any{}}
	for cursor.Next(ctx) {
		if len(res.Documents) >= maxRows {
			res.Truncated = true
			break
		}
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		res.Documents = append(res.Documents, documentObject(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	m.log.Debug("mongo query", zap.String("collection", pq.collection), zap.Int("documents", len(res.Documents)))
	return res, nil
}

// isWriteStage reports whether an aggregation stage writes ($out, $merge).
func isWriteStage(stage any) bool {
	doc, ok := stage.(bson.D)
	if !ok {
		return false
	}
	for _, e := range doc {
		if e.Key == "$out" || e.Key == "$merge" {
			return true
		}
	}
	return false
}

// documentObject converts a decoded document into an ordered grid object.
func documentObject(doc bson.D) *grid.Object {
	obj := grid.NewObject()
	for _, e := range doc {
		obj.Set(e.Key, bsonValue(e.Value))
	}
	return obj
}

func bsonValue(v any) any {
	switch x := v.(type) {
	case bson.D:
		return documentObject(x)
	case bson.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = bsonValue(item)
		}
		return out
	case bson.ObjectID:
		return x.Hex()
	case bson.DateTime:
		return x.Time().UTC()
	case bson.Timestamp:
		return time.Unix(int64(x.T), 0).UTC()
	case bson.Decimal128:
		return x.String()
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case bson.Binary:
		return fmt.Sprintf("%x", x.Data)
	case nil, string, bool, float64:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func (m *mongoConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db := m.client.Database(m.dbName)
	collections, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(collections)

	schema := &SchemaInfo{}
	for _, collName := range collections {
		var doc bson.D
		err := db.Collection(collName).FindOne(ctx, bson.D{}).Decode(&doc)
		if err != nil {
			schema.Tables = append(schema.Tables, TableInfo{Name: collName})
			continue
		}
		cols := make([]ColumnInfo, 0, len(doc))
		for _, e := range doc {
			cols = append(cols, ColumnInfo{Name: e.Key, Type: fmt.Sprintf("%T", e.Value)})
		}
		schema.Tables = append(schema.Tables, TableInfo{Name: collName, Columns: cols})
	}
	return schema, nil
}

func (m *mongoConnector) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
