package datasource

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

const defaultSampleSize = 100

func init() {
	Register(models.ConnectionTypeMongoDB, newMongoDriver)
}

type mongoDriver struct {
	client *mongo.Client
	dbName string
	logger *zap.Logger
}

func newMongoDriver(ctx context.Context, conn *models.Connection, password string, logger *zap.Logger) (Driver, error) {
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d/%s?authSource=admin",
		url.QueryEscape(conn.Username), url.QueryEscape(password),
		conn.Host, conn.Port, url.PathEscape(conn.Database))
	if conn.SSL {
		uri += "&tls=true"
	}

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, apperrors.Upstream("mongodb", err)
	}
	return &mongoDriver{client: client, dbName: conn.Database, logger: logger.Named("mongodb")}, nil
}

func (d *mongoDriver) Test(ctx context.Context) error {
	if err := d.client.Ping(ctx, readpref.Primary()); err != nil {
		return apperrors.Upstream("mongodb", err)
	}
	return nil
}

// ExecuteQuery runs a database command given as extended JSON, e.g.
// {"find": "users", "filter": {"active": true}, "limit": 10}. Named
// parameter substitution does not apply to document commands.
func (d *mongoDriver) ExecuteQuery(ctx context.Context, statement string, params map[string]any) (*QueryResult, error) {
	var command bson.D
	if err := bson.UnmarshalExtJSON([]byte(statement), true, &command); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "parse mongodb command", err)
	}

	var reply bson.M
	if err := d.client.Database(d.dbName).RunCommand(ctx, command).Decode(&reply); err != nil {
		return nil, translateSQLError("mongodb", err)
	}

	result := &QueryResult{}
	docs := cursorBatch(reply)
	for _, doc := range docs {
		if result.RowCount >= MaxQueryRows {
			break
		}
		result.Rows = append(result.Rows, doc)
		result.RowCount++
	}
	result.Columns = documentKeys(result.Rows)
	return result, nil
}

func (d *mongoDriver) GetSchema(ctx context.Context, opts models.DiscoveryOptions) (*SchemaSnapshot, error) {
	snapshot := &SchemaSnapshot{DatabaseName: d.dbName}

	var build struct {
		Version string `bson:"version"`
	}
	if err := d.client.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&build); err == nil {
		snapshot.Version = build.Version
	}

	dbName := d.dbName
	if opts.Database != "" {
		dbName = opts.Database
	}
	db := d.client.Database(dbName)

	names, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, apperrors.Upstream("mongodb", err)
	}
	sort.Strings(names)

	sampleSize := opts.SampleSize
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}

	for _, name := range names {
		if tableExcluded(opts.ExcludedCollections, name) || tableExcluded(opts.ExcludedTables, name) {
			continue
		}
		coll := db.Collection(name)
		count, err := coll.EstimatedDocumentCount(ctx)
		if err != nil {
			return nil, apperrors.Upstream("mongodb", err)
		}

		fields, err := d.sampleFields(ctx, coll, sampleSize)
		if err != nil {
			return nil, err
		}

		snapshot.Tables = append(snapshot.Tables, models.Table{
			SchemaName: dbName,
			Name:       name,
			RowCount:   count,
			Columns:    fields,
		})
	}
	return snapshot, nil
}

// sampleFields infers a field catalog from a random document sample. A
// field absent from any sampled document is reported nullable.
func (d *mongoDriver) sampleFields(ctx context.Context, coll *mongo.Collection, sampleSize int) ([]models.Column, error) {
	cursor, err := coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$sample", Value: bson.D{{Key: "size", Value: sampleSize}}}},
	})
	if err != nil {
		return nil, apperrors.Upstream("mongodb", err)
	}
	defer cursor.Close(ctx)

	types := map[string]string{}
	seen := map[string]int{}
	total := 0
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, apperrors.Upstream("mongodb", err)
		}
		total++
		for key, value := range doc {
			seen[key]++
			if _, ok := types[key]; !ok {
				types[key] = bsonTypeName(value)
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, apperrors.Upstream("mongodb", err)
	}

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make([]models.Column, 0, len(names))
	for _, name := range names {
		columns = append(columns, models.Column{
			Name:       name,
			DataType:   types[name],
			Nullable:   seen[name] < total,
			PrimaryKey: name == "_id",
		})
	}
	return columns, nil
}

func (d *mongoDriver) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

func bsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int32, int64, int:
		return "int"
	case float64:
		return "double"
	case primitive.ObjectID:
		return "objectId"
	case primitive.DateTime:
		return "date"
	case primitive.Decimal128:
		return "decimal"
	case bson.A:
		return "array"
	case bson.M, bson.D:
		return "object"
	case primitive.Binary:
		return "binary"
	default:
		return fmt.Sprintf("%T", value)
	}
}

// cursorBatch digs the firstBatch documents out of a command reply, so
// find/aggregate replies come back as rows instead of one nested blob.
func cursorBatch(reply bson.M) []map[string]any {
	cursor, ok := reply["cursor"].(bson.M)
	if !ok {
		return []map[string]any{reply}
	}
	batch, ok := cursor["firstBatch"].(bson.A)
	if !ok {
		return []map[string]any{reply}
	}
	out := make([]map[string]any, 0, len(batch))
	for _, item := range batch {
		if doc, ok := item.(bson.M); ok {
			out = append(out, doc)
		}
	}
	return out
}

func documentKeys(rows []map[string]any) []string {
	keys := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			keys[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
