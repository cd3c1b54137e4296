package datasource

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"go.uber.org/zap"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

func init() {
	Register(models.ConnectionTypeWeaviate, newWeaviateDriver)
}

// weaviateDriver covers vector-store connections registered as target
// databases. It supports test and get_schema; arbitrary query execution
// is not part of the Weaviate surface.
type weaviateDriver struct {
	client *weaviate.Client
	logger *zap.Logger
}

func newWeaviateDriver(ctx context.Context, conn *models.Connection, password string, logger *zap.Logger) (Driver, error) {
	scheme := "http"
	if conn.SSL {
		scheme = "https"
	}
	cfg := weaviate.Config{
		Host:   fmt.Sprintf("%s:%d", conn.Host, conn.Port),
		Scheme: scheme,
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "build weaviate config", err)
	}
	return &weaviateDriver{client: client, logger: logger.Named("weaviate")}, nil
}

func (d *weaviateDriver) Test(ctx context.Context) error {
	ready, err := d.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return apperrors.Upstream("weaviate", err)
	}
	if !ready {
		return apperrors.Upstream("weaviate", fmt.Errorf("instance not ready"))
	}
	return nil
}

func (d *weaviateDriver) ExecuteQuery(ctx context.Context, statement string, params map[string]any) (*QueryResult, error) {
	return nil, apperrors.Unsupported("query execution on weaviate connections")
}

// GetSchema maps classes to tables and properties to columns. Object
// counts and relational metadata do not apply.
func (d *weaviateDriver) GetSchema(ctx context.Context, opts models.DiscoveryOptions) (*SchemaSnapshot, error) {
	dump, err := d.client.Schema().Getter().Do(ctx)
	if err != nil {
		return nil, apperrors.Upstream("weaviate", err)
	}

	meta, err := d.client.Misc().MetaGetter().Do(ctx)
	if err != nil {
		return nil, apperrors.Upstream("weaviate", err)
	}

	snapshot := &SchemaSnapshot{DatabaseName: "weaviate", Version: meta.Version}
	for _, class := range dump.Classes {
		if tableExcluded(opts.ExcludedCollections, class.Class) || tableExcluded(opts.ExcludedTables, class.Class) {
			continue
		}
		table := models.Table{
			SchemaName:  "weaviate",
			Name:        class.Class,
			Description: class.Description,
		}
		for _, prop := range class.Properties {
			dataType := ""
			if len(prop.DataType) > 0 {
				dataType = prop.DataType[0]
			}
			table.Columns = append(table.Columns, models.Column{
				Name:        prop.Name,
				DataType:    dataType,
				Nullable:    true,
				Description: prop.Description,
			})
		}
		snapshot.Tables = append(snapshot.Tables, table)
	}
	return snapshot, nil
}

func (d *weaviateDriver) Close(ctx context.Context) error { return nil }
