package adapter

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/aigis/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// BigQueryExchangeLog streams completed turns into a BigQuery table
type BigQueryExchangeLog struct {
	client  *bigquery.Client
	dataset string
	table   string
}

// NewBigQueryExchangeLog creates the exchange log writer. The table is
// created with the inferred schema when it does not exist.
func NewBigQueryExchangeLog(ctx context.Context, projectID, dataset, table string) (*BigQueryExchangeLog, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	x := &BigQueryExchangeLog{
		client:  client,
		dataset: dataset,
		table:   table,
	}
	if err := x.ensureTable(ctx); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *BigQueryExchangeLog) ref() *bigquery.Table {
	return x.client.Dataset(x.dataset).Table(x.table)
}

func (x *BigQueryExchangeLog) ensureTable(ctx context.Context) error {
	_, err := x.ref().Metadata(ctx)
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return goerr.Wrap(err, "failed to get table metadata",
			goerr.V("dataset", x.dataset), goerr.V("table", x.table))
	}

	schema, err := bigquery.InferSchema(model.Exchange{})
	if err != nil {
		return goerr.Wrap(err, "failed to infer exchange schema")
	}

	if err := x.ref().Create(ctx, &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "created_at",
		},
	}); err != nil {
		return goerr.Wrap(err, "failed to create exchange table",
			goerr.V("dataset", x.dataset), goerr.V("table", x.table))
	}
	return nil
}

// Record inserts one exchange row. The exchange id is used as insert id so
// retried inserts are deduplicated.
func (x *BigQueryExchangeLog) Record(ctx context.Context, exchange *model.Exchange) error {
	saver := &bigquery.StructSaver{
		Struct:   exchange,
		InsertID: exchange.ID,
	}
	if err := x.ref().Inserter().Put(ctx, saver); err != nil {
		return goerr.Wrap(err, "failed to insert exchange", goerr.V("id", exchange.ID))
	}
	return nil
}

// Recent returns the latest exchanges, newest first
func (x *BigQueryExchangeLog) Recent(ctx context.Context, limit int) ([]*model.Exchange, error) {
	q := x.client.Query("SELECT * FROM `" + x.dataset + "." + x.table + "` ORDER BY created_at DESC LIMIT @limit")
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query exchanges")
	}

	var results []*model.Exchange
	for {
		var row model.Exchange
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read exchange row")
		}
		results = append(results, &row)
	}
	return results, nil
}

func (x *BigQueryExchangeLog) Close() error {
	return x.client.Close()
}
