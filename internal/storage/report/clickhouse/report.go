package clickhouse

import (
	"context"

	"github.com/pkg/errors"

	"github.com/leshachaplin/capirelay/internal/domain"
)

func (c *Clickhouse) StoreReports(ctx context.Context, reports domain.ReportBatch) error {
	rows := deliveriesFromService(reports.Reports)
	if len(rows) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `INSERT INTO capi_deliveries`)
	if err != nil {
		return errors.Wrap(err, "prepare batch")
	}
	for i := 0; i < len(rows); i++ {
		if errAppend := batch.AppendStruct(&rows[i]); errAppend != nil {
			return errors.Wrap(errAppend, "append delivery")
		}
	}
	return errors.Wrap(batch.Send(), "send batch")
}
