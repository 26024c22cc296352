package ports

import (
	"context"
	"io"

	"gostudio/domain/table"
)

// TableLoader turns an uploaded file into a table. The file name selects the format.
type TableLoader interface {
	Load(ctx context.Context, name string, r io.Reader) (*table.Table, error)
}
