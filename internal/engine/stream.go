// Package engine - streaming reads for export collaborators
package engine

import (
	"context"
	"time"

	"github.com/aethra/gridbase/internal/ast"
)

const streamBatchSize = 100

// StreamResult is one slice of a streamed listing. Offset is where the
// next request should resume, or -1 when the listing is exhausted.
type StreamResult struct {
	Records []Record
	Offset  int
	Elapsed time.Duration
}

// StreamList reads batches from the given offset until the listing is
// exhausted or the wall-clock budget runs out, whichever comes first.
// Exports of large tables resume by passing the returned offset back.
func (e *RowEngine) StreamList(ctx context.Context, params *ast.QueryParams, offset int, budget time.Duration) (*StreamResult, error) {
	started := time.Now()
	result := &StreamResult{Offset: -1}

	tree, err := e.deps.Builder.Build(e.model, e.view, e.roles, params)
	if err != nil {
		return nil, err
	}

	for {
		batch := &ast.QueryParams{Limit: streamBatchSize, Offset: offset}
		if params != nil {
			batch.Fields = params.Fields
			batch.Nested = params.Nested
			batch.Filters = params.Filters
			batch.Sorts = params.Sorts
		}

		query, err := e.baseQuery(batch)
		if err != nil {
			return nil, err
		}
		query, err = e.applySorts(query, batch)
		if err != nil {
			return nil, err
		}

		rows, err := e.scanRows(query.Limit(streamBatchSize).Offset(offset))
		if err != nil {
			return nil, err
		}

		projected, err := e.ProjectList(ctx, tree, rows)
		if err != nil {
			return nil, err
		}
		result.Records = append(result.Records, projected...)
		offset += len(rows)

		if len(rows) < streamBatchSize {
			break
		}
		if time.Since(started) >= budget || ctx.Err() != nil {
			result.Offset = offset
			break
		}
	}

	result.Elapsed = time.Since(started)
	return result, nil
}
