package index

import (
	"context"
	"errors"

	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	ixerrors "github.com/Aman-CERP/txindex/internal/errors"
)

// Query runs q against the committed state of idx, converts every hit and
// appends the results. Buffered transactions are never visible.
//
// ctx doubles as the cancellation flag: it is checked before each
// conversion, and a cancelled query returns nil with the results gathered
// so far.
func Query[R any](ctx context.Context, idx *Index, results *[]R, convert Convertor[*Document, R], fields FieldSelector, q query.Query) error {
	if idx == nil || results == nil || convert == nil || q == nil {
		return ixerrors.UsageError(ixerrors.ErrCodeInvalidInput, "query needs an index, a result slice, a convertor and a query")
	}
	if ctx.Err() != nil {
		return nil
	}

	hits, err := idx.h.search(ctx, q, fields)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		var ie *ixerrors.IndexError
		if errors.As(err, &ie) {
			return err
		}
		return ixerrors.New(ixerrors.ErrCodeQueryFailed, "query failed", err).
			WithDetail("dir", idx.h.dir)
	}

	for _, hit := range hits {
		if ctx.Err() != nil {
			return nil
		}
		r, err := convert.Convert(documentFromHit(hit))
		if err != nil {
			return ixerrors.New(ixerrors.ErrCodeConversionFailed, "failed to convert query result", err).
				WithDetail("id", hit.ID)
		}
		*results = append(*results, r)
	}
	return nil
}

// Count returns how many committed documents match q.
func Count(ctx context.Context, idx *Index, q query.Query) (int, error) {
	ids, err := idx.h.committedIDs(ctx, q)
	if err != nil {
		return 0, ixerrors.New(ixerrors.ErrCodeQueryFailed, "count failed", err).
			WithDetail("dir", idx.h.dir)
	}
	return len(ids), nil
}

// documentFromHit rebuilds a Document from the stored fields of a hit.
func documentFromHit(hit *search.DocumentMatch) *Document {
	doc := NewDocument(hit.ID)
	for name, v := range hit.Fields {
		switch val := v.(type) {
		case string:
			doc.Fields[name] = []string{val}
		case []interface{}:
			for _, e := range val {
				if s, ok := e.(string); ok {
					doc.Fields[name] = append(doc.Fields[name], s)
				}
			}
		}
	}
	return doc
}
