package index

import (
	"fmt"
	"iter"
	"sort"

	"github.com/blevesearch/bleve/v2/search/query"
)

// Convertor maps a value of one type to another. Implementations must be
// stateless so that one convertor can serve concurrent stores and queries.
type Convertor[S, T any] interface {
	Convert(S) (T, error)
}

// ConvertorFunc adapts a function to Convertor.
type ConvertorFunc[S, T any] func(S) (T, error)

// Convert implements Convertor.
func (f ConvertorFunc[S, T]) Convert(s S) (T, error) {
	return f(s)
}

// Identity returns a convertor that hands its input back unchanged.
func Identity[T any]() Convertor[T, T] {
	return ConvertorFunc[T, T](func(t T) (T, error) { return t, nil })
}

// Document is the unit stored in an index: an ID unique within the index
// and multi-valued string fields.
type Document struct {
	ID     string
	Fields map[string][]string
}

// NewDocument creates an empty document with the given ID.
func NewDocument(id string) *Document {
	return &Document{ID: id, Fields: make(map[string][]string)}
}

// Add appends values to field and returns the document for chaining.
func (d *Document) Add(field string, values ...string) *Document {
	if d.Fields == nil {
		d.Fields = make(map[string][]string)
	}
	d.Fields[field] = append(d.Fields[field], values...)
	return d
}

// Get returns the first value of field, or "" if it has none.
func (d *Document) Get(field string) string {
	if vs := d.Fields[field]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns every value of field.
func (d *Document) Values(field string) []string {
	return d.Fields[field]
}

// FieldNames returns the document's field names in sorted order.
func (d *Document) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// body is the value handed to bleve for indexing.
func (d *Document) body() map[string]interface{} {
	body := make(map[string]interface{}, len(d.Fields))
	for name, values := range d.Fields {
		if len(values) == 0 {
			continue
		}
		body[name] = values
	}
	return body
}

// FieldSelector names the stored fields a query loads. An empty selector
// loads every stored field.
type FieldSelector []string

// AllFields loads every stored field.
var AllFields FieldSelector

func (fs FieldSelector) bleveFields() []string {
	if len(fs) == 0 {
		return []string{"*"}
	}
	return fs
}

// Status is the derived health of an index directory.
type Status int

const (
	// StatusEmpty means nothing has ever been committed to the directory.
	StatusEmpty Status = iota
	// StatusValid means the directory holds a usable index.
	StatusValid
	// StatusWriting means a writer, in this process or another, holds the
	// write lock.
	StatusWriting
	// StatusInvalid means the index is corrupt or a writer died holding the
	// lock. The next store clears it.
	StatusInvalid
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusValid:
		return "VALID"
	case StatusWriting:
		return "WRITING"
	case StatusInvalid:
		return "INVALID"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TxState is the transaction state of one Index.
type TxState int

const (
	// TxNone means no transaction has been started.
	TxNone TxState = iota
	// TxOpen means changes are buffered and invisible to queries.
	TxOpen
	// TxCommitted means the last transaction was applied.
	TxCommitted
	// TxRolledBack means the last transaction was discarded.
	TxRolledBack
)

// String returns the state name.
func (s TxState) String() string {
	switch s {
	case TxNone:
		return "none"
	case TxOpen:
		return "open"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("TxState(%d)", int(s))
	}
}

// Changes is a set of additions and deletions converted lazily while the
// write lock is held. Deletions are resolved before additions.
type Changes struct {
	adds    iter.Seq2[*Document, error]
	deletes iter.Seq2[query.Query, error]
}

// NewChanges builds Changes from caller values and the convertors that turn
// them into documents and delete queries. A nil convertor is only allowed
// when the matching slice is empty.
func NewChanges[T, S any](toAdd []T, toDelete []S, docConv Convertor[T, *Document], queryConv Convertor[S, query.Query]) Changes {
	return Changes{
		adds:    convertAll(toAdd, docConv, "document"),
		deletes: convertAll(toDelete, queryConv, "delete query"),
	}
}

// DocumentChanges builds Changes from ready documents and queries.
func DocumentChanges(toAdd []*Document, toDelete []query.Query) Changes {
	return NewChanges(toAdd, toDelete, Identity[*Document](), Identity[query.Query]())
}

func convertAll[S, T any](items []S, conv Convertor[S, T], what string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if len(items) == 0 {
			return
		}
		if conv == nil {
			var zero T
			yield(zero, fmt.Errorf("no %s convertor for %d items", what, len(items)))
			return
		}
		for _, item := range items {
			out, err := conv.Convert(item)
			if err != nil {
				err = fmt.Errorf("failed to convert %s: %w", what, err)
			}
			if !yield(out, err) || err != nil {
				return
			}
		}
	}
}
