// Package docindex is a document-oriented index with write buffering.
//
// Documents are identified by a primary key; several documents may share
// one. Additions and removals are buffered in a DocumentCache and become
// visible to queries only when Store commits them.
package docindex

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Aman-CERP/txindex/internal/index"
)

const (
	// primaryKeyField holds the document primary key.
	primaryKeyField = "_pk"

	// hiddenField lists the fields that are indexed but never loaded.
	hiddenField = "_hidden"

	// foldSuffix names the lowercase companion of a searchable field.
	foldSuffix = "$ci"
)

// IndexDocument is a document keyed by a primary key with multi-valued
// string fields.
type IndexDocument struct {
	primaryKey string
	fields     map[string][]string
	folded     map[string][]string
	hidden     map[string]struct{}
}

// NewIndexDocument creates an empty document for primaryKey.
func NewIndexDocument(primaryKey string) *IndexDocument {
	return &IndexDocument{
		primaryKey: primaryKey,
		fields:     make(map[string][]string),
		folded:     make(map[string][]string),
		hidden:     make(map[string]struct{}),
	}
}

// PrimaryKey returns the document primary key.
func (d *IndexDocument) PrimaryKey() string {
	return d.primaryKey
}

// AddPair adds value to key. Searchable values also get a lowercase
// companion for case-insensitive queries. Values that are not stored can
// be queried but are not returned by queries.
func (d *IndexDocument) AddPair(key, value string, searchable, stored bool) {
	d.fields[key] = append(d.fields[key], value)
	if searchable {
		d.folded[key] = append(d.folded[key], strings.ToLower(value))
	}
	if !stored {
		d.hidden[key] = struct{}{}
	}
}

// Value returns the first value of key, or "" if there is none.
func (d *IndexDocument) Value(key string) string {
	if vs := d.fields[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Values returns every value of key.
func (d *IndexDocument) Values(key string) []string {
	return d.fields[key]
}

// Keys returns the field names in sorted order.
func (d *IndexDocument) Keys() []string {
	keys := make([]string, 0, len(d.fields))
	for k := range d.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toDocument flattens d into an index document with a fresh ID.
func toDocument(d *IndexDocument) (*index.Document, error) {
	doc := index.NewDocument(uuid.NewString())
	doc.Add(primaryKeyField, d.primaryKey)
	for k, vs := range d.fields {
		doc.Add(k, vs...)
	}
	for k, vs := range d.folded {
		doc.Add(k+foldSuffix, vs...)
	}
	for k := range d.hidden {
		doc.Add(hiddenField, k)
	}
	return doc, nil
}

// fromDocument rebuilds an IndexDocument from a loaded index document,
// dropping companions and hidden fields.
func fromDocument(doc *index.Document) (*IndexDocument, error) {
	d := NewIndexDocument(doc.Get(primaryKeyField))
	hidden := make(map[string]struct{})
	for _, k := range doc.Values(hiddenField) {
		hidden[k] = struct{}{}
	}
	for k, vs := range doc.Fields {
		if k == primaryKeyField || k == hiddenField || strings.HasSuffix(k, foldSuffix) {
			continue
		}
		if _, ok := hidden[k]; ok {
			continue
		}
		d.fields[k] = append([]string(nil), vs...)
	}
	return d, nil
}

// fieldsToLoad adds the bookkeeping fields to a caller's selection.
func fieldsToLoad(keys []string) index.FieldSelector {
	if len(keys) == 0 {
		return index.AllFields
	}
	fs := make(index.FieldSelector, 0, len(keys)+2)
	fs = append(fs, primaryKeyField, hiddenField)
	return append(fs, keys...)
}
