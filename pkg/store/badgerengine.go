package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
	"github.com/bcgsc/graphkb/pkg/schema"
)

// Key prefixes, mirroring the teacher engine's single-byte prefix scheme:
// one byte buys a cheap, lexically-sortable namespace split inside a
// single badger keyspace.
const (
	prefixVertex   = byte(0x01) // v + rid -> JSON(Record)
	prefixEdge     = byte(0x02) // e + rid -> JSON(Record)
	prefixClassIdx = byte(0x03) // c + class + 0x00 + rid -> empty
	prefixOutIdx   = byte(0x04) // o + vertexRid + 0x00 + edgeRid -> empty
	prefixInIdx    = byte(0x05) // i + vertexRid + 0x00 + edgeRid -> empty
)

// BadgerEngine is the production Engine, persisting every vertex and edge
// as a badger key-value pair inside a single embedded store. It supports an
// optional encryption-at-rest key, derived with golang.org/x/crypto/sha3 the
// way the teacher project derives its encryption keys before handing them to
// badger's WithEncryptionKey option.
type BadgerEngine struct {
	db      *badger.DB
	mu      sync.RWMutex // guards classes (schema DDL bookkeeping)
	classes map[string]schema.ClassDescriptor
	closed  bool
}

// BadgerOptions configures the production engine.
type BadgerOptions struct {
	DataDir        string
	InMemory       bool
	SyncWrites     bool
	EncryptionKey  string // optional passphrase; empty disables encryption at rest
}

// NewBadgerEngine opens (or creates) a badger-backed engine at dataDir.
func NewBadgerEngine(opts BadgerOptions) (*BadgerEngine, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	if opts.EncryptionKey != "" {
		badgerOpts = badgerOpts.WithEncryptionKey(deriveKey(opts.EncryptionKey))
	}
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, graphkberr.Wrap(graphkberr.KindConnection, "badgerengine.New", "opening badger store", err)
	}
	return &BadgerEngine{db: db, classes: map[string]schema.ClassDescriptor{}}, nil
}

// deriveKey stretches an operator-supplied passphrase into badger's
// required 32-byte AES-256 key via SHA3-256, so operators never have to
// hand-manage raw key bytes.
func deriveKey(passphrase string) []byte {
	sum := sha3.Sum256([]byte(passphrase))
	return sum[:]
}

func vertexKey(rid RID) []byte { return append([]byte{prefixVertex}, []byte(rid)...) }
func edgeKey(rid RID) []byte   { return append([]byte{prefixEdge}, []byte(rid)...) }

func classIdxKey(class string, rid RID) []byte {
	return append(append([]byte{prefixClassIdx}, []byte(class+"\x00")...), []byte(rid)...)
}

func classIdxPrefix(class string) []byte {
	return append([]byte{prefixClassIdx}, []byte(class+"\x00")...)
}

func outIdxKey(vertex, edge RID) []byte {
	return append(append([]byte{prefixOutIdx}, []byte(string(vertex)+"\x00")...), []byte(edge)...)
}

func outIdxPrefix(vertex RID) []byte {
	return append([]byte{prefixOutIdx}, []byte(string(vertex)+"\x00")...)
}

func inIdxKey(vertex, edge RID) []byte {
	return append(append([]byte{prefixInIdx}, []byte(string(vertex)+"\x00")...), []byte(edge)...)
}

func inIdxPrefix(vertex RID) []byte {
	return append([]byte{prefixInIdx}, []byte(string(vertex)+"\x00")...)
}

func (b *BadgerEngine) CreateClass(ctx context.Context, name string, extends []string, abstract bool) (ClassHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.classes[name]; ok {
		return ClassHandle{}, graphkberr.New(graphkberr.KindConflict, "badgerengine.CreateClass", fmt.Sprintf("class %q already exists", name))
	}
	b.classes[name] = schema.ClassDescriptor{Name: name, Parents: extends, Abstract: abstract, Properties: map[string]schema.PropertyDescriptor{}}
	return ClassHandle{Name: name}, nil
}

func (b *BadgerEngine) CreateProperty(ctx context.Context, class string, desc schema.PropertyDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.classes[class]
	if !ok {
		return graphkberr.New(graphkberr.KindNotFound, "badgerengine.CreateProperty", fmt.Sprintf("unknown class %q", class))
	}
	if existing, ok := c.Properties[desc.Name]; ok {
		if existing == desc {
			return nil
		}
		return graphkberr.New(graphkberr.KindConflict, "badgerengine.CreateProperty", fmt.Sprintf("property %q redefined on %q", desc.Name, class))
	}
	c.Properties[desc.Name] = desc
	b.classes[class] = c
	return nil
}

func (b *BadgerEngine) CreateIndex(ctx context.Context, desc schema.IndexDescriptor, graceful bool) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.classes[desc.Class]
	if !ok {
		return false, graphkberr.New(graphkberr.KindNotFound, "badgerengine.CreateIndex", fmt.Sprintf("unknown class %q", desc.Class))
	}
	for _, idx := range c.Indices {
		if idx.Name == desc.Name {
			if graceful {
				return true, nil
			}
			return false, graphkberr.New(graphkberr.KindConflict, "badgerengine.CreateIndex", fmt.Sprintf("index %q already exists", desc.Name))
		}
	}
	if desc.Type == schema.IndexUnique {
		for _, p := range desc.Properties {
			if prop, ok := c.Properties[p]; ok && prop.Iterable {
				return false, nil
			}
		}
	}
	c.Indices = append(c.Indices, desc)
	b.classes[desc.Class] = c
	return true, nil
}

func (b *BadgerEngine) GetClass(ctx context.Context, name string) (ClassHandle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.classes[name]; !ok {
		return ClassHandle{}, graphkberr.New(graphkberr.KindNotFound, "badgerengine.GetClass", fmt.Sprintf("unknown class %q", name))
	}
	return ClassHandle{Name: name}, nil
}

func (b *BadgerEngine) GetRecord(ctx context.Context, rid RID) (Record, bool, error) {
	var rec Record
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		for _, key := range [][]byte{vertexKey(rid), edgeKey(rid)} {
			item, err := txn.Get(key)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			found = true
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
		}
		return nil
	})
	if err != nil {
		return nil, false, graphkberr.Wrap(graphkberr.KindConnection, "badgerengine.GetRecord", "reading record", err)
	}
	return rec, found, nil
}

// PutEdge persists an edge record and its adjacency index entries — a
// seeding convenience used by tests building fixture graphs, mirroring
// MemEngine.PutEdge.
func (b *BadgerEngine) PutEdge(rid RID, class string, out, in RID, fields map[string]any) error {
	rec := newRecord(rid, class)
	rec["out"] = string(out)
	rec["in"] = string(in)
	for k, v := range fields {
		rec[k] = v
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(edgeKey(rid), data); err != nil {
			return err
		}
		if err := txn.Set(classIdxKey(class, rid), []byte{}); err != nil {
			return err
		}
		if err := txn.Set(outIdxKey(out, rid), []byte{}); err != nil {
			return err
		}
		return txn.Set(inIdxKey(in, rid), []byte{})
	})
}

// PutVertex persists a vertex record directly, bypassing DDL — a seeding
// convenience used by tests building fixture graphs, mirroring
// MemEngine.PutVertex.
func (b *BadgerEngine) PutVertex(rid RID, class string, fields map[string]any) error {
	rec := newRecord(rid, class)
	if _, ok := fields["uuid"]; !ok {
		fields = cloneFields(fields)
		fields["uuid"] = uuid.NewString()
	}
	for k, v := range fields {
		rec[k] = v
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(vertexKey(rid), data); err != nil {
			return err
		}
		return txn.Set(classIdxKey(class, rid), []byte{})
	})
}

// Insert stamps a fresh uuid (§3's vertex provenance fields) and persists a
// new vertex, the only record kind migrations insert directly.
func (b *BadgerEngine) Insert(ctx context.Context, class string, fields map[string]any) (RID, error) {
	rid := RID(fmt.Sprintf("#1:%s", uuid.NewString()))
	rec := newRecord(rid, class)
	rec["uuid"] = uuid.NewString()
	for k, v := range fields {
		rec[k] = v
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", graphkberr.Wrap(graphkberr.KindInternal, "badgerengine.Insert", "encoding record", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(vertexKey(rid), data); err != nil {
			return err
		}
		return txn.Set(classIdxKey(class, rid), []byte{})
	})
	if err != nil {
		return "", graphkberr.Wrap(graphkberr.KindConnection, "badgerengine.Insert", "writing record", err)
	}
	return rid, nil
}

func (b *BadgerEngine) Update(ctx context.Context, class string, rid RID, set map[string]any) error {
	return b.db.Update(func(txn *badger.Txn) error {
		key := vertexKey(rid)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			key = edgeKey(rid)
			item, err = txn.Get(key)
		}
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return graphkberr.New(graphkberr.KindNotFound, "badgerengine.Update", fmt.Sprintf("record %s not found", rid))
			}
			return err
		}
		var rec Record
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
			return err
		}
		for k, v := range set {
			rec[k] = v
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// Select scans the class index for spec.Class (or all vertices when
// spec.Class is empty), honoring the cursor/limit cursor-pagination
// contract described in spec §4.2.
func (b *BadgerEngine) Select(ctx context.Context, spec SelectSpec, cursor RID, limit int) ([]Record, RID, bool, error) {
	var out []Record
	var next RID
	more := false

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := classIdxPrefix(spec.Class)
		if spec.Class == "" {
			prefix = []byte{prefixVertex}
		}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rid := RID(strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
			if cursor != "" && rid <= cursor {
				continue
			}
			vItem, err := txn.Get(vertexKey(rid))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var rec Record
			if err := vItem.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			if spec.ExcludeDeleted && rec.Deleted() {
				continue
			}
			out = append(out, rec)
			if len(out) >= limit {
				next = rid
				more = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", false, graphkberr.Wrap(graphkberr.KindConnection, "badgerengine.Select", "scanning class index", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rid() < out[j].Rid() })
	return out, next, more, nil
}

// Traverse mirrors MemEngine's BFS, reading adjacency through the out/in
// index prefixes instead of in-process maps.
func (b *BadgerEngine) Traverse(ctx context.Context, spec TraverseSpec) (map[RID]Record, error) {
	edgeSet := map[string]bool{}
	for _, c := range spec.EdgeClasses {
		edgeSet[c] = true
	}
	result := map[RID]Record{}

	err := b.db.View(func(txn *badger.Txn) error {
		type item struct {
			rid   RID
			depth int
		}
		visited := map[RID]bool{}
		queue := make([]item, 0, len(spec.Base))
		for _, r := range spec.Base {
			if !visited[r] {
				visited[r] = true
				queue = append(queue, item{r, 0})
				if vItem, err := txn.Get(vertexKey(r)); err == nil {
					var seed Record
					if err := vItem.Value(func(val []byte) error { return json.Unmarshal(val, &seed) }); err == nil && !seed.Deleted() {
						result[r] = seed
					}
				}
			}
		}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if spec.MaxDepth > 0 && cur.depth >= spec.MaxDepth {
				continue
			}
			edgeRIDs, err := b.adjacentEdges(txn, cur.rid, spec.Direction)
			if err != nil {
				return err
			}
			for _, eRID := range edgeRIDs {
				eItem, err := txn.Get(edgeKey(eRID))
				if err != nil {
					continue
				}
				var erec Record
				if err := eItem.Value(func(val []byte) error { return json.Unmarshal(val, &erec) }); err != nil {
					return err
				}
				if !edgeSet[erec.Class()] || erec.Deleted() {
					continue
				}
				other := otherEndpoint(erec, cur.rid)
				vItem, err := txn.Get(vertexKey(other))
				if err != nil {
					continue
				}
				var orec Record
				if err := vItem.Value(func(val []byte) error { return json.Unmarshal(val, &orec) }); err != nil {
					return err
				}
				if orec.Deleted() || (spec.VertexClass != "" && orec.Class() != spec.VertexClass) {
					continue
				}
				if spec.IncludeEdgeSelf {
					result[eRID] = erec
				}
				result[other] = orec
				if !visited[other] {
					visited[other] = true
					queue = append(queue, item{other, cur.depth + 1})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, graphkberr.Wrap(graphkberr.KindConnection, "badgerengine.Traverse", "walking adjacency", err)
	}
	return result, nil
}

func (b *BadgerEngine) adjacentEdges(txn *badger.Txn, rid RID, dir Direction) ([]RID, error) {
	var out []RID
	scan := func(prefix []byte) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			edgeRID := RID(strings.TrimPrefix(string(it.Item().Key()), string(prefix)))
			out = append(out, edgeRID)
		}
		return nil
	}
	if dir == DirOut || dir == DirBoth {
		if err := scan(outIdxPrefix(rid)); err != nil {
			return nil, err
		}
	}
	if dir == DirIn || dir == DirBoth {
		if err := scan(inIdxPrefix(rid)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *BadgerEngine) Close() error {
	b.closed = true
	return b.db.Close()
}
