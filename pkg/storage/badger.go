package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixNode          = byte(0x01) // nodes:nodeID -> Node
	prefixEdge          = byte(0x02) // edges:edgeID -> Edge
	prefixOutgoingIndex = byte(0x04) // outgoing:nodeID:edgeID -> []byte{}
	prefixIncomingIndex = byte(0x05) // incoming:nodeID:edgeID -> []byte{}
	prefixPropertyKey   = byte(0x08) // propkey:name -> uint64 token
)

func init() {
	// Property maps are map[string]any; gob needs the composite value
	// types registered to round-trip lists and maps.
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// BadgerEngine provides persistent storage using BadgerDB.
//
// Key Structure:
//   - Nodes: 0x01 + nodeID -> gob(Node)
//   - Edges: 0x02 + edgeID -> gob(Edge)
//   - Outgoing Index: 0x04 + nodeID + 0x00 + edgeID -> empty
//   - Incoming Index: 0x05 + nodeID + 0x00 + edgeID -> empty
//   - Property keys: 0x08 + name -> big-endian token
//
// Property key tokens are loaded into memory on open and persisted as they
// are allocated, so a token is stable across restarts.
type BadgerEngine struct {
	db       *badger.DB
	mu       sync.RWMutex
	closed   bool
	inMemory bool
	keys     *PropertyKeys
	logger   log.Logger

	// Cached counts for O(1) stats lookups (updated on create/delete)
	nodeCount atomic.Int64
	edgeCount atomic.Int64
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool

	// LowMemory reduces memtable and cache sizes.
	LowMemory bool

	// Logger receives engine lifecycle messages. BadgerDB's own logger is
	// always silenced.
	Logger log.Logger
}

// NewBadgerEngine creates a new persistent storage engine with default settings.
//
// Example:
//
//	engine, err := storage.NewBadgerEngine("./data/graph")
//	if err != nil {
//		return fmt.Errorf("failed to open database: %w", err)
//	}
//	defer engine.Close()
func NewBadgerEngine(dataDir string) (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		DataDir: dataDir,
	})
}

// NewBadgerEngineWithOptions creates a BadgerEngine with custom configuration.
func NewBadgerEngineWithOptions(opts BadgerOptions) (*BadgerEngine, error) {
	if !opts.InMemory && opts.DataDir == "" {
		return nil, fmt.Errorf("badger data dir: %w", ErrInvalidData)
	}

	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	// Use a quiet logger
	badgerOpts = badgerOpts.WithLogger(nil)

	if opts.LowMemory {
		badgerOpts = badgerOpts.
			WithMemTableSize(8 << 20).      // 8MB memtable
			WithValueLogFileSize(32 << 20). // 32MB value log
			WithNumMemtables(1).
			WithNumLevelZeroTables(1).
			WithNumLevelZeroTablesStall(2).
			WithBlockCacheSize(8 << 20).
			WithIndexCacheSize(4 << 20)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	engine := &BadgerEngine{
		db:       db,
		inMemory: opts.InMemory,
		keys:     NewPropertyKeys(),
		logger:   log.With(logger, "component", "badger"),
	}
	engine.keys.onCreate = engine.persistPropertyKey

	if err := engine.loadPropertyKeys(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load property keys: %w", err)
	}
	if err := engine.initializeCounts(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize counts: %w", err)
	}

	level.Debug(engine.logger).Log(
		"msg", "opened storage",
		"dir", opts.DataDir,
		"in_memory", opts.InMemory,
		"nodes", engine.nodeCount.Load(),
		"edges", engine.edgeCount.Load(),
		"property_keys", engine.keys.Len(),
	)
	return engine, nil
}

// NewBadgerEngineInMemory creates an in-memory BadgerDB for testing.
func NewBadgerEngineInMemory() (*BadgerEngine, error) {
	return NewBadgerEngineWithOptions(BadgerOptions{
		InMemory: true,
	})
}

// IsInMemory returns true if the engine is running in memory-only mode.
func (b *BadgerEngine) IsInMemory() bool {
	return b.inMemory
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, []byte(id)...)
}

func adjacencyKey(prefix byte, nodeID NodeID, edgeID EdgeID) []byte {
	key := make([]byte, 0, 2+len(nodeID)+len(edgeID))
	key = append(key, prefix)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	key = append(key, []byte(edgeID)...)
	return key
}

func adjacencyPrefix(prefix byte, nodeID NodeID) []byte {
	key := make([]byte, 0, 2+len(nodeID))
	key = append(key, prefix)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	return key
}

func propertyKeyKey(name string) []byte {
	return append([]byte{prefixPropertyKey}, []byte(name)...)
}

// ============================================================================
// Serialization helpers
// ============================================================================

// encodeNode serializes a Node using gob (preserves Go types like int64).
func encodeNode(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeNode(data []byte) (*Node, error) {
	var node Node
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&node); err != nil {
		return nil, err
	}
	return &node, nil
}

func encodeEdge(e *Edge) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEdge(data []byte) (*Edge, error) {
	var edge Edge
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&edge); err != nil {
		return nil, err
	}
	return &edge, nil
}

// ============================================================================
// Startup
// ============================================================================

func (b *BadgerEngine) loadPropertyKeys() error {
	type entry struct {
		name string
		id   int
	}
	var entries []entry

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixPropertyKey}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := string(item.Key()[1:])
			err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("property key %q: %w", name, ErrInvalidData)
				}
				entries = append(entries, entry{name: name, id: int(binary.BigEndian.Uint64(val))})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	for _, e := range entries {
		if err := b.keys.restore(e.name, e.id); err != nil {
			return err
		}
	}
	return nil
}

func (b *BadgerEngine) initializeCounts() error {
	count := func(prefix byte) (int64, error) {
		var n int64
		err := b.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte{prefix}
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				n++
			}
			return nil
		})
		return n, err
	}

	nodes, err := count(prefixNode)
	if err != nil {
		return err
	}
	edges, err := count(prefixEdge)
	if err != nil {
		return err
	}
	b.nodeCount.Store(nodes)
	b.edgeCount.Store(edges)
	return nil
}

func (b *BadgerEngine) persistPropertyKey(name string, id int) error {
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], uint64(id))
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(propertyKeyKey(name), val[:])
	})
}

func (b *BadgerEngine) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// ============================================================================
// Node Operations
// ============================================================================

// CreateNode creates a new node in persistent storage.
func (b *BadgerEngine) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		key := nodeKey(node.ID)
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := encodeNode(node)
		if err != nil {
			return fmt.Errorf("failed to encode node: %w", err)
		}
		return txn.Set(key, data)
	})
	if err == nil {
		b.nodeCount.Add(1)
	}
	return err
}

// GetNode retrieves a node by ID.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var node *Node
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getNodeInTxn(txn, id)
		return err
	})
	return node, err
}

func getNodeInTxn(txn *badger.Txn, id NodeID) (*Node, error) {
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var node *Node
	err = item.Value(func(val []byte) error {
		var decodeErr error
		node, decodeErr = decodeNode(val)
		return decodeErr
	})
	return node, err
}

// UpdateNode replaces an existing node.
func (b *BadgerEngine) UpdateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := getNodeInTxn(txn, node.ID); err != nil {
			return err
		}
		data, err := encodeNode(node)
		if err != nil {
			return fmt.Errorf("failed to encode node: %w", err)
		}
		return txn.Set(nodeKey(node.ID), data)
	})
}

// DeleteNode removes a node and every edge attached to it.
func (b *BadgerEngine) DeleteNode(id NodeID) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	var edgesDeleted int64
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := getNodeInTxn(txn, id); err != nil {
			return err
		}

		for _, prefix := range []byte{prefixOutgoingIndex, prefixIncomingIndex} {
			edgeIDs, err := collectAdjacent(txn, adjacencyPrefix(prefix, id))
			if err != nil {
				return err
			}
			for _, edgeID := range edgeIDs {
				deleted, err := deleteEdgeInTxn(txn, edgeID)
				if err != nil {
					return err
				}
				if deleted {
					edgesDeleted++
				}
			}
		}

		return txn.Delete(nodeKey(id))
	})
	if err == nil {
		b.nodeCount.Add(-1)
		b.edgeCount.Add(-edgesDeleted)
	}
	return err
}

func collectAdjacent(txn *badger.Txn, prefix []byte) ([]EdgeID, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []EdgeID
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		ids = append(ids, EdgeID(key[len(prefix):]))
	}
	return ids, nil
}

// ============================================================================
// Edge Operations
// ============================================================================

// CreateEdge creates a new edge. Both endpoints must exist.
func (b *BadgerEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		key := edgeKey(edge.ID)
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if _, err := getNodeInTxn(txn, edge.StartNode); err != nil {
			return err
		}
		if _, err := getNodeInTxn(txn, edge.EndNode); err != nil {
			return err
		}

		data, err := encodeEdge(edge)
		if err != nil {
			return fmt.Errorf("failed to encode edge: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(adjacencyKey(prefixOutgoingIndex, edge.StartNode, edge.ID), []byte{}); err != nil {
			return err
		}
		return txn.Set(adjacencyKey(prefixIncomingIndex, edge.EndNode, edge.ID), []byte{})
	})
	if err == nil {
		b.edgeCount.Add(1)
	}
	return err
}

// GetEdge retrieves an edge by ID.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edge *Edge
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		edge, err = getEdgeInTxn(txn, id)
		return err
	})
	return edge, err
}

func getEdgeInTxn(txn *badger.Txn, id EdgeID) (*Edge, error) {
	item, err := txn.Get(edgeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var edge *Edge
	err = item.Value(func(val []byte) error {
		var decodeErr error
		edge, decodeErr = decodeEdge(val)
		return decodeErr
	})
	return edge, err
}

// DeleteEdge removes an edge.
func (b *BadgerEngine) DeleteEdge(id EdgeID) error {
	if id == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		deleted, err := deleteEdgeInTxn(txn, id)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNotFound
		}
		return nil
	})
	if err == nil {
		b.edgeCount.Add(-1)
	}
	return err
}

func deleteEdgeInTxn(txn *badger.Txn, id EdgeID) (bool, error) {
	edge, err := getEdgeInTxn(txn, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, key := range [][]byte{
		adjacencyKey(prefixOutgoingIndex, edge.StartNode, id),
		adjacencyKey(prefixIncomingIndex, edge.EndNode, id),
		edgeKey(id),
	} {
		if err := txn.Delete(key); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ============================================================================
// Property read path
// ============================================================================

// ResolvePropertyKey returns the token for a property name, persisting a new
// token if needed.
func (b *BadgerEngine) ResolvePropertyKey(name string) (int, error) {
	if err := b.checkOpen(); err != nil {
		return NoSuchPropertyKey, err
	}
	return b.keys.Resolve(name)
}

// LookupPropertyKey returns the token for name without allocating.
func (b *BadgerEngine) LookupPropertyKey(name string) (int, bool) {
	return b.keys.Lookup(name)
}

// PropertyKeyName returns the name registered for a token.
func (b *BadgerEngine) PropertyKeyName(key int) (string, error) {
	return b.keys.Name(key)
}

// NodeProperty reads a node property by token.
func (b *BadgerEngine) NodeProperty(id NodeID, key int) (any, bool, error) {
	node, err := b.GetNode(id)
	if err != nil {
		return nil, false, err
	}
	return readProperty(b.keys, node.Properties, key)
}

// RelationshipProperty reads an edge property by token.
func (b *BadgerEngine) RelationshipProperty(id EdgeID, key int) (any, bool, error) {
	edge, err := b.GetEdge(id)
	if err != nil {
		return nil, false, err
	}
	return readProperty(b.keys, edge.Properties, key)
}

// ============================================================================
// Stats and lifecycle
// ============================================================================

// NodeCount returns the number of nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return b.nodeCount.Load(), nil
}

// EdgeCount returns the number of edges.
func (b *BadgerEngine) EdgeCount() (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return b.edgeCount.Load(), nil
}

// Close closes the underlying database. Closing twice is a no-op.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	level.Debug(b.logger).Log("msg", "closing storage")
	return b.db.Close()
}

// Verify BadgerEngine implements Engine interface
var _ Engine = (*BadgerEngine)(nil)
