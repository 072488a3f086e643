package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"mit.edu/dsg/flowdb/common"
	"mit.edu/dsg/flowdb/storage"
)

// Catalog names the tables that scan and materialize operators read and write.
//
// Table metadata is serialized as a single JSON blob through a PersistenceProvider and survives restarts. A table
// either lives in a block file (Path is set) or in memory. Memory table contents are volatile: a reopened
// catalog knows their schema but starts them empty.
//
// A Catalog is safe for concurrent use by pipelines running in parallel.
type Catalog struct {
	catalogState

	provider PersistenceProvider
	mu       sync.RWMutex

	// In-memory structures for fast lookups
	tableMap  map[string]*Table   // TableName -> Table
	columnMap map[string][]*Table // ColumnName -> List of Tables containing this column
	data      *xsync.MapOf[common.ObjectID, *storage.MemTable]
}

// Column represents the basic unit of a table schema.
type Column struct {
	Name string      `json:"name"`
	Type common.Type `json:"type"`
}

// Table groups columns under a unique ObjectID.
type Table struct {
	Oid     common.ObjectID `json:"oid"`
	Name    string          `json:"name"`
	Columns []Column        `json:"columns"`
	// Path is the block file holding the table, or empty for memory tables.
	Path string `json:"path,omitempty"`
}

// Types returns the column types in order.
func (t *Table) Types() []common.Type {
	types := make([]common.Type, len(t.Columns))
	for i, c := range t.Columns {
		types[i] = c.Type
	}
	return types
}

// IsFile reports whether the table is backed by a block file.
func (t *Table) IsFile() bool {
	return t.Path != ""
}

func (t *Table) String() string {
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

// PersistenceProvider abstracts how the catalog is saved to and loaded from disk.
type PersistenceProvider interface {
	LoadCatalogState() (json string, err error)
	SaveCatalogState(json string) error
}

type catalogState struct {
	NextId uint32   `json:"next_id"`
	Tables []*Table `json:"tables"`
}

func (c *Catalog) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, _ := json.MarshalIndent(c.catalogState, "", "  ")
	return string(b)
}

func (c *Catalog) fromJSON(jsonData string) error {
	if err := json.Unmarshal([]byte(jsonData), &c.catalogState); err != nil {
		return err
	}
	for _, t := range c.Tables {
		c.index(t)
	}
	return nil
}

func (c *Catalog) index(t *Table) {
	c.tableMap[t.Name] = t
	for _, f := range t.Columns {
		c.columnMap[f.Name] = append(c.columnMap[f.Name], t)
	}
}

// NewCatalog initializes a catalog. It attempts to load existing state
// from the provider; if no state exists, it starts with an empty catalog.
func NewCatalog(provider PersistenceProvider) (*Catalog, error) {
	result := &Catalog{
		catalogState: catalogState{
			NextId: 0,
			Tables: make([]*Table, 0),
		},
		provider:  provider,
		tableMap:  make(map[string]*Table),
		columnMap: make(map[string][]*Table),
		data:      xsync.NewMapOf[common.ObjectID, *storage.MemTable](),
	}

	jsonData, err := provider.LoadCatalogState()
	if errors.Is(err, os.ErrNotExist) {
		// Start from scratch
		return result, nil
	}
	if err != nil {
		return nil, common.WrapError(common.ResourceFaultError, err, "failed to load catalog state")
	}

	if err = result.fromJSON(jsonData); err != nil {
		// Parsing errors are fatal system errors, usually indicating corruption
		return nil, common.WrapError(common.ResourceFaultError, err, "failed to parse catalog state")
	}

	return result, nil
}

// NewMemoryCatalog returns an empty catalog whose state is kept in memory only.
func NewMemoryCatalog() *Catalog {
	c, err := NewCatalog(&MemoryPersistence{})
	common.Assert(err == nil, "memory catalog failed to initialize: %v", err)
	return c
}

// AddTable registers a new memory table. It assigns a globally unique ObjectID to the table and persists the
// updated state. If a table with that name already exists, it returns DuplicateObjectError.
func (c *Catalog) AddTable(tableName string, columns []Column) (*Table, error) {
	return c.addTable(tableName, columns, "")
}

// AddFileTable registers a table stored in the block file at path. The file's column types must match columns;
// the file does not need to exist yet if it will be created before the table is scanned.
func (c *Catalog) AddFileTable(tableName string, columns []Column, path string) (*Table, error) {
	if path == "" {
		return nil, common.NewError(common.MalformedNodeError, "file table '%s' needs a path", tableName)
	}
	return c.addTable(tableName, columns, path)
}

func (c *Catalog) addTable(tableName string, columns []Column, path string) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tableMap[tableName]; exists {
		return nil, common.NewError(common.DuplicateObjectError, "table '%s' already exists", tableName)
	}
	for _, col := range columns {
		if !col.Type.IsValid() {
			return nil, common.NewError(common.MalformedNodeError, "column '%s' of table '%s' has invalid type %d",
				col.Name, tableName, col.Type)
		}
	}

	// oid 0 is reserved for INVALID
	c.NextId++

	t := &Table{
		Oid:     common.ObjectID(c.NextId),
		Name:    tableName,
		Columns: append([]Column(nil), columns...),
		Path:    path,
	}

	c.Tables = append(c.Tables, t)
	c.index(t)

	b, err := json.MarshalIndent(c.catalogState, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize catalog state")
	}
	if err := c.provider.SaveCatalogState(string(b)); err != nil {
		return nil, common.WrapError(common.ResourceFaultError, err, "failed to save catalog state")
	}
	return t, nil
}

// GetTableMetadata fetches the schema for a specific table name.
func (c *Catalog) GetTableMetadata(tableName string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	table, exists := c.tableMap[tableName]
	if !exists {
		return nil, common.NewError(common.NoSuchObjectError, "table '%s' does not exist", tableName)
	}
	return table, nil
}

// FindTablesWithColumnName returns all tables that contain a column with
// the given name.
func (c *Catalog) FindTablesWithColumnName(columnName string) []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Table(nil), c.columnMap[columnName]...)
}

// TableData returns the contents of a memory table, creating an empty one on first use.
func (c *Catalog) TableData(tableName string) (*storage.MemTable, error) {
	table, err := c.GetTableMetadata(tableName)
	if err != nil {
		return nil, err
	}
	if table.IsFile() {
		return nil, common.NewError(common.NoSuchObjectError, "table '%s' is stored in %s, not in memory", tableName, table.Path)
	}
	data, _ := c.data.LoadOrCompute(table.Oid, func() *storage.MemTable {
		return storage.NewMemTable(table.Types())
	})
	return data, nil
}

const CatalogFileName = "catalog.json"

type DiskCatalogManager struct {
	rootPath string
}

func NewDiskCatalogManager(rootPath string) *DiskCatalogManager {
	return &DiskCatalogManager{
		rootPath: rootPath,
	}
}

// LoadCatalogState implements the catalog.PersistenceProvider interface.
func (dcm *DiskCatalogManager) LoadCatalogState() (string, error) {
	path := filepath.Join(dcm.rootPath, CatalogFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err // Let the caller (Catalog) handle os.ErrNotExist
	}
	return string(content), nil
}

// SaveCatalogState implements the catalog.PersistenceProvider interface. The file is replaced atomically.
func (dcm *DiskCatalogManager) SaveCatalogState(jsonData string) error {
	tmpPath := filepath.Join(dcm.rootPath, CatalogFileName+".tmp")
	finalPath := filepath.Join(dcm.rootPath, CatalogFileName)

	if err := os.WriteFile(tmpPath, []byte(jsonData), 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, finalPath)
}

// MemoryPersistence keeps the catalog state in memory.
type MemoryPersistence struct {
	mu    sync.Mutex
	state string
	saved bool
}

// LoadCatalogState implements the catalog.PersistenceProvider interface.
func (m *MemoryPersistence) LoadCatalogState() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return "", os.ErrNotExist
	}
	return m.state, nil
}

// SaveCatalogState implements the catalog.PersistenceProvider interface.
func (m *MemoryPersistence) SaveCatalogState(jsonData string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state, m.saved = jsonData, true
	return nil
}
