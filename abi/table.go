package abi

// Table is a SymbolSource over a fixed in-memory map. It backs tests and
// any embedding where entry points are known ahead of time.
type Table struct {
	symbols map[string]Symbol
	openErr error
	closed  bool
}

// NewTable returns a Table serving the given name-to-address map. The map
// is not copied; callers must not mutate it after the call.
func NewTable(symbols map[string]Symbol) *Table {
	return &Table{symbols: symbols}
}

// FailOpen makes Open return err, modeling a library that cannot be loaded.
func (t *Table) FailOpen(err error) *Table {
	t.openErr = err
	return t
}

func (t *Table) Open() error {
	return t.openErr
}

func (t *Table) Resolve(name string) (Symbol, bool) {
	if t.closed {
		return 0, false
	}
	sym, ok := t.symbols[name]
	return sym, ok
}

func (t *Table) Close() error {
	t.closed = true
	return nil
}
