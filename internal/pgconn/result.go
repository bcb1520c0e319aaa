package pgconn

// FieldDescription is one column of a RowDescription ('T') frame.
type FieldDescription struct {
	Name     string
	TableOID int32
	Column   int16
	TypeOID  uint32
	TypeSize int16
	TypeMod  int32
	Format   int16
}

// Row is one DataRow's raw column bytes; a nil element is SQL NULL.
type Row [][]byte

// Result is one statement's worth of raw, uninterpreted wire data — the
// root package's query layer (C7) materializes this into ArrayResult or
// ObjectResult via the codec registry.
type Result struct {
	Fields     []FieldDescription
	Rows       []Row
	CommandTag string
	Warnings   []Notice
}
