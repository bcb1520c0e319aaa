package pglink

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dbbouncer/pglink/internal/codec"
	"github.com/dbbouncer/pglink/internal/pgconn"
)

// CommandTag is the parsed form of a CommandComplete tag, per §4.6:
// `"<COMMAND>( <oid>)?( <rows>)?"`, row_count is the last number if present.
type CommandTag struct {
	Command  string
	OID      int64
	RowCount int64
	HasRows  bool
}

var supportedCommands = map[string]bool{
	"INSERT": true, "DELETE": true, "UPDATE": true, "SELECT": true,
	"MOVE": true, "FETCH": true, "COPY": true,
}

// ParseCommandTag parses a CommandComplete tag string.
func ParseCommandTag(tag string) CommandTag {
	parts := strings.Fields(tag)
	if len(parts) == 0 {
		return CommandTag{}
	}
	ct := CommandTag{Command: parts[0]}
	if !supportedCommands[ct.Command] {
		return ct
	}
	nums := parts[1:]
	switch len(nums) {
	case 1:
		if n, err := strconv.ParseInt(nums[0], 10, 64); err == nil {
			ct.RowCount, ct.HasRows = n, true
		}
	case 2:
		if n, err := strconv.ParseInt(nums[0], 10, 64); err == nil {
			ct.OID = n
		}
		if n, err := strconv.ParseInt(nums[1], 10, 64); err == nil {
			ct.RowCount, ct.HasRows = n, true
		}
	}
	return ct
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ArrayResult materializes rows as positional []codec.Value slices, per
// §4.7's QueryArrayResult.insert_row.
type ArrayResult struct {
	Fields     []pgconn.FieldDescription
	Rows       [][]codec.Value
	CommandTag CommandTag
	Warnings   []pgconn.Notice
}

func materializeArray(reg *codec.Registry, res *pgconn.Result) (*ArrayResult, error) {
	out := &ArrayResult{
		Fields:     res.Fields,
		CommandTag: ParseCommandTag(res.CommandTag),
		Warnings:   res.Warnings,
	}
	for _, row := range res.Rows {
		values := make([]codec.Value, len(row))
		for i, raw := range row {
			oid := codec.OID(0)
			format := int16(0)
			if i < len(res.Fields) {
				oid = codec.OID(res.Fields[i].TypeOID)
				format = res.Fields[i].Format
			}
			v, err := reg.Decode(oid, raw, format)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		out.Rows = append(out.Rows, values)
	}
	return out, nil
}

// ObjectResult materializes rows as field-name-keyed maps, per §4.7's
// QueryObjectResult.insert_row: field names are resolved once, from an
// explicit fields list or the row description, optionally camelCased, and
// every subsequent row must match the first row's field count.
type ObjectResult struct {
	FieldNames []string
	Rows       []map[string]codec.Value
	CommandTag CommandTag
	Warnings   []pgconn.Notice
}

// ObjectOptions controls ObjectResult field-name resolution.
type ObjectOptions struct {
	Fields    []string
	CamelCase bool
}

func materializeObject(reg *codec.Registry, res *pgconn.Result, opts ObjectOptions) (*ObjectResult, error) {
	names, err := resolveFieldNames(res.Fields, opts)
	if err != nil {
		return nil, err
	}

	out := &ObjectResult{
		FieldNames: names,
		CommandTag: ParseCommandTag(res.CommandTag),
		Warnings:   res.Warnings,
	}
	for _, row := range res.Rows {
		if len(row) != len(names) {
			return nil, newQueryError(FieldCountMismatch, "row has %d columns, expected %d", len(row), len(names))
		}
		m := make(map[string]codec.Value, len(names))
		for i, raw := range row {
			oid := codec.OID(0)
			format := int16(0)
			if i < len(res.Fields) {
				oid = codec.OID(res.Fields[i].TypeOID)
				format = res.Fields[i].Format
			}
			v, err := reg.Decode(oid, raw, format)
			if err != nil {
				return nil, err
			}
			m[names[i]] = v
		}
		out.Rows = append(out.Rows, m)
	}
	return out, nil
}

func resolveFieldNames(fields []pgconn.FieldDescription, opts ObjectOptions) ([]string, error) {
	var names []string
	if len(opts.Fields) > 0 {
		for _, f := range opts.Fields {
			if !fieldNamePattern.MatchString(f) {
				return nil, newQueryError(InvalidFieldName, "invalid field name %q", f)
			}
			names = append(names, f)
		}
		if len(names) != len(fields) {
			return nil, newQueryError(FieldCountMismatch, "explicit fields has %d entries, row description has %d", len(names), len(fields))
		}
	} else {
		for _, f := range fields {
			names = append(names, f.Name)
		}
	}

	if opts.CamelCase {
		for i, n := range names {
			names[i] = snakeToCamel(n)
		}
	}

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if seen[key] {
			return nil, newQueryError(DuplicateField, "duplicate output field %q", n)
		}
		seen[key] = true
	}
	return names, nil
}

func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	var sb strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			sb.WriteString(p)
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(p[1:])
	}
	return sb.String()
}
