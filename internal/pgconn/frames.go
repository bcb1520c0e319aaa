package pgconn

import (
	"github.com/dbbouncer/pglink/internal/buffer"
)

func parseRowDescription(body []byte) ([]FieldDescription, error) {
	r := buffer.NewReader(body)
	count, err := r.Int16()
	if err != nil {
		return nil, err
	}
	fields := make([]FieldDescription, count)
	for i := range fields {
		name, err := r.CString()
		if err != nil {
			return nil, err
		}
		tableOID, err := r.Int32()
		if err != nil {
			return nil, err
		}
		column, err := r.Int16()
		if err != nil {
			return nil, err
		}
		typeOID, err := r.Int32()
		if err != nil {
			return nil, err
		}
		typeSize, err := r.Int16()
		if err != nil {
			return nil, err
		}
		typeMod, err := r.Int32()
		if err != nil {
			return nil, err
		}
		format, err := r.Int16()
		if err != nil {
			return nil, err
		}
		fields[i] = FieldDescription{
			Name: name, TableOID: tableOID, Column: column,
			TypeOID: uint32(typeOID), TypeSize: typeSize, TypeMod: typeMod, Format: format,
		}
	}
	return fields, nil
}

func parseDataRow(body []byte) (Row, error) {
	r := buffer.NewReader(body)
	count, err := r.Int16()
	if err != nil {
		return nil, err
	}
	row := make(Row, count)
	for i := range row {
		length, err := r.Int32()
		if err != nil {
			return nil, err
		}
		if length < 0 {
			row[i] = nil
			continue
		}
		b, err := r.Bytes(int(length))
		if err != nil {
			return nil, err
		}
		row[i] = append([]byte(nil), b...)
	}
	return row, nil
}
