package protocol

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Query, []byte("select 1\x00")); err != nil {
		t.Fatal(err)
	}
	fr := NewReader(&buf)
	frame, err := fr.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Kind != Query {
		t.Fatalf("kind = %q, want 'Q'", frame.Kind)
	}
	if string(frame.Body) != "select 1\x00" {
		t.Fatalf("body = %q", frame.Body)
	}
}

func TestParseFieldsMessage(t *testing.T) {
	body := []byte("SERROR\x00C42601\x00Msyntax error\x00\x00")
	fields := ParseFields(body)
	if fields[FieldSeverity] != "ERROR" {
		t.Errorf("severity = %q", fields[FieldSeverity])
	}
	if fields[FieldCode] != "42601" {
		t.Errorf("code = %q", fields[FieldCode])
	}
	if fields[FieldMessage] != "syntax error" {
		t.Errorf("message = %q", fields[FieldMessage])
	}
}
