// Package codec implements value encoding for query arguments and value
// decoding for result columns, driven by a type-OID keyed registry (§4.5).
package codec

import (
	"errors"
	"math/big"
	"time"
)

// ErrUnsupportedBinaryFormat is returned when a column advertises
// format=1 (binary) and no binary decoder has been installed for its OID.
var ErrUnsupportedBinaryFormat = errors.New("codec: binary format not supported for this column (install a binary decoder)")

// Point is the decoded form of the PostgreSQL `point` type.
type Point struct{ X, Y float64 }

// Box is the decoded form of `box`: two opposite corners.
type Box struct{ High, Low Point }

// Circle is the decoded form of `circle`.
type Circle struct {
	Center Point
	Radius float64
}

// Line is the decoded form of `line`: Ax + By + C = 0.
type Line struct{ A, B, C float64 }

// LineSegment is the decoded form of `lseg`.
type LineSegment struct{ P1, P2 Point }

// Path is the decoded form of `path`: an ordered list of points, open or closed.
type Path struct {
	Closed bool
	Points []Point
}

// Polygon is the decoded form of `polygon`.
type Polygon struct{ Points []Point }

// TID is the decoded form of `tid`: (block, offset) as a 2-tuple of
// arbitrary-precision integers, per §4.5.
type TID [2]*big.Int

// Value is the sum type every decoder returns, per the Design Note in §9
// ("dynamic decoder map -> trait-object/function-pointer registry ...
// use a sum type for Value with variants covering numeric, text, byte
// sequence, temporal, structured, JSON, and array-of-Value"). Exactly one
// field is meaningful per Kind; callers switch on Kind.
type Value struct {
	Kind Kind

	Bool    bool
	Int     int64
	BigInt  *big.Int
	Float   float64
	Text    string // covers text-family and numeric-as-decimal-string
	Bytes   []byte
	Time    time.Time
	TimeInf int // 0 = not infinite, +1 = +Infinity, -1 = -Infinity
	JSON    []byte

	Point   Point
	Box     Box
	Circle  Circle
	Line    Line
	LSeg    LineSegment
	Path    Path
	Polygon Polygon
	TID     TID

	Array []Value
	Null  bool
}

// Kind discriminates which field of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindBigInt
	KindFloat
	KindText
	KindBytes
	KindTime
	KindJSON
	KindPoint
	KindBox
	KindCircle
	KindLine
	KindLSeg
	KindPath
	KindPolygon
	KindTID
	KindArray
)

// NullValue is the shared NULL sentinel.
var NullValue = Value{Kind: KindNull, Null: true}
