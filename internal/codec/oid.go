package codec

// OID is a PostgreSQL type object identifier.
type OID uint32

// Well-known built-in type OIDs needed by the default decoder registry.
const (
	OIDBool             OID = 16
	OIDBytea            OID = 17
	OIDInt8             OID = 20
	OIDInt2             OID = 21
	OIDInt4             OID = 23
	OIDText             OID = 25
	OIDJSON             OID = 114
	OIDJSONArray        OID = 199
	OIDPoint            OID = 600
	OIDLseg             OID = 601
	OIDPath             OID = 602
	OIDBox              OID = 603
	OIDPolygon          OID = 604
	OIDLine             OID = 628
	OIDFloat4           OID = 700
	OIDFloat8           OID = 701
	OIDCircle           OID = 718
	OIDBoolArray        OID = 1000
	OIDByteaArray       OID = 1001
	OIDInt2Array        OID = 1005
	OIDInt4Array        OID = 1007
	OIDTextArray        OID = 1009
	OIDVarcharArray     OID = 1015
	OIDInt8Array        OID = 1016
	OIDFloat4Array      OID = 1021
	OIDFloat8Array      OID = 1022
	OIDBPChar           OID = 1042
	OIDVarchar          OID = 1043
	OIDDate             OID = 1082
	OIDTime             OID = 1083
	OIDTimestamp        OID = 1114
	OIDTimestampArray   OID = 1115
	OIDTimestampTZ      OID = 1184
	OIDTimestampTZArray OID = 1185
	OIDNumeric          OID = 1700
	OIDNumericArray     OID = 1231
	OIDUUID             OID = 2950
	OIDJSONB            OID = 3802
	OIDJSONBArray       OID = 3807
	OIDTID              OID = 27
)

// arrayElemOID maps an array type OID to its element OID for the shared
// array parser in array.go. Only the array OIDs listed here are parsed
// element by element (with a custom scalar decoder applied per element
// when one is registered for the element OID); an array OID missing from
// this map is decoded as plain Text, even when its element type has a
// custom decoder.
var arrayElemOID = map[OID]OID{
	OIDBoolArray:        OIDBool,
	OIDByteaArray:       OIDBytea,
	OIDInt2Array:        OIDInt2,
	OIDInt4Array:        OIDInt4,
	OIDInt8Array:        OIDInt8,
	OIDTextArray:        OIDText,
	OIDVarcharArray:     OIDVarchar,
	OIDFloat4Array:      OIDFloat4,
	OIDFloat8Array:      OIDFloat8,
	OIDTimestampArray:   OIDTimestamp,
	OIDTimestampTZArray: OIDTimestampTZ,
	OIDNumericArray:     OIDNumeric,
	OIDJSONArray:        OIDJSON,
	OIDJSONBArray:       OIDJSONB,
}
