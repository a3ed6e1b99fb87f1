// pkg/format/columns.go
package format

import (
	"sort"

	"weft/internal/encoding"
)

// Column specs encode (id << 4) | deflate_bit(3) | column_type(0..2).
// Columns are written in ascending spec order (deflate bit masked);
// readers reject disorder.
type ColumnSpec uint64

const (
	colTypeGroupCard = 0
	colTypeActor     = 1
	colTypeIntRle    = 2
	colTypeDeltaInt  = 3
	colTypeBoolean   = 4
	colTypeStrRle    = 5
	colTypeValueLen  = 6
	colTypeValueRaw  = 7

	colDeflateBit = 1 << 3
)

// Op columns, shared by change and document chunks. The pred group appears
// only in change chunks and the succ group only in document chunks, so
// their specs coincide.
const (
	specObjActor  ColumnSpec = 0<<4 | colTypeActor    // 1
	specObjCtr    ColumnSpec = 0<<4 | colTypeIntRle   // 2
	specKeyActor  ColumnSpec = 1<<4 | colTypeActor    // 17
	specKeyCtr    ColumnSpec = 1<<4 | colTypeDeltaInt // 19
	specKeyStr    ColumnSpec = 1<<4 | colTypeStrRle   // 21
	specIDActor   ColumnSpec = 2<<4 | colTypeActor    // 33
	specIDCtr     ColumnSpec = 2<<4 | colTypeDeltaInt // 35
	specInsert    ColumnSpec = 3<<4 | colTypeBoolean  // 52
	specAction    ColumnSpec = 4<<4 | colTypeIntRle   // 66
	specValMeta   ColumnSpec = 5<<4 | colTypeValueLen // 86
	specValRaw    ColumnSpec = 5<<4 | colTypeValueRaw // 87
	specSuccNum   ColumnSpec = 7<<4 | colTypeGroupCard // 112
	specSuccActor ColumnSpec = 7<<4 | colTypeActor     // 113
	specSuccCtr   ColumnSpec = 7<<4 | colTypeDeltaInt  // 115
	specExpand    ColumnSpec = 9<<4 | colTypeBoolean  // 148
	specMarkName  ColumnSpec = 9<<4 | colTypeStrRle   // 149
)

// Change-metadata columns (document chunks only).
const (
	specChangeActor     ColumnSpec = 0<<4 | colTypeActor    // 1
	specChangeSeq       ColumnSpec = 0<<4 | colTypeDeltaInt // 3
	specChangeMaxOp     ColumnSpec = 1<<4 | colTypeDeltaInt // 19
	specChangeTime      ColumnSpec = 2<<4 | colTypeDeltaInt // 35
	specChangeMessage   ColumnSpec = 3<<4 | colTypeStrRle   // 53
	specChangeDepsNum   ColumnSpec = 4<<4 | colTypeGroupCard // 64
	specChangeDepsIndex ColumnSpec = 4<<4 | colTypeDeltaInt  // 67
	specChangeExtraMeta ColumnSpec = 5<<4 | colTypeValueLen // 86
	specChangeExtraRaw  ColumnSpec = 5<<4 | colTypeValueRaw // 87
)

// rawColumn pairs a spec with its encoded bytes.
type rawColumn struct {
	spec ColumnSpec
	data []byte
}

// prepareColumns drops empty columns, deflates large ones, and sorts by
// spec (deflate bit masked).
func prepareColumns(cols []rawColumn) []rawColumn {
	kept := make([]rawColumn, 0, len(cols))
	for _, c := range cols {
		if len(c.data) > 0 {
			if len(c.data) >= deflateMinSize {
				c = rawColumn{spec: c.spec | colDeflateBit, data: deflateBytes(c.data)}
			}
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].spec&^colDeflateBit < kept[j].spec&^colDeflateBit
	})
	return kept
}

// writeColumnMeta emits the layout table of prepared columns.
func writeColumnMeta(dst []byte, cols []rawColumn) []byte {
	dst = encoding.AppendUleb(dst, uint64(len(cols)))
	for _, c := range cols {
		dst = encoding.AppendUleb(dst, uint64(c.spec))
		dst = encoding.AppendUleb(dst, uint64(len(c.data)))
	}
	return dst
}

// writeColumnData emits the concatenated data of prepared columns.
func writeColumnData(dst []byte, cols []rawColumn) []byte {
	for _, c := range cols {
		dst = append(dst, c.data...)
	}
	return dst
}

// writeColumns emits a contiguous layout table plus data region (change
// chunks).
func writeColumns(dst []byte, cols []rawColumn) []byte {
	prepared := prepareColumns(cols)
	dst = writeColumnMeta(dst, prepared)
	return writeColumnData(dst, prepared)
}

// columnMeta is one row of a column layout table.
type columnMeta struct {
	spec   ColumnSpec
	length uint64
}

// readColumnMeta parses a column layout table, rejecting out-of-order
// specs, and returns the remaining input. The data region is bound later
// (document chunks place both layout tables before both data regions).
func readColumnMeta(buf []byte) ([]columnMeta, []byte, error) {
	count, n := encoding.Uleb(buf)
	if n == 0 {
		return nil, nil, ErrLebOverflow
	}
	buf = buf[n:]
	metas := make([]columnMeta, 0, count)
	var prev ColumnSpec
	for i := uint64(0); i < count; i++ {
		spec, n := encoding.Uleb(buf)
		if n == 0 {
			return nil, nil, ErrLebOverflow
		}
		buf = buf[n:]
		length, n := encoding.Uleb(buf)
		if n == 0 {
			return nil, nil, ErrLebOverflow
		}
		buf = buf[n:]
		normalized := ColumnSpec(spec) &^ colDeflateBit
		if i > 0 && normalized < prev {
			return nil, nil, ErrColumnsOutOfOrder
		}
		prev = normalized
		metas = append(metas, columnMeta{spec: ColumnSpec(spec), length: length})
	}
	return metas, buf, nil
}

// bindColumnData slices the data region according to metas, inflating
// deflated columns, and returns the columns keyed by (normalized) spec
// plus the remaining input.
func bindColumnData(metas []columnMeta, buf []byte) (map[ColumnSpec][]byte, []byte, error) {
	cols := make(map[ColumnSpec][]byte, len(metas))
	for _, m := range metas {
		if uint64(len(buf)) < m.length {
			return nil, nil, ErrLengthMismatch
		}
		data := buf[:m.length]
		buf = buf[m.length:]
		spec := m.spec
		if spec&colDeflateBit != 0 {
			inflated, err := inflateBytes(data)
			if err != nil {
				return nil, nil, err
			}
			data = inflated
			spec &^= colDeflateBit
		}
		cols[spec] = data
	}
	return cols, buf, nil
}

// readColumns parses a contiguous layout table plus data region (change
// chunks).
func readColumns(buf []byte) (map[ColumnSpec][]byte, []byte, error) {
	metas, rest, err := readColumnMeta(buf)
	if err != nil {
		return nil, nil, err
	}
	return bindColumnData(metas, rest)
}
