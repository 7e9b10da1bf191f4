package compressor

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/dekarrin/rezi"
)

// OriginalTable is a dense row-major table of integers, such as an action table of a parser whose rows
// are states and whose columns are symbols.
type OriginalTable struct {
	entries  []int
	rowCount int
	colCount int
}

func NewOriginalTable(entries []int, colCount int) (*OriginalTable, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("entries is empty")
	}
	if colCount <= 0 {
		return nil, fmt.Errorf("colCount must be >=1")
	}
	if len(entries)%colCount != 0 {
		return nil, fmt.Errorf("entries length or column count are incorrect; entries length: %v, column count: %v", len(entries), colCount)
	}

	return &OriginalTable{
		entries:  entries,
		rowCount: len(entries) / colCount,
		colCount: colCount,
	}, nil
}

type Compressor interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	Compress(orig *OriginalTable) error
	Lookup(row, col int) (int, error)
	OriginalTableSize() (int, int)

	// Size returns the count of integers the compressed table holds.
	Size() int
}

var (
	_ Compressor = &UniqueEntriesTable{}
	_ Compressor = &RowDisplacementTable{}
)

const (
	KindUniqueEntries   = "unique-entries"
	KindRowDisplacement = "row-displacement"
)

// Compact compresses `orig` with every compressor and returns the smallest result together with its kind.
func Compact(orig *OriginalTable, emptyValue int) (Compressor, string, error) {
	candidates := []struct {
		kind string
		comp Compressor
	}{
		{KindRowDisplacement, NewRowDisplacementTable(emptyValue)},
		{KindUniqueEntries, NewUniqueEntriesTable()},
	}
	var best Compressor
	var bestKind string
	for _, c := range candidates {
		err := c.comp.Compress(orig)
		if err != nil {
			return nil, "", err
		}
		if best == nil || c.comp.Size() < best.Size() {
			best = c.comp
			bestKind = c.kind
		}
	}
	return best, bestKind, nil
}

// New returns an empty compressor of `kind`, typically to unmarshal a table into.
func New(kind string) (Compressor, error) {
	switch kind {
	case KindUniqueEntries:
		return NewUniqueEntriesTable(), nil
	case KindRowDisplacement:
		return NewRowDisplacementTable(0), nil
	}
	return nil, fmt.Errorf("unknown compressor kind: %v", kind)
}

type UniqueEntriesTable struct {
	UniqueEntries    []int
	RowNums          []int
	OriginalRowCount int
	OriginalColCount int
}

func NewUniqueEntriesTable() *UniqueEntriesTable {
	return &UniqueEntriesTable{}
}

func (tab *UniqueEntriesTable) Lookup(row, col int) (int, error) {
	if row < 0 || row >= tab.OriginalRowCount || col < 0 || col >= tab.OriginalColCount {
		return 0, fmt.Errorf("indexes are out of range: [%v, %v]", row, col)
	}
	return tab.UniqueEntries[tab.RowNums[row]*tab.OriginalColCount+col], nil
}

func (tab *UniqueEntriesTable) OriginalTableSize() (int, int) {
	return tab.OriginalRowCount, tab.OriginalColCount
}

func (tab *UniqueEntriesTable) Size() int {
	return len(tab.UniqueEntries) + len(tab.RowNums)
}

func (tab *UniqueEntriesTable) Compress(orig *OriginalTable) error {
	var uniqueEntries []int
	rowNums := make([]int, orig.rowCount)
	hash2RowNum := map[string]int{}
	nextRowNum := 0
	for row := 0; row < orig.rowCount; row++ {
		start := row * orig.colCount
		rowHash := hashRow(orig.entries[start : start+orig.colCount])
		rowNum, ok := hash2RowNum[rowHash]
		if !ok {
			rowNum = nextRowNum
			nextRowNum++
			hash2RowNum[rowHash] = rowNum
			uniqueEntries = append(uniqueEntries, orig.entries[start:start+orig.colCount]...)
		}
		rowNums[row] = rowNum
	}

	tab.UniqueEntries = uniqueEntries
	tab.RowNums = rowNums
	tab.OriginalRowCount = orig.rowCount
	tab.OriginalColCount = orig.colCount

	return nil
}

// hashRow encodes a row as signed varints. Entries may be negative.
func hashRow(row []int) string {
	buf := make([]byte, 0, len(row)*2)
	b := make([]byte, binary.MaxVarintLen64)
	for _, v := range row {
		n := binary.PutVarint(b, int64(v))
		buf = append(buf, b[:n]...)
	}
	return string(buf)
}

func (tab *UniqueEntriesTable) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, rezi.EncInt(tab.OriginalRowCount)...)
	data = append(data, rezi.EncInt(tab.OriginalColCount)...)
	data = append(data, encInts(tab.UniqueEntries)...)
	data = append(data, encInts(tab.RowNums)...)
	return data, nil
}

func (tab *UniqueEntriesTable) UnmarshalBinary(data []byte) error {
	var err error
	var n int

	tab.OriginalRowCount, n, err = rezi.DecInt(data)
	if err != nil {
		return fmt.Errorf("original row count: %w", err)
	}
	data = data[n:]

	tab.OriginalColCount, n, err = rezi.DecInt(data)
	if err != nil {
		return fmt.Errorf("original column count: %w", err)
	}
	data = data[n:]

	tab.UniqueEntries, n, err = decInts(data)
	if err != nil {
		return fmt.Errorf("unique entries: %w", err)
	}
	data = data[n:]

	tab.RowNums, _, err = decInts(data)
	if err != nil {
		return fmt.Errorf("row numbers: %w", err)
	}
	if len(tab.RowNums) != tab.OriginalRowCount {
		return fmt.Errorf("row numbers are inconsistent with the row count: %v != %v", len(tab.RowNums), tab.OriginalRowCount)
	}
	for _, rowNum := range tab.RowNums {
		if (rowNum+1)*tab.OriginalColCount > len(tab.UniqueEntries) {
			return fmt.Errorf("row number is out of range: %v", rowNum)
		}
	}
	return nil
}

const ForbiddenValue = -1

type RowDisplacementTable struct {
	OriginalRowCount int
	OriginalColCount int
	EmptyValue       int
	Entries          []int
	Bounds           []int
	RowDisplacement  []int
}

func NewRowDisplacementTable(emptyValue int) *RowDisplacementTable {
	return &RowDisplacementTable{
		EmptyValue: emptyValue,
	}
}

func (tab *RowDisplacementTable) Lookup(row int, col int) (int, error) {
	if row < 0 || row >= tab.OriginalRowCount || col < 0 || col >= tab.OriginalColCount {
		return tab.EmptyValue, fmt.Errorf("indexes are out of range: [%v, %v]", row, col)
	}
	d := tab.RowDisplacement[row]
	if d+col >= len(tab.Bounds) || tab.Bounds[d+col] != row {
		return tab.EmptyValue, nil
	}
	return tab.Entries[d+col], nil
}

func (tab *RowDisplacementTable) OriginalTableSize() (int, int) {
	return tab.OriginalRowCount, tab.OriginalColCount
}

func (tab *RowDisplacementTable) Size() int {
	return len(tab.Entries) + len(tab.Bounds) + len(tab.RowDisplacement)
}

type rowInfo struct {
	rowNum        int
	nonEmptyCount int
	nonEmptyCol   []int
}

// Compress places the densest rows first and slides every row to the first displacement where its
// non-empty entries don't collide with the rows already placed.
func (tab *RowDisplacementTable) Compress(orig *OriginalTable) error {
	rowInfo := make([]rowInfo, orig.rowCount)
	for row := 0; row < orig.rowCount; row++ {
		rowInfo[row].rowNum = row
		for col := 0; col < orig.colCount; col++ {
			if orig.entries[row*orig.colCount+col] == tab.EmptyValue {
				continue
			}
			rowInfo[row].nonEmptyCount++
			rowInfo[row].nonEmptyCol = append(rowInfo[row].nonEmptyCol, col)
		}
	}
	sort.SliceStable(rowInfo, func(i int, j int) bool {
		return rowInfo[i].nonEmptyCount > rowInfo[j].nonEmptyCount
	})

	// A displacement never exceeds the count of entries placed so far, so this capacity is enough.
	capacity := len(orig.entries) + orig.colCount
	entries := make([]int, capacity)
	bounds := make([]int, capacity)
	for i := 0; i < capacity; i++ {
		entries[i] = tab.EmptyValue
		bounds[i] = ForbiddenValue
	}
	rowDisplacement := make([]int, orig.rowCount)
	resultBottom := orig.colCount
	nextRowDisplacement := 0
	for _, rInfo := range rowInfo {
		if rInfo.nonEmptyCount <= 0 {
			continue
		}

		d := nextRowDisplacement
		for overlapped(bounds, d, rInfo.nonEmptyCol) {
			d++
		}
		rowDisplacement[rInfo.rowNum] = d
		for _, col := range rInfo.nonEmptyCol {
			entries[d+col] = orig.entries[(rInfo.rowNum*orig.colCount)+col]
			bounds[d+col] = rInfo.rowNum
		}
		if d+orig.colCount > resultBottom {
			resultBottom = d + orig.colCount
		}
		nextRowDisplacement = d + 1
	}

	tab.OriginalRowCount = orig.rowCount
	tab.OriginalColCount = orig.colCount
	tab.Entries = entries[:resultBottom]
	tab.Bounds = bounds[:resultBottom]
	tab.RowDisplacement = rowDisplacement

	return nil
}

func overlapped(bounds []int, d int, cols []int) bool {
	for _, col := range cols {
		if bounds[d+col] != ForbiddenValue {
			return true
		}
	}
	return false
}

func (tab *RowDisplacementTable) MarshalBinary() ([]byte, error) {
	var data []byte
	data = append(data, rezi.EncInt(tab.OriginalRowCount)...)
	data = append(data, rezi.EncInt(tab.OriginalColCount)...)
	data = append(data, rezi.EncInt(tab.EmptyValue)...)
	data = append(data, encInts(tab.Entries)...)
	data = append(data, encInts(tab.Bounds)...)
	data = append(data, encInts(tab.RowDisplacement)...)
	return data, nil
}

func (tab *RowDisplacementTable) UnmarshalBinary(data []byte) error {
	var err error
	var n int

	tab.OriginalRowCount, n, err = rezi.DecInt(data)
	if err != nil {
		return fmt.Errorf("original row count: %w", err)
	}
	data = data[n:]

	tab.OriginalColCount, n, err = rezi.DecInt(data)
	if err != nil {
		return fmt.Errorf("original column count: %w", err)
	}
	data = data[n:]

	tab.EmptyValue, n, err = rezi.DecInt(data)
	if err != nil {
		return fmt.Errorf("empty value: %w", err)
	}
	data = data[n:]

	tab.Entries, n, err = decInts(data)
	if err != nil {
		return fmt.Errorf("entries: %w", err)
	}
	data = data[n:]

	tab.Bounds, n, err = decInts(data)
	if err != nil {
		return fmt.Errorf("bounds: %w", err)
	}
	data = data[n:]

	tab.RowDisplacement, _, err = decInts(data)
	if err != nil {
		return fmt.Errorf("row displacement: %w", err)
	}
	if len(tab.Entries) != len(tab.Bounds) {
		return fmt.Errorf("entries and bounds have different lengths: %v != %v", len(tab.Entries), len(tab.Bounds))
	}
	if len(tab.RowDisplacement) != tab.OriginalRowCount {
		return fmt.Errorf("row displacement is inconsistent with the row count: %v != %v", len(tab.RowDisplacement), tab.OriginalRowCount)
	}
	return nil
}

func encInts(vs []int) []byte {
	data := rezi.EncInt(len(vs))
	for _, v := range vs {
		data = append(data, rezi.EncInt(v)...)
	}
	return data
}

func decInts(data []byte) ([]int, int, error) {
	count, n, err := rezi.DecInt(data)
	if err != nil {
		return nil, 0, err
	}
	if count < 0 {
		return nil, 0, fmt.Errorf("negative count: %v", count)
	}
	total := n
	vs := make([]int, count)
	for i := 0; i < count; i++ {
		vs[i], n, err = rezi.DecInt(data[total:])
		if err != nil {
			return nil, 0, err
		}
		total += n
	}
	return vs, total, nil
}
