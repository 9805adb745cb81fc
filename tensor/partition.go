package tensor

import (
	"fmt"

	"github.com/pkg/errors"
)

// SplitRows splits a along axis 0 into consecutive pieces
// with the given numbers of rows.
//
// The pieces share no memory with a.
func SplitRows(a *Array, sizes []int) ([]*Array, error) {
	if a.Rank() == 0 {
		return nil, errors.WithStack(&ShapeError{Shape: a.Shape(), Msg: "cannot split a scalar"})
	}
	total := 0
	for _, s := range sizes {
		if s < 0 {
			return nil, errors.Errorf("negative partition size in %v", sizes)
		}
		total += s
	}
	if total != a.shape[0] {
		return nil, errors.Errorf("partition sizes %v do not add up to %d rows", sizes, a.shape[0])
	}
	rowSize := a.RowSize()
	res := make([]*Array, len(sizes))
	start := 0
	for i, s := range sizes {
		shape := a.Shape()
		shape[0] = s
		data := append([]float64{}, a.data[start*rowSize:(start+s)*rowSize]...)
		res[i] = Must(New(shape, data))
		start += s
	}
	return res, nil
}

// PartitionSizes returns the number of rows each of parts
// processes holds when rows are split as evenly as
// possible, with earlier processes holding extra rows.
func PartitionSizes(rows, parts int) []int {
	if parts < 1 {
		panic(fmt.Sprintf("invalid number of partitions: %d", parts))
	}
	sizes := make([]int, parts)
	for i := range sizes {
		sizes[i] = rows / parts
		if i < rows%parts {
			sizes[i]++
		}
	}
	return sizes
}

// PartitionRows splits a into parts pieces of nearly
// equal row counts.
func PartitionRows(a *Array, parts int) []*Array {
	res, err := SplitRows(a, PartitionSizes(a.shape[0], parts))
	if err != nil {
		panic(err)
	}
	return res
}

// ConcatRows joins arrays along axis 0.
func ConcatRows(parts ...*Array) (*Array, error) {
	if len(parts) == 0 {
		return nil, errors.New("no arrays to concatenate")
	}
	shape := parts[0].Shape()
	if len(shape) == 0 {
		return nil, errors.WithStack(&ShapeError{Shape: shape, Msg: "cannot concatenate scalars"})
	}
	var data []float64
	rows := 0
	for _, p := range parts {
		if p.Rank() != len(shape) {
			return nil, errors.WithStack(&ShapeError{Shape: p.Shape(),
				Msg: fmt.Sprintf("rank differs from %v", shape)})
		}
		for i, d := range p.shape[1:] {
			if d != shape[i+1] {
				return nil, errors.WithStack(&ShapeError{Shape: p.Shape(),
					Msg: fmt.Sprintf("trailing dimensions differ from %v", shape)})
			}
		}
		rows += p.shape[0]
		data = append(data, p.data...)
	}
	shape[0] = rows
	if data == nil {
		data = []float64{}
	}
	return New(shape, data)
}
