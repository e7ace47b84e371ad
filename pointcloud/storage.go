package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// PointAndData is a tiny struct to facilitate returning nearest neighbors in a neat way.
type PointAndData struct {
	P r3.Vector
	D Data
}

type storage interface {
	Size() int
	Set(v r3.Vector, d Data) error
	At(x, y, z float64) (Data, bool)
	Iterate(fn func(p r3.Vector, d Data) bool)
}

// matrixStorage keeps points in a slice, in insertion order, with a map from
// position to slice index for constant time lookups.
type matrixStorage struct {
	points   []PointAndData
	indexMap map[r3.Vector]uint
}

func (ms *matrixStorage) Size() int {
	return len(ms.points)
}

func (ms *matrixStorage) Set(v r3.Vector, d Data) error {
	if i, found := ms.indexMap[v]; found {
		ms.points[i].D = d
		return nil
	}
	if len(ms.points) >= int(^uint(0)>>1) {
		return errors.New("cannot add another point to the cloud, at maximum capacity")
	}
	ms.indexMap[v] = uint(len(ms.points))
	ms.points = append(ms.points, PointAndData{P: v, D: d})
	return nil
}

func (ms *matrixStorage) At(x, y, z float64) (Data, bool) {
	i, found := ms.indexMap[r3.Vector{X: x, Y: y, Z: z}]
	if !found {
		return nil, false
	}
	return ms.points[i].D, true
}

func (ms *matrixStorage) Iterate(fn func(p r3.Vector, d Data) bool) {
	for _, pd := range ms.points {
		if cont := fn(pd.P, pd.D); !cont {
			return
		}
	}
}
