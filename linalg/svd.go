package linalg

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/unixpickle/dist-linalg/collcomm"
	"github.com/unixpickle/dist-linalg/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// A Method is an algorithm for computing a thin SVD.
type Method int

const (
	// MethodAuto picks a method based on the problem.
	MethodAuto Method = iota

	// MethodOfSnapshots eigendecomposes the Gram matrix
	// of the snapshots, which is small and replicated.
	MethodOfSnapshots
)

func (m Method) String() string {
	switch m {
	case MethodAuto:
		return "auto"
	case MethodOfSnapshots:
		return "method_of_snapshots"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// An UnsupportedMethodError indicates an unknown SVD
// method.
type UnsupportedMethodError struct {
	Name string
}

func (u *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported SVD method: %q", u.Name)
}

// ErrEigenFailed is returned when the eigendecomposition
// of the Gram matrix does not converge.
var ErrEigenFailed = errors.New("eigendecomposition of the Gram matrix failed")

// ParseMethod converts a method name ("auto" or
// "method_of_snapshots") into a Method.
func ParseMethod(name string) (Method, error) {
	for _, m := range []Method{MethodAuto, MethodOfSnapshots} {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, errors.WithStack(&UnsupportedMethodError{Name: name})
}

// ResolveMethod turns MethodAuto into a concrete method
// for a snapshot matrix with the given local row count,
// column count and group size.
//
// Currently every problem uses MethodOfSnapshots.
func ResolveMethod(m Method, localRows, cols, groupSize int) (Method, error) {
	switch m {
	case MethodAuto:
		return MethodOfSnapshots, nil
	case MethodOfSnapshots:
		return m, nil
	}
	return 0, errors.WithStack(&UnsupportedMethodError{Name: m.String()})
}

// SVD is the result of a thin SVD.
type SVD struct {
	// Modes holds the left singular vectors as columns.
	// It has the row distribution of the snapshots.
	Modes *tensor.Array

	// Values holds the singular values in descending
	// order. It is identical on every process.
	Values []float64
}

// Rank counts the singular values strictly above tol
// times the largest one.
//
// Round-off in the Gram matrix leaves spurious singular
// values near sqrt(eps) times the largest, so tol should
// sit well above 1.5e-8.
func (s *SVD) Rank(tol float64) int {
	if len(s.Values) == 0 || s.Values[0] == 0 {
		return 0
	}
	var rank int
	for _, x := range s.Values {
		if x > tol*s.Values[0] {
			rank++
		}
	}
	return rank
}

// SVDOptions configures ThinSVD.
type SVDOptions struct {
	Method Method

	// RankTolerance is the fraction of the largest
	// singular value at or below which a mode is treated
	// as numerically zero: its column in Modes is all
	// zeros rather than the result of dividing by a tiny
	// value.
	//
	// With the default of 0, only exactly-zero singular
	// values get zero modes.
	RankTolerance float64
}

// ThinSVD computes the thin SVD of a row-distributed
// snapshot matrix.
func ThinSVD(snapshots *tensor.Array, g collcomm.Group, method Method) (*SVD, error) {
	return SVDOptions{Method: method}.ThinSVD(snapshots, g)
}

// ThinSVD computes the thin SVD of a row-distributed
// snapshot matrix using the options.
func (s SVDOptions) ThinSVD(snapshots *tensor.Array, g collcomm.Group) (*SVD, error) {
	if snapshots == nil {
		return nil, errors.Wrap(tensor.ErrNilArray, "ThinSVD")
	}
	if snapshots.Rank() != 2 {
		return nil, errors.Wrap(&ShapeMismatchError{
			Msg: fmt.Sprintf("snapshots must be a matrix but have shape %v", snapshots.Shape()),
		}, "ThinSVD")
	}
	g = collcomm.Resolve(g)
	method, err := ResolveMethod(s.Method, snapshots.Dim(0), snapshots.Dim(1), g.Size())
	if err != nil {
		return nil, errors.Wrap(err, "ThinSVD")
	}
	switch method {
	case MethodOfSnapshots:
		return s.methodOfSnapshots(snapshots, g)
	}
	panic("unreachable")
}

func (s SVDOptions) methodOfSnapshots(snapshots *tensor.Array, g collcomm.Group) (*SVD, error) {
	rows, n := snapshots.Dim(0), snapshots.Dim(1)
	if n == 0 {
		return &SVD{Modes: tensor.Zeros(rows, 0), Values: []float64{}}, nil
	}

	gram := tensor.Zeros(n, n)
	if err := Product(blas.Trans, blas.NoTrans, 1, snapshots, snapshots, 0, gram, g); err != nil {
		return nil, errors.Wrap(err, "ThinSVD")
	}

	// Every process decomposes the same replicated matrix,
	// so the results agree without communication.
	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(n, gram.Data()), true) {
		return nil, errors.Wrap(ErrEigenFailed, "ThinSVD")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	sigma := eig.Values(nil)
	for i, lambda := range sigma {
		sigma[i] = math.Sqrt(math.Max(lambda, 0))
	}
	order := descendingOrder(sigma)
	cutoff := s.RankTolerance * floats.Max(sigma)

	// Column j of scaled is V[:, order[j]] / sigma[order[j]].
	scaled := mat.NewDense(n, n, nil)
	values := make([]float64, n)
	var dropped int
	for dst, src := range order {
		values[dst] = sigma[src]
		if sigma[src] == 0 || sigma[src] <= cutoff {
			dropped++
			continue
		}
		for i := 0; i < n; i++ {
			scaled.Set(i, dst, vecs.At(i, src)/sigma[src])
		}
	}
	if dropped > 0 {
		klog.V(1).Infof("ThinSVD: %d of %d modes are numerically zero", dropped, n)
	}

	modes := tensor.Zeros(rows, n)
	if rows > 0 {
		blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, general(snapshots), scaled.RawMatrix(), 0,
			general(modes))
	}
	return &SVD{Modes: modes, Values: values}, nil
}

// descendingOrder returns the indices that sort x in
// descending order, keeping ties in their original order.
func descendingOrder(x []float64) []int {
	neg := make([]float64, len(x))
	for i, v := range x {
		neg[i] = -v
	}
	order := make([]int, len(x))
	floats.ArgsortStable(neg, order)
	return order
}
