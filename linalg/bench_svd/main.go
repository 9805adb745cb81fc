// Command bench_svd runs a distributed thin SVD of a random
// low-rank matrix on a simulated cluster and reports the
// virtual time, network traffic and reconstruction error.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/unixpickle/dist-linalg/collcomm"
	"github.com/unixpickle/dist-linalg/collcomm/allreduce"
	"github.com/unixpickle/dist-linalg/linalg"
	"github.com/unixpickle/dist-linalg/tensor"
	"gonum.org/v1/gonum/blas"
	"k8s.io/klog/v2"
)

type trialResult struct {
	Time     float64
	Traffic  float64
	RelError float64
	Values   []float64
}

func main() {
	var nodes, rows, cols, rank, trials int
	var latency, rate, tol float64
	var reducerName, methodName string
	var seed int64
	flag.IntVar(&nodes, "nodes", 4, "number of simulated ranks")
	flag.IntVar(&rows, "rows", 1000, "global number of snapshot rows")
	flag.IntVar(&cols, "cols", 16, "number of snapshots (columns)")
	flag.IntVar(&rank, "rank", 8, "rank of the generated matrix")
	flag.Float64Var(&latency, "latency", 1e-4, "network latency in seconds")
	flag.Float64Var(&rate, "rate", 1e9, "NIC rate in bytes per second (0 for a random network)")
	flag.StringVar(&reducerName, "reducer", "tree", "allreducer: naive, tree or stream")
	flag.StringVar(&methodName, "method", "auto", "SVD method")
	flag.Float64Var(&tol, "tol", 1e-6, "relative singular value cutoff for numerical rank")
	flag.IntVar(&trials, "trials", 5, "number of trials")
	flag.Int64Var(&seed, "seed", 1, "random seed")
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	reducer, err := parseReducer(reducerName)
	if err != nil {
		exitWithError(err)
	}
	method, err := linalg.ParseMethod(methodName)
	if err != nil {
		exitWithError(err)
	}
	if rows < 0 || cols < 0 || rank < 0 || trials < 1 || tol < 0 {
		exitWithError(errors.Errorf("invalid problem: rows=%d cols=%d rank=%d trials=%d tol=%g",
			rows, cols, rank, trials, tol))
	}
	opts := linalg.SVDOptions{Method: method, RankTolerance: tol}

	cluster := &allreduce.Cluster{
		NumNodes: nodes,
		Latency:  latency,
		Rate:     rate,
		Reducer:  reducer,
		Seed:     seed,
	}
	rng := rand.New(rand.NewSource(seed))
	bar := progressbar.NewOptions(trials,
		progressbar.OptionSetDescription("trials"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionClearOnFinish(),
	)

	var results []*trialResult
	for i := 0; i < trials; i++ {
		matrix := lowRankMatrix(rng, rows, cols, rank)
		res, err := runTrial(cluster, matrix, opts)
		if err != nil {
			exitWithError(errors.Wrapf(err, "trial %d", i))
		}
		klog.V(1).Infof("trial %d: time=%f traffic=%s error=%e", i, res.Time,
			humanize.Bytes(uint64(res.Traffic)), res.RelError)
		results = append(results, res)
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	printSummary(cluster, rows, cols, rank, reducerName, tol, results)
}

func parseReducer(name string) (allreduce.Allreducer, error) {
	switch name {
	case "naive":
		return allreduce.NaiveAllreducer{}, nil
	case "tree":
		return allreduce.TreeAllreducer{}, nil
	case "stream":
		return allreduce.StreamAllreducer{}, nil
	}
	return nil, errors.Errorf("unknown reducer: %q", name)
}

// lowRankMatrix generates the product of random rows x rank
// and rank x cols Gaussian matrices.
func lowRankMatrix(rng *rand.Rand, rows, cols, rank int) *tensor.Array {
	left := tensor.Zeros(rows, rank)
	right := tensor.Zeros(rank, cols)
	for _, a := range []*tensor.Array{left, right} {
		data := a.Data()
		for i := range data {
			data[i] = rng.NormFloat64()
		}
	}
	res := tensor.Zeros(rows, cols)
	if err := linalg.Product(blas.NoTrans, blas.NoTrans, 1, left, right, 0, res, nil); err != nil {
		panic(err)
	}
	return res
}

// runTrial partitions matrix across the cluster, computes
// its thin SVD, and measures how well the modes span the
// columns of the matrix.
func runTrial(cluster *allreduce.Cluster, matrix *tensor.Array,
	opts linalg.SVDOptions) (*trialResult, error) {
	parts := tensor.PartitionRows(matrix, cluster.NumNodes)
	traffic := make([]float64, cluster.NumNodes)
	errs := make([]error, cluster.NumNodes)
	res := &trialResult{}

	elapsed, err := cluster.Run(func(g *allreduce.Group) {
		local := parts[g.Rank()]
		svd, err := opts.ThinSVD(local, g)
		if err != nil {
			errs[g.Rank()] = err
			return
		}
		relErr, err := residual(g, local, svd.Modes)
		if err != nil {
			errs[g.Rank()] = err
			return
		}
		traffic[g.Rank()] = g.Comms.BytesSent()
		if g.Rank() == 0 {
			res.Values = svd.Values
			res.RelError = relErr
		}
	})
	if err != nil {
		return nil, err
	}
	for rank, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "rank %d", rank)
		}
	}
	res.Time = elapsed
	for _, x := range traffic {
		res.Traffic += x
	}
	return res, nil
}

// residual computes ||M - U Uᵗ M|| / ||M|| in the
// Frobenius norm for a row-distributed M and modes U.
func residual(g collcomm.Group, local, modes *tensor.Array) (float64, error) {
	n := local.Dim(1)
	proj := tensor.Zeros(modes.Dim(1), n)
	if err := linalg.Product(blas.Trans, blas.NoTrans, 1, modes, local, 0, proj, g); err != nil {
		return 0, err
	}
	recon := local.Clone()
	if err := linalg.Product(blas.NoTrans, blas.NoTrans, -1, modes, proj, 1, recon, g); err != nil {
		return 0, err
	}
	sums := []float64{
		tensor.SquaredDeviationsAll(recon, 0),
		tensor.SquaredDeviationsAll(local, 0),
	}
	sums = g.Allreduce(collcomm.OpSum, sums)
	if sums[1] == 0 {
		return 0, nil
	}
	return math.Sqrt(sums[0] / sums[1]), nil
}

func printSummary(cluster *allreduce.Cluster, rows, cols, rank int, reducerName string, tol float64,
	results []*trialResult) {
	var time, traffic, maxErr float64
	for _, r := range results {
		time += r.Time
		traffic += r.Traffic
		maxErr = math.Max(maxErr, r.RelError)
	}
	n := float64(len(results))
	fmt.Printf("matrix:       %s x %s (rank %d) on %d ranks\n", humanize.Comma(int64(rows)),
		humanize.Comma(int64(cols)), rank, cluster.NumNodes)
	fmt.Printf("reducer:      %s\n", reducerName)
	fmt.Printf("virtual time: %f s (mean of %d trials)\n", time/n, len(results))
	fmt.Printf("traffic:      %s per trial\n", humanize.Bytes(uint64(traffic/n)))
	fmt.Printf("max residual: %e\n", maxErr)

	last := &linalg.SVD{Values: results[len(results)-1].Values}
	if len(last.Values) > 0 {
		fmt.Printf("numerical rank (last trial): %d\n", last.Rank(tol))
	}
}

func exitWithError(err error) {
	klog.Errorf("%+v", err)
	klog.Flush()
	os.Exit(1)
}
