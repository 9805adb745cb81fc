package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/unixpickle/dist-linalg/collcomm"
	"github.com/unixpickle/dist-linalg/collcomm/allreduce"
	"github.com/unixpickle/dist-linalg/simulator"
	"k8s.io/klog/v2"
)

func main() {
	reducers := []allreduce.Allreducer{
		allreduce.NaiveAllreducer{},
		allreduce.TreeAllreducer{},
		allreduce.StreamAllreducer{},
	}
	reducerNames := []string{"Naive", "Tree", "Stream"}
	runs := []allreduce.Cluster{
		{
			NumNodes: 2,
			Latency:  0.1,
			Rate:     1e6,
		},
		{
			NumNodes: 16,
			Latency:  1e-3,
			Rate:     1e6,
		},
		{
			NumNodes: 32,
			Latency:  0.1,
			Rate:     1e6,
		},
		{
			NumNodes: 32,
			Latency:  0.1,
			Rate:     1e9,
		},
		{
			NumNodes: 32,
			Latency:  1e-4,
			Rate:     1e9,
		},
	}
	vecSizes := []int{10, 10000, 10000000}

	// Markdown table header.
	fmt.Print("| Nodes | Latency | NIC rate | Size ")
	for _, reducerName := range reducerNames {
		fmt.Printf("| %s ", reducerName)
	}
	fmt.Println("|")
	for i := 0; i < 4+len(reducers); i++ {
		fmt.Print("|:--")
	}
	fmt.Println("|")

	// Markdown table body.
	for _, run := range runs {
		for _, size := range vecSizes {
			fmt.Printf(
				"| %d | %s | %s | %s ",
				run.NumNodes,
				strconv.FormatFloat(run.Latency, 'f', -1, 64),
				strconv.FormatFloat(run.Rate, 'E', -1, 64),
				humanize.Comma(int64(size)),
			)
			for _, reducer := range reducers {
				run.Reducer = reducer
				elapsed, traffic := timeFakeReduce(run, size)
				fmt.Printf("| %f (%s) ", elapsed, humanize.Bytes(uint64(traffic)))
			}
			fmt.Println("|")
		}
	}

	fmt.Println()
	operatorTable(reducers, reducerNames)
}

// timeFakeReduce runs a single allreduce of the given size
// and returns the virtual time and total bytes sent.
func timeFakeReduce(run allreduce.Cluster, size int) (float64, float64) {
	traffic := make([]float64, run.NumNodes)
	elapsed, err := run.Run(func(g *allreduce.Group) {
		g.Comms.Begin()
		run.Reducer.Allreduce(g.Comms, make([]float64, size), FakeReduce)
		traffic[g.Rank()] = g.Comms.BytesSent()
	})
	if err != nil {
		klog.Fatalf("%d nodes, size %d: %+v", run.NumNodes, size, err)
	}
	var total float64
	for _, x := range traffic {
		total += x
	}
	return elapsed, total
}

// operatorTable times every reduction operator on a fixed
// network with real reduction functions, verifying every
// result against a local reduction.
func operatorTable(reducers []allreduce.Allreducer, reducerNames []string) {
	const size = 10000
	run := allreduce.Cluster{NumNodes: 16, Latency: 1e-3, Rate: 1e9}

	fmt.Print("| Operator ")
	for _, reducerName := range reducerNames {
		fmt.Printf("| %s ", reducerName)
	}
	fmt.Println("|")
	for i := 0; i < 1+len(reducers); i++ {
		fmt.Print("|:--")
	}
	fmt.Println("|")

	inputs := make([][]float64, run.NumNodes)
	for i := range inputs {
		inputs[i] = make([]float64, size)
		for j := range inputs[i] {
			inputs[i][j] = float64((i*31 + j*17) % 101)
		}
	}

	for _, op := range []collcomm.Op{collcomm.OpSum, collcomm.OpMax, collcomm.OpMin} {
		expected := op.ReduceFn()(nil, inputs...)
		fmt.Printf("| %s ", op)
		for _, reducer := range reducers {
			run.Reducer = reducer
			elapsed, err := run.Run(func(g *allreduce.Group) {
				res := g.Allreduce(op, inputs[g.Rank()])
				for i, x := range res {
					if x != expected[i] {
						klog.Fatalf("%s: rank %d got %f at %d but expected %f", op, g.Rank(), x, i,
							expected[i])
					}
				}
			})
			if err != nil {
				klog.Fatalf("%s: %+v", op, err)
			}
			fmt.Printf("| %f ", elapsed)
		}
		fmt.Println("|")
	}
}

// FakeReduce is a ReduceFn that takes no actual CPU time.
func FakeReduce(h *simulator.Handle, vecs ...[]float64) []float64 {
	h.Sleep(collcomm.FlopTime * float64(len(vecs)*len(vecs[0])))
	return make([]float64, len(vecs[0]))
}
