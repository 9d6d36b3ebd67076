package training

import (
	"fmt"
	"math/rand/v2"

	"github.com/rpggio/runledger/internal/domain/dataset"
)

// blobs builds a table of n rows around one well separated center per class.
func blobs(n int, classes ...string) *dataset.Table {
	rng := rand.New(rand.NewPCG(7, 11))
	t := &dataset.Table{Header: []string{"x1", "x2", "x3", "label"}}
	for i := 0; i < n; i++ {
		c := i % len(classes)
		cx, cy := float64(c*4), float64((c%2)*4)
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("%.4f", cx+rng.NormFloat64()*0.6),
			fmt.Sprintf("%.4f", cy+rng.NormFloat64()*0.6),
			fmt.Sprintf("%.4f", rng.NormFloat64()),
			classes[c],
		})
	}
	return t
}

func prepared(n int, classes ...string) *Split {
	s, err := Prepare(blobs(n, classes...), 42)
	if err != nil {
		panic(err)
	}
	return s
}
