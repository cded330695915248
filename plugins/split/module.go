// Package split implements the split plugin: the classic train/test
// partitioning step. The split is by fraction over the (optionally
// shuffled) record order.
package split

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"math/rand"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/mlgridgo/internal/catalog"
)

//go:embed manifest.hcl
var manifest []byte

// Input configures one partitioning.
type Input struct {
	Data     []cty.Value `cty:"data"`
	Fraction float64     `cty:"fraction"`
	Seed     *int64      `cty:"seed"`
}

// Output holds the two partitions.
type Output struct {
	Left  []cty.Value `cty:"left"`
	Right []cty.Value `cty:"right"`
}

func handle(ctx context.Context, in *Input) (*Output, error) {
	if in.Fraction < 0 || in.Fraction > 1 {
		return nil, fmt.Errorf("fraction must be within [0, 1], got %v", in.Fraction)
	}

	records := make([]cty.Value, len(in.Data))
	copy(records, in.Data)
	if in.Seed != nil {
		rng := rand.New(rand.NewSource(*in.Seed))
		rng.Shuffle(len(records), func(i, j int) {
			records[i], records[j] = records[j], records[i]
		})
	}

	cut := int(math.Round(in.Fraction * float64(len(records))))
	return &Output{Left: records[:cut], Right: records[cut:]}, nil
}

// Module registers the plugin.
type Module struct{}

func (Module) Register(r *catalog.Registry) error {
	if err := r.LoadManifest(manifest, "plugins/split/manifest.hcl"); err != nil {
		return err
	}
	return r.RegisterHandler("split", &catalog.Handler{
		NewInput: func() any { return new(Input) },
		Fn:       handle,
	})
}
