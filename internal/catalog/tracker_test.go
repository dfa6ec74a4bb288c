package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(mfr, pid, pkg string) Key {
	return Key{ManufacturerItemID: mfr, ProductID: pid, Packaging: pkg}
}

func TestExactTracker(t *testing.T) {
	tr := NewExactTracker()
	assert.False(t, tr.Seen(key("M1", "P1", "BX")))

	tr.Record(key("M1", "P1", "BX"))
	assert.True(t, tr.Seen(key("M1", "P1", "BX")))
	assert.False(t, tr.Seen(key("M1P1", "", "BX")))
	assert.Equal(t, 1, tr.Len())
}

func TestTrackers_HyphenatedPartsDoNotCollide(t *testing.T) {
	a, b := key("A-B", "C", "D"), key("A", "B-C", "D")
	require.Equal(t, a.SKU(), b.SKU())

	for name, tr := range map[string]Tracker{
		"exact": NewExactTracker(),
		"bloom": NewBloomTracker(1000, 0.0001),
	} {
		t.Run(name, func(t *testing.T) {
			tr.Record(a)
			assert.True(t, tr.Seen(a))
			assert.False(t, tr.Seen(b))
		})
	}
}

func TestBloomTracker(t *testing.T) {
	tr := NewBloomTracker(10_000, 0.0001)

	for i := range 1000 {
		tr.Record(key(fmt.Sprintf("M%d", i), fmt.Sprintf("P%d", i), "BX"))
	}
	for i := range 1000 {
		assert.True(t, tr.Seen(key(fmt.Sprintf("M%d", i), fmt.Sprintf("P%d", i), "BX")))
	}

	falsePositives := 0
	for i := range 1000 {
		if tr.Seen(key(fmt.Sprintf("M%d", i), fmt.Sprintf("P%d", i), "CS")) {
			falsePositives++
		}
	}
	assert.Less(t, falsePositives, 5)
}

func TestTrackerFactories(t *testing.T) {
	a, b := ExactTrackers(), ExactTrackers()
	a.Record(key("M", "P", "K"))
	assert.False(t, b.Seen(key("M", "P", "K")), "each run gets its own tracker")

	f := BloomTrackers(100, 0.01)
	c, d := f(), f()
	c.Record(key("M", "P", "K"))
	assert.False(t, d.Seen(key("M", "P", "K")))
}
