package workflow

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/flowengine/types"
)

func step(id string, deps ...string) Step {
	return Step{ID: id, Type: StepCustom, DependsOn: deps}
}

func serialStep(id string, deps ...string) Step {
	s := step(id, deps...)
	f := false
	s.Parallel = &f
	return s
}

func TestTopologicalSort_Diamond(t *testing.T) {
	steps := []Step{step("A"), step("B", "A"), step("C", "A"), step("D", "B", "C")}

	groups, err := TopologicalSort(BuildStepGraph(steps))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A"}, {"B", "C"}, {"D"}}, GroupIDs(groups))
}

func TestTopologicalSort_DeclarationOrderInsideGroup(t *testing.T) {
	steps := []Step{step("z"), step("m"), step("a"), step("b", "z", "a")}

	groups, err := TopologicalSort(BuildStepGraph(steps))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"z", "m", "a"}, {"b"}}, GroupIDs(groups))
}

func TestTopologicalSort_Cycle(t *testing.T) {
	steps := []Step{step("start"), step("A", "start", "B"), step("B", "A")}

	groups, err := TopologicalSort(BuildStepGraph(steps))
	require.Error(t, err)
	assert.Nil(t, groups)
	assert.True(t, types.IsCode(err, types.ErrCircularDependency))
	assert.Contains(t, err.Error(), "A, B")
}

func TestBuildStepGraph_Edges(t *testing.T) {
	g := BuildStepGraph([]Step{step("A"), step("B", "A"), step("C", "A", "missing")})

	require.Len(t, g, 3)
	assert.Contains(t, g["A"].Dependents, "B")
	assert.Contains(t, g["A"].Dependents, "C")
	assert.Len(t, g["C"].Dependencies, 1)
	assert.Equal(t, 2, g["C"].Index)
}

func TestPlan_NonParallelStepRunsAlone(t *testing.T) {
	def := &Definition{ID: "wf", Steps: []Step{
		step("A"),
		step("B", "A"),
		serialStep("C", "A"),
		step("D", "A"),
		step("E", "C"),
	}}

	groups, err := Plan(def)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A"}, {"B", "D"}, {"C"}, {"E"}}, GroupIDs(groups))
}

func TestCanRunInParallel(t *testing.T) {
	a, b := step("A"), step("B", "A")
	c := step("C")

	assert.False(t, CanRunInParallel(a, b))
	assert.False(t, CanRunInParallel(b, a))
	assert.True(t, CanRunInParallel(a, c))
	assert.False(t, CanRunInParallel(a, serialStep("S")))
}

// Dependencies of every step land in strictly earlier groups, and every
// step is scheduled exactly once.
func TestProperty_TopologicalSoundness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "n")
		steps := make([]Step, n)
		for i := 0; i < n; i++ {
			var deps []string
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(t, fmt.Sprintf("edge_%d_%d", i, j)) {
					deps = append(deps, fmt.Sprintf("s%d", j))
				}
			}
			steps[i] = step(fmt.Sprintf("s%d", i), deps...)
		}
		steps = rapid.Permutation(steps).Draw(t, "order")

		groups, err := TopologicalSort(BuildStepGraph(steps))
		if err != nil {
			t.Fatalf("acyclic graph rejected: %v", err)
		}

		groupOf := make(map[string]int)
		for gi, g := range groups {
			for _, s := range g {
				if _, dup := groupOf[s.ID]; dup {
					t.Fatalf("step %s scheduled twice", s.ID)
				}
				groupOf[s.ID] = gi
			}
		}
		if len(groupOf) != n {
			t.Fatalf("scheduled %d of %d steps", len(groupOf), n)
		}
		for _, s := range steps {
			for _, dep := range s.DependsOn {
				if groupOf[dep] >= groupOf[s.ID] {
					t.Fatalf("step %s (group %d) not after dependency %s (group %d)", s.ID, groupOf[s.ID], dep, groupOf[dep])
				}
			}
		}
	})
}

func TestProperty_RingIsCircular(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("a dependency ring of any length is rejected", prop.ForAll(
		func(n int) bool {
			steps := make([]Step, n)
			for i := 0; i < n; i++ {
				steps[i] = step(fmt.Sprintf("r%d", i), fmt.Sprintf("r%d", (i+1)%n))
			}
			_, err := TopologicalSort(BuildStepGraph(steps))
			return types.IsCode(err, types.ErrCircularDependency)
		},
		gen.IntRange(2, 20),
	))

	properties.TestingRun(t)
}
