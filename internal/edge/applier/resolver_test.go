package applier

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

func newNode(id model.ParameterId, deps []model.ParameterId, apply func(ctx context.Context) error) node {
	set := make(map[model.ParameterId]struct{}, len(deps))
	for _, d := range deps {
		set[d] = struct{}{}
	}
	return node{id: id, deps: set, kind: "test", apply: apply}
}

func TestResolveRunsInDependencyOrder(t *testing.T) {
	var order []string

	bridge := model.NewParameterId()
	iface := model.NewParameterId()
	gre := model.NewParameterId()

	nodes := []node{
		newNode(gre, []model.ParameterId{iface}, func(ctx context.Context) error {
			order = append(order, "gre")
			return nil
		}),
		newNode(iface, []model.ParameterId{bridge}, func(ctx context.Context) error {
			order = append(order, "iface")
			return nil
		}),
		newNode(bridge, nil, func(ctx context.Context) error {
			order = append(order, "bridge")
			return nil
		}),
	}

	result := resolve(context.Background(), nodes)
	require.True(t, result.Ok())
	require.Equal(t, []string{"bridge", "iface", "gre"}, order)
}

func TestResolveSkipsTransitiveDependentsOfAFailure(t *testing.T) {
	root := model.NewParameterId()
	child := model.NewParameterId()
	grandchild := model.NewParameterId()

	boom := fmt.Errorf("boom")
	nodes := []node{
		newNode(root, nil, func(ctx context.Context) error { return boom }),
		newNode(child, []model.ParameterId{root}, func(ctx context.Context) error {
			t.Fatal("child must not run when its dependency failed")
			return nil
		}),
		newNode(grandchild, []model.ParameterId{child}, func(ctx context.Context) error {
			t.Fatal("grandchild must not run when its transitive dependency failed")
			return nil
		}),
	}

	result := resolve(context.Background(), nodes)
	require.False(t, result.Ok())
	require.Len(t, result.Failed, 1)
	require.ErrorIs(t, result.Failed[root], boom)
	require.Len(t, result.Skipped, 2)
	require.Contains(t, result.Skipped, child)
	require.Contains(t, result.Skipped, grandchild)
}

func TestResolveFailsUnsatisfiableGraph(t *testing.T) {
	missing := model.NewParameterId()
	id := model.NewParameterId()
	nodes := []node{
		newNode(id, []model.ParameterId{missing}, func(ctx context.Context) error {
			t.Fatal("must not run with an unresolvable dependency")
			return nil
		}),
	}

	result := resolve(context.Background(), nodes)
	require.False(t, result.Ok())
	require.Contains(t, result.Failed, id)
}
