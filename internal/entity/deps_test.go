package entity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveDependencies_TempIDsOnly(t *testing.T) {
	payload := Payload{
		"name":       "Shelf A3",
		"itemId":     "tmp-item-1",
		"locationId": "loc-9", // real id, already exists on the server
	}

	deps := DeriveDependencies(KindInventory, payload)

	require.Len(t, deps, 1)
	assert.Equal(t, Ref{Kind: KindItem, ID: "tmp-item-1"}, deps[0])
}

func TestDeriveDependencies_CrossTypeFanIn(t *testing.T) {
	// An inventory create can depend on a pending item, location, and
	// container simultaneously.
	payload := Payload{
		"itemId":      "tmp-item-1",
		"locationId":  "tmp-loc-1",
		"containerId": "tmp-box-1",
		"quantity":    3,
	}

	deps := DeriveDependencies(KindInventory, payload)

	require.Len(t, deps, 3)
	// Declaration-table order, not payload map order.
	assert.Equal(t, KindItem, deps[0].Kind)
	assert.Equal(t, KindLocation, deps[1].Kind)
	assert.Equal(t, KindContainer, deps[2].Kind)
}

func TestDeriveDependencies_AbsentAndEmptyFields(t *testing.T) {
	assert.Nil(t, DeriveDependencies(KindCategory, Payload{"name": "Root"}))
	assert.Nil(t, DeriveDependencies(KindCategory, Payload{"name": "Root", "parentId": ""}))
	assert.Nil(t, DeriveDependencies(KindCategory, nil))
	assert.Nil(t, DeriveDependencies(KindBorrower, Payload{"name": "Sam"}))
}

func TestRewriteDependencyFields(t *testing.T) {
	payload := Payload{
		"name":     "Child",
		"parentId": "tmp-c1",
	}

	out, err := RewriteDependencyFields(KindCategory, payload, func(id ID) (ID, error) {
		require.Equal(t, ID("tmp-c1"), id)
		return "cat-R1", nil
	})
	require.NoError(t, err)

	assert.Equal(t, "cat-R1", out["parentId"])
	// Original payload keeps its temp-id reference.
	assert.Equal(t, "tmp-c1", payload["parentId"])
}

func TestRewriteDependencyFields_RealIDsUntouched(t *testing.T) {
	payload := Payload{"parentId": "cat-5"}

	out, err := RewriteDependencyFields(KindCategory, payload, func(ID) (ID, error) {
		t.Fatal("resolve must not be called for real ids")
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cat-5", out["parentId"])
}

func TestRewriteDependencyFields_ResolveError(t *testing.T) {
	payload := Payload{"parentId": "tmp-c1"}

	_, err := RewriteDependencyFields(KindCategory, payload, func(ID) (ID, error) {
		return "", fmt.Errorf("still pending")
	})
	assert.Error(t, err)
}
