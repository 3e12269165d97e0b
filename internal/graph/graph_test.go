package graph

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intTask(id string) *Node {
	return &Node{
		Kind:       KindStep,
		Task:       &Task{TaskID: id},
		InputType:  reflect.TypeOf(0),
		OutputType: reflect.TypeOf(0),
	}
}

func TestNewPlan_SequentialTypeCompatibility(t *testing.T) {
	plan, err := NewPlan("seq", []*Node{intTask("a"), intTask("b")})
	require.NoError(t, err)
	assert.Equal(t, "0.then", plan.Nodes[0].ID)
	assert.Equal(t, "1.then", plan.Nodes[1].ID)
}

func TestNewPlan_TypeMismatch(t *testing.T) {
	a := intTask("a")
	b := &Node{
		Kind:       KindStep,
		Task:       &Task{TaskID: "b"},
		InputType:  reflect.TypeOf(""),
		OutputType: reflect.TypeOf(""),
	}
	_, err := NewPlan("seq", []*Node{a, b})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrTypeMismatch, ce.Kind)
}

func TestNewPlan_DuplicateTaskID(t *testing.T) {
	_, err := NewPlan("seq", []*Node{intTask("dup"), intTask("dup")})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrDuplicateTaskID, ce.Kind)
}

func TestNewPlan_EmptyPlan(t *testing.T) {
	_, err := NewPlan("seq", nil)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrEmptyPlan, ce.Kind)
}

func TestNewPlan_BranchOutputUnification(t *testing.T) {
	armA, err := NewPlan("seq", []*Node{intTask("armA")})
	require.NoError(t, err)
	armB, err := NewPlan("seq", []*Node{intTask("armB")})
	require.NoError(t, err)

	branch := &Node{
		Kind:      KindBranch,
		InputType: reflect.TypeOf(0),
		Arms: []Arm{
			{Predicate: &Predicate{Fn: func(any, map[string]any) bool { return true }}, Plan: armA},
			{Plan: armB},
		},
	}
	plan, err := NewPlan("seq", []*Node{branch})
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(0), plan.Nodes[0].OutputType)
}

func TestNewPlan_BranchTypeDivergence(t *testing.T) {
	armA, err := NewPlan("seq", []*Node{intTask("armA")})
	require.NoError(t, err)
	strNode := &Node{
		Kind:       KindStep,
		Task:       &Task{TaskID: "armB"},
		InputType:  reflect.TypeOf(0),
		OutputType: reflect.TypeOf(""),
	}
	armB, err := NewPlan("seq", []*Node{strNode})
	require.NoError(t, err)

	branch := &Node{
		Kind:      KindBranch,
		InputType: reflect.TypeOf(0),
		Arms: []Arm{
			{Predicate: &Predicate{Fn: func(any, map[string]any) bool { return true }}, Plan: armA},
			{Plan: armB},
		},
	}
	_, err = NewPlan("seq", []*Node{branch})
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrBranchTypeDivergence, ce.Kind)
}

func TestNewPlan_WhileLoopInvariant(t *testing.T) {
	body, err := NewPlan("seq", []*Node{intTask("body")})
	require.NoError(t, err)

	while := &Node{
		Kind:      KindWhile,
		InputType: reflect.TypeOf(0),
		Predicate: &Predicate{Fn: func(any, map[string]any) bool { return false }},
		Body:      body,
	}
	_, err = NewPlan("seq", []*Node{while})
	assert.NoError(t, err)
}

func TestNodeByID_ResolvesNestedNodes(t *testing.T) {
	armA, err := NewPlan("seq", []*Node{intTask("armA")})
	require.NoError(t, err)
	armB, err := NewPlan("seq", []*Node{intTask("armB")})
	require.NoError(t, err)

	branch := &Node{
		Kind:      KindBranch,
		InputType: reflect.TypeOf(0),
		Arms: []Arm{
			{Predicate: &Predicate{Fn: func(any, map[string]any) bool { return true }}, Plan: armA},
			{Plan: armB},
		},
	}
	plan, err := NewPlan("seq", []*Node{branch})
	require.NoError(t, err)

	n, ok := plan.NodeByID("0.branch.0.0.then")
	require.True(t, ok)
	assert.Equal(t, "armA", n.Task.TaskID)
}
