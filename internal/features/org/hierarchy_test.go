package org_test

import (
	"context"
	"testing"

	"go-approval/internal/features/org"
	"go-approval/internal/features/org/orgtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupChain(t *testing.T) {
	dir := orgtest.NewDirectory()

	chain, err := org.GroupChain(context.Background(), dir, "platform")
	require.NoError(t, err)

	ids := []string{}
	for _, g := range chain {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"platform", "engineering", "company"}, ids)
	assert.True(t, chain[len(chain)-1].IsRoot())

	_, err = org.GroupChain(context.Background(), dir, "nowhere")
	assert.ErrorIs(t, err, org.ErrGroupNotFound)
}

func TestManagerChain(t *testing.T) {
	dir := orgtest.NewDirectory()
	ctx := context.Background()

	chain, err := org.ManagerChain(ctx, dir, "alice", 2)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "lead", chain[0].ID)
	assert.Equal(t, "vp-eng", chain[1].ID)

	chain, err = org.ManagerChain(ctx, dir, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, chain, 3)

	chain, err = org.ManagerChain(ctx, dir, "ceo", 1)
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestActiveAdmins(t *testing.T) {
	ids, err := org.ActiveAdmins(context.Background(), orgtest.NewDirectory())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, ids)
}
