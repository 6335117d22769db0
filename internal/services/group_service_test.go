package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinGroup(t *testing.T) {
	env := newTestEnv()
	s := env.sessions.add(env.userID)

	info, err := env.groups.JoinGroup(context.Background(), env.userID, s.ID, " golang ")
	require.NoError(t, err)
	assert.Equal(t, "-100golang", info.GroupID)

	_, err = env.groups.JoinGroup(context.Background(), env.userID, s.ID, "")
	assert.ErrorIs(t, err, ErrValidation)

	env.backend.joinErr = &BackendError{Op: "join group", Kind: ErrTargetNotFound, StatusCode: 404}
	_, err = env.groups.JoinGroup(context.Background(), env.userID, s.ID, "gone")
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestSearchGroupsClampsLimit(t *testing.T) {
	env := newTestEnv()
	s := env.sessions.add(env.userID)

	groups, err := env.groups.SearchGroups(context.Background(), env.userID, s.ID, "go", 0)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.Equal(t, defaultSearchLimit, env.backend.searchLimit)

	_, err = env.groups.SearchGroups(context.Background(), env.userID, s.ID, "go", 1000)
	require.NoError(t, err)
	assert.Equal(t, maxSearchLimit, env.backend.searchLimit)

	_, err = env.groups.SearchGroups(context.Background(), env.userID, uuid.Nil, "go", 10)
	assert.ErrorIs(t, err, ErrValidation)
}
