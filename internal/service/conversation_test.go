package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguaverse/messaging-service/internal/apperr"
	"github.com/linguaverse/messaging-service/internal/models"
)

func TestResolvePrivateReturnsExistingConversation(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()

	first, err := f.resolver.ResolvePrivate(ctx, "alice", "bob")
	require.NoError(t, err)

	// reversed pair must map onto the same record
	second, err := f.resolver.ResolvePrivate(ctx, "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.convs.count())
}

func TestResolvePrivateConcurrentFirstContact(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c, err := f.resolver.ResolvePrivate(ctx, "alice", "bob")
			if assert.NoError(t, err) {
				ids <- c.ID
			}
		}()
		go func() {
			defer wg.Done()
			c, err := f.resolver.ResolvePrivate(ctx, "bob", "alice")
			if assert.NoError(t, err) {
				ids <- c.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, 1, f.convs.count())
}

func TestResolvePrivateRejectsSelf(t *testing.T) {
	f := newFixture("alice")
	_, err := f.resolver.ResolvePrivate(context.Background(), "alice", "alice")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestCreateGroupListsMissingParticipants(t *testing.T) {
	f := newFixture("alice", "bob")

	_, err := f.resolver.CreateGroup(context.Background(), "alice", "study group", []string{"bob", "ghost", "phantom"}, "", false)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	var de *apperr.Error
	require.ErrorAs(t, err, &de)
	assert.ElementsMatch(t, []string{"ghost", "phantom"}, de.Missing)
}

func TestCreateGroupDeduplicatesCreator(t *testing.T) {
	f := newFixture("alice", "bob", "carol")

	c, err := f.resolver.CreateGroup(context.Background(), "alice", "study group", []string{"alice", "bob", "carol", "bob"}, "weekly sync", false)
	require.NoError(t, err)

	assert.Equal(t, models.ConversationGroup, c.Type)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, c.Participants)
	assert.Equal(t, "alice", c.CreatedBy)
}

func TestGroupMemberManagementIsCreatorOnly(t *testing.T) {
	f := newFixture("alice", "bob", "carol", "dave")
	ctx := context.Background()

	c, err := f.resolver.CreateGroup(ctx, "alice", "study group", []string{"bob", "carol"}, "", false)
	require.NoError(t, err)

	err = f.resolver.AddParticipants(ctx, c.ID, "bob", []string{"dave"})
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	require.NoError(t, f.resolver.AddParticipants(ctx, c.ID, "alice", []string{"dave"}))
	got, err := f.convs.GetParticipants(ctx, c.ID)
	require.NoError(t, err)
	assert.Contains(t, got, "dave")

	require.NoError(t, f.resolver.RemoveParticipants(ctx, c.ID, "alice", []string{"carol"}))
	got, err = f.convs.GetParticipants(ctx, c.ID)
	require.NoError(t, err)
	assert.NotContains(t, got, "carol")
}
