package services

import (
	"context"
	"errors"
	"testing"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	events []*NotificationEvent
	err    error
}

func (q *recordingQueue) Enqueue(_ context.Context, e *NotificationEvent) error {
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, e)
	return nil
}

func (q *recordingQueue) IsAsync() bool { return true }
func (q *recordingQueue) Close() error  { return nil }

type notificationCounter struct{ async, sync int }

func (c *notificationCounter) ObserveNotification(async bool) {
	if async {
		c.async++
	} else {
		c.sync++
	}
}

func TestNotify_UsesQueue(t *testing.T) {
	f := newFixture(t)
	u := f.user(authz.Member, true)
	q := &recordingQueue{}
	counter := &notificationCounter{}
	f.notifications.SetQueue(q, counter)

	f.notifications.Notify(f.ctx, &NotificationEvent{UserID: u.ID, Kind: models.NotificationTaskAssigned})
	f.notifications.Notify(f.ctx, &NotificationEvent{Kind: models.NotificationTaskAssigned})
	f.notifications.Notify(f.ctx, nil)

	require.Len(t, q.events, 1)
	assert.Equal(t, 1, counter.async)

	q.err = errors.New("redis down")
	f.notifications.Notify(f.ctx, &NotificationEvent{UserID: u.ID})
	assert.Equal(t, 1, counter.async)

	var stored int64
	require.NoError(t, f.db.Model(&models.Notification{}).Count(&stored).Error)
	assert.Zero(t, stored, "queued events are stored by the worker")
}

func TestListForUser(t *testing.T) {
	f := newFixture(t)
	alice := f.user(authz.Member, true)
	bob := f.user(authz.Member, true)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.notifications.Deliver(f.ctx, &NotificationEvent{UserID: alice.ID, Kind: models.NotificationTaskAssigned, TaskID: uint(i + 1)}))
	}
	require.NoError(t, f.notifications.Deliver(f.ctx, &NotificationEvent{UserID: bob.ID, Kind: models.NotificationTaskAssigned}))

	out, err := f.notifications.ListForUser(f.ctx, alice.ID, &NotificationListRequest{PageSize: 2})
	require.NoError(t, err)
	require.True(t, out.IsSuccess(), out.Message())
	list := out.Data()
	assert.EqualValues(t, 3, list.Total)
	assert.EqualValues(t, 3, list.Unread)
	require.Len(t, list.Items, 2)
	for _, n := range list.Items {
		assert.Equal(t, alice.ID, n.UserID)
		require.NotNil(t, n.TaskID)
	}

	read, err := f.notifications.MarkRead(f.ctx, alice.ID, list.Items[0].ID)
	require.NoError(t, err)
	require.True(t, read.IsSuccess())
	assert.NotNil(t, read.Data().ReadAt)

	unread, err := f.notifications.ListForUser(f.ctx, alice.ID, &NotificationListRequest{UnreadOnly: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread.Data().Total)
	assert.EqualValues(t, 2, unread.Data().Unread)
}

func TestNotifications_InactiveAccount(t *testing.T) {
	f := newFixture(t)
	gone := f.user(authz.Member, false)
	require.NoError(t, f.notifications.Deliver(f.ctx, &NotificationEvent{UserID: gone.ID, Kind: models.NotificationTaskAssigned}))

	var n models.Notification
	require.NoError(t, f.db.First(&n).Error)

	list, err := f.notifications.ListForUser(f.ctx, gone.ID, &NotificationListRequest{})
	require.NoError(t, err)
	assert.False(t, list.IsSuccess())
	assert.Nil(t, list.Data())
	assert.Contains(t, list.Message(), authz.ReasonUnknownActor)

	f.resetWrites()
	read, err := f.notifications.MarkRead(f.ctx, gone.ID, n.ID)
	require.NoError(t, err)
	assert.False(t, read.IsSuccess())
	assert.Contains(t, read.Message(), authz.ReasonUnknownActor)
	assert.Zero(t, f.writeCount())

	require.NoError(t, f.db.First(&n, n.ID).Error)
	assert.Nil(t, n.ReadAt)
}

func TestMarkRead_OtherUsersNotification(t *testing.T) {
	f := newFixture(t)
	alice := f.user(authz.Member, true)
	bob := f.user(authz.Member, true)
	require.NoError(t, f.notifications.Deliver(f.ctx, &NotificationEvent{UserID: alice.ID, Kind: models.NotificationTaskAssigned}))

	var n models.Notification
	require.NoError(t, f.db.First(&n).Error)

	f.resetWrites()
	out, err := f.notifications.MarkRead(f.ctx, bob.ID, n.ID)
	require.NoError(t, err)
	assert.Equal(t, MsgNotFound, out.Message())
	assert.Zero(t, f.writeCount())
}
