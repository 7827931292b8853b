package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-planner/internal/model"
)

const owner uint = 1

func newLoadedStore(t *testing.T, persist *fakePersistence, reminders *fakeReminders) *Store {
	t.Helper()
	store := NewStore(owner, persist, reminders, WithClock(func() time.Time {
		return time.Date(2025, 8, 6, 12, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, store.Load(context.Background()))
	return store
}

func TestStore_LoadNewestFirst(t *testing.T) {
	persist := newFakePersistence()
	persist.seed(owner, model.Task{Title: "older"})
	persist.seed(owner, model.Task{Title: "newer"})
	persist.seed(2, model.Task{Title: "foreign"})

	store := newLoadedStore(t, persist, &fakeReminders{})

	assert.Equal(t, []string{"newer", "older"}, titles(store.Tasks()))
}

func TestStore_LoadFailureKeepsPreviousCollection(t *testing.T) {
	persist := newFakePersistence()
	persist.seed(owner, model.Task{Title: "kept"})
	store := newLoadedStore(t, persist, &fakeReminders{})

	persist.failOn["list"] = errBackend
	err := store.Load(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, []string{"kept"}, titles(store.Tasks()))
	assert.ErrorIs(t, store.LastError(), ErrLoad)
}

func TestStore_FirstLoadFailureLeavesEmpty(t *testing.T) {
	persist := newFakePersistence()
	persist.failOn["list"] = errBackend
	store := NewStore(owner, persist, nil)

	assert.ErrorIs(t, store.Load(context.Background()), ErrLoad)
	assert.Empty(t, store.Tasks())
}

func TestStore_AddPrependsAndSchedules(t *testing.T) {
	persist := newFakePersistence()
	persist.seed(owner, model.Task{Title: "existing"})
	reminders := &fakeReminders{}
	store := newLoadedStore(t, persist, reminders)

	task, err := store.Add(context.Background(), model.Draft{Title: "fresh", Tags: []string{"Work"}})
	require.NoError(t, err)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, []string{"fresh", "existing"}, titles(store.Tasks()))
	assert.Equal(t, []string{task.ID}, reminders.scheduled)
	assert.NoError(t, store.LastError())
}

func TestStore_AddFailureLeavesCollectionUnchanged(t *testing.T) {
	persist := newFakePersistence()
	persist.seed(owner, model.Task{Title: "existing"})
	reminders := &fakeReminders{}
	store := newLoadedStore(t, persist, reminders)
	persist.failOn["create"] = errBackend

	_, err := store.Add(context.Background(), model.Draft{Title: "lost"})

	assert.ErrorIs(t, err, ErrAdd)
	assert.ErrorIs(t, err, errBackend)
	assert.Len(t, store.Tasks(), 1)
	assert.Empty(t, reminders.scheduled)
	assert.ErrorIs(t, store.LastError(), ErrAdd)
}

func TestStore_ReminderFailureDoesNotFailAdd(t *testing.T) {
	persist := newFakePersistence()
	store := newLoadedStore(t, persist, &fakeReminders{err: errBackend})

	_, err := store.Add(context.Background(), model.Draft{Title: "x"})

	assert.NoError(t, err)
	assert.Len(t, store.Tasks(), 1)
}

func TestStore_UpdateByIDReplacesWithConfirmedRecord(t *testing.T) {
	persist := newFakePersistence()
	seeded := persist.seed(owner, model.Task{Title: "draft"})
	reminders := &fakeReminders{}
	store := newLoadedStore(t, persist, reminders)

	title := "final"
	updated, err := store.UpdateByID(context.Background(), seeded.ID, model.Patch{Title: &title})
	require.NoError(t, err)

	got, ok := store.Get(seeded.ID)
	require.True(t, ok)
	assert.Equal(t, "final", got.Title)
	assert.Equal(t, updated.UpdatedAt, got.UpdatedAt)
	assert.Equal(t, []string{seeded.ID}, reminders.scheduled)
}

func TestStore_UpdateFailureKeepsRecord(t *testing.T) {
	persist := newFakePersistence()
	seeded := persist.seed(owner, model.Task{Title: "draft"})
	store := newLoadedStore(t, persist, &fakeReminders{})
	persist.failOn["patch"] = errBackend

	title := "final"
	_, err := store.UpdateByID(context.Background(), seeded.ID, model.Patch{Title: &title})

	assert.ErrorIs(t, err, ErrUpdate)
	got, _ := store.Get(seeded.ID)
	assert.Equal(t, "draft", got.Title)
}

func TestStore_DeleteByID(t *testing.T) {
	persist := newFakePersistence()
	seeded := persist.seed(owner, model.Task{Title: "gone"})
	persist.seed(owner, model.Task{Title: "stays"})
	reminders := &fakeReminders{}
	store := newLoadedStore(t, persist, reminders)

	require.NoError(t, store.DeleteByID(context.Background(), seeded.ID))

	assert.Equal(t, []string{"stays"}, titles(store.Tasks()))
	assert.Equal(t, []string{seeded.ID}, reminders.cancelled)
}

func TestStore_DeleteFailureKeepsRecord(t *testing.T) {
	persist := newFakePersistence()
	seeded := persist.seed(owner, model.Task{Title: "stays"})
	reminders := &fakeReminders{}
	store := newLoadedStore(t, persist, reminders)
	persist.failOn["delete"] = errBackend

	err := store.DeleteByID(context.Background(), seeded.ID)

	assert.ErrorIs(t, err, ErrDelete)
	_, ok := store.Get(seeded.ID)
	assert.True(t, ok)
	assert.Empty(t, reminders.cancelled)
}

func TestStore_ToggleNonRepeatingTask(t *testing.T) {
	persist := newFakePersistence()
	seeded := persist.seed(owner, model.Task{Title: "once"})
	store := newLoadedStore(t, persist, &fakeReminders{})

	res, err := store.ToggleComplete(context.Background(), seeded.ID)
	require.NoError(t, err)

	assert.Nil(t, res.Spawned)
	require.NotNil(t, res.Updated)
	assert.True(t, res.Updated.Completed)
	assert.Len(t, store.Tasks(), 1)

	got, _ := store.Get(seeded.ID)
	assert.True(t, got.Completed)
}

func TestStore_ToggleWeeklySpawnsFollowUp(t *testing.T) {
	persist := newFakePersistence()
	due := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	seeded := persist.seed(owner, model.Task{
		Title:       "Weekly review",
		Description: "look back",
		DueDate:     &due,
		Tags:        []string{"Work"},
		Repetition:  model.RepeatWeekly,
	})
	store := newLoadedStore(t, persist, &fakeReminders{})

	res, err := store.ToggleComplete(context.Background(), seeded.ID)
	require.NoError(t, err)

	require.NotNil(t, res.Spawned)
	require.NotNil(t, res.Spawned.DueDate)
	assert.Equal(t, time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC), *res.Spawned.DueDate)
	assert.False(t, res.Spawned.Completed)
	assert.Equal(t, "Weekly review", res.Spawned.Title)
	assert.Equal(t, "look back", res.Spawned.Description)
	assert.Equal(t, []string{"Work"}, res.Spawned.Tags)
	assert.Equal(t, model.RepeatWeekly, res.Spawned.Repetition)

	tasks := store.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, res.Spawned.ID, tasks[0].ID)
	original, _ := store.Get(seeded.ID)
	assert.True(t, original.Completed)
}

func TestStore_UncompleteRepeatingTaskDoesNotSpawn(t *testing.T) {
	persist := newFakePersistence()
	seeded := persist.seed(owner, model.Task{Title: "daily", Repetition: model.RepeatDaily, Completed: true})
	store := newLoadedStore(t, persist, &fakeReminders{})

	res, err := store.ToggleComplete(context.Background(), seeded.ID)
	require.NoError(t, err)

	assert.Nil(t, res.Spawned)
	assert.False(t, res.Updated.Completed)
	assert.Len(t, store.Tasks(), 1)
}

func TestStore_ToggleStepsFailIndependently(t *testing.T) {
	persist := newFakePersistence()
	seeded := persist.seed(owner, model.Task{Title: "daily", Repetition: model.RepeatDaily})
	store := newLoadedStore(t, persist, &fakeReminders{})
	persist.failOn["create"] = errBackend

	res, err := store.ToggleComplete(context.Background(), seeded.ID)

	assert.ErrorIs(t, err, ErrAdd)
	assert.NotErrorIs(t, err, ErrUpdate)
	assert.Nil(t, res.Spawned)
	require.NotNil(t, res.Updated)
	assert.True(t, res.Updated.Completed)
	assert.ErrorIs(t, store.LastError(), ErrAdd)
}

func TestStore_ToggleFlipFailureKeepsSpawn(t *testing.T) {
	persist := newFakePersistence()
	seeded := persist.seed(owner, model.Task{Title: "daily", Repetition: model.RepeatDaily})
	store := newLoadedStore(t, persist, &fakeReminders{})
	persist.failOn["patch"] = errBackend

	res, err := store.ToggleComplete(context.Background(), seeded.ID)

	assert.ErrorIs(t, err, ErrUpdate)
	assert.NotErrorIs(t, err, ErrAdd)
	assert.NotNil(t, res.Spawned)
	assert.Len(t, store.Tasks(), 2)
	original, _ := store.Get(seeded.ID)
	assert.False(t, original.Completed)
}

func TestStore_ToggleUnknownTask(t *testing.T) {
	store := newLoadedStore(t, newFakePersistence(), &fakeReminders{})

	_, err := store.ToggleComplete(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrUpdate)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestStore_SnapshotIsDetached(t *testing.T) {
	persist := newFakePersistence()
	persist.seed(owner, model.Task{Title: "a", Tags: []string{"Work"}})
	store := newLoadedStore(t, persist, &fakeReminders{})

	snap := store.Tasks()
	snap[0].Title = "mutated"
	snap[0].Tags[0] = "Home"

	fresh := store.Tasks()
	assert.Equal(t, "a", fresh[0].Title)
	assert.Equal(t, []string{"Work"}, fresh[0].Tags)
}

func TestStore_QueryAndUniqueTags(t *testing.T) {
	persist := newFakePersistence()
	persist.seed(owner, model.Task{Title: "banana", Tags: []string{"Work"}})
	persist.seed(owner, model.Task{Title: "Apple", Tags: []string{"Work", "Urgent"}})
	persist.seed(owner, model.Task{Title: "cherry"})
	store := newLoadedStore(t, persist, &fakeReminders{})

	got := store.Query(Query{SortKey: SortByTitle})
	assert.Equal(t, []string{"Apple", "banana", "cherry"}, titles(got))
	assert.Equal(t, []string{"Urgent", "Work"}, store.UniqueTags())
}

func TestStores_ForCachesLoadedStore(t *testing.T) {
	persist := newFakePersistence()
	persist.seed(owner, model.Task{Title: "a"})
	stores := NewStores(persist, &fakeReminders{})

	first, err := stores.For(context.Background(), owner)
	require.NoError(t, err)
	second, err := stores.For(context.Background(), owner)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, first.Tasks(), 1)
}

func TestStores_ForRetriesFailedLoad(t *testing.T) {
	persist := newFakePersistence()
	persist.failOn["list"] = errBackend
	stores := NewStores(persist, nil)

	_, err := stores.For(context.Background(), owner)
	assert.ErrorIs(t, err, ErrLoad)

	delete(persist.failOn, "list")
	store, err := stores.For(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, owner, store.Owner())
}

func TestStore_ReloadPicksUpOutsideWritesAndRearms(t *testing.T) {
	persist := newFakePersistence()
	gone := persist.seed(owner, model.Task{Title: "gone"})
	reminders := &fakeReminders{}
	store := newLoadedStore(t, persist, reminders)

	require.NoError(t, persist.DeleteTask(context.Background(), gone.ID))
	added := persist.seed(owner, model.Task{Title: "added elsewhere"})

	require.NoError(t, store.Reload(context.Background()))

	assert.Equal(t, []string{"added elsewhere"}, titles(store.Tasks()))
	assert.Equal(t, []string{added.ID}, reminders.scheduled)
	assert.Equal(t, []string{gone.ID}, reminders.cancelled)
}

func TestStore_ReloadFailureKeepsCollection(t *testing.T) {
	persist := newFakePersistence()
	persist.seed(owner, model.Task{Title: "kept"})
	reminders := &fakeReminders{}
	store := newLoadedStore(t, persist, reminders)

	persist.failOn["list"] = errBackend
	assert.ErrorIs(t, store.Reload(context.Background()), ErrLoad)
	assert.Equal(t, []string{"kept"}, titles(store.Tasks()))
	assert.Empty(t, reminders.scheduled)
	assert.Empty(t, reminders.cancelled)
}

func TestStores_ReloadRefreshesCachedStore(t *testing.T) {
	persist := newFakePersistence()
	persist.seed(owner, model.Task{Title: "first"})
	stores := NewStores(persist, &fakeReminders{})

	cached, err := stores.For(context.Background(), owner)
	require.NoError(t, err)
	persist.seed(owner, model.Task{Title: "second"})

	reloaded, err := stores.Reload(context.Background(), owner)
	require.NoError(t, err)

	assert.Same(t, cached, reloaded)
	assert.Equal(t, []string{"second", "first"}, titles(cached.Tasks()))

	fresh, err := stores.Reload(context.Background(), 2)
	require.NoError(t, err)
	again, err := stores.For(context.Background(), 2)
	require.NoError(t, err)
	assert.Same(t, fresh, again)
}

func TestStores_SlowLoadDoesNotBlockOtherOwners(t *testing.T) {
	persist := newFakePersistence()
	persist.seed(owner, model.Task{Title: "slow"})
	persist.seed(2, model.Task{Title: "fast"})
	gate := make(chan struct{})
	persist.listGate[owner] = gate
	stores := NewStores(persist, nil)

	slowDone := make(chan *Store, 1)
	go func() {
		store, err := stores.For(context.Background(), owner)
		assert.NoError(t, err)
		slowDone <- store
	}()

	fastDone := make(chan *Store, 1)
	go func() {
		store, err := stores.For(context.Background(), 2)
		assert.NoError(t, err)
		fastDone <- store
	}()

	select {
	case store := <-fastDone:
		assert.Equal(t, []string{"fast"}, titles(store.Tasks()))
	case <-time.After(2 * time.Second):
		t.Fatal("owner 2 waited for owner 1's load")
	}

	close(gate)
	select {
	case store := <-slowDone:
		assert.Equal(t, []string{"slow"}, titles(store.Tasks()))
	case <-time.After(2 * time.Second):
		t.Fatal("owner 1 never finished loading")
	}
}
