package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAPI blocks like calls on gate when set, so tests can observe the
// optimistic state before the server answers.
type fakeAPI struct {
	mu      sync.Mutex
	posts   []backend.Post
	fetches int
	likeErr error
	gate    chan struct{}
	entered chan struct{}
	calls   []string
}

func (f *fakeAPI) Posts(ctx context.Context, skip, take int) (*backend.Page[backend.Post], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	items := append([]backend.Post(nil), f.posts...)
	return &backend.Page[backend.Post]{Items: items, Total: len(items)}, nil
}

func (f *fakeAPI) call(name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	gate, entered, err := f.gate, f.entered, f.likeErr
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	return err
}

func (f *fakeAPI) LikePost(ctx context.Context, id string) error   { return f.call("like " + id) }
func (f *fakeAPI) UnlikePost(ctx context.Context, id string) error { return f.call("unlike " + id) }

func (f *fakeAPI) CreatePost(ctx context.Context, content, imageURL string) (*backend.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := backend.Post{ID: fmt.Sprintf("p%d", len(f.posts)+1), Content: content, ImageURL: imageURL}
	f.posts = append([]backend.Post{p}, f.posts...)
	return &p, nil
}

// viewer is a switchable signed-in user.
type viewer struct {
	mu sync.Mutex
	id *backend.Identity
}

func (v *viewer) Identity() *backend.Identity {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.id
}

func (v *viewer) set(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.id = &backend.Identity{ID: id}
}

func newService(api *fakeAPI) *Service {
	return NewService(api, cache.New(nil), nil, zap.NewNop())
}

func TestToggleLikeOptimisticThenCommitted(t *testing.T) {
	api := &fakeAPI{
		posts:   []backend.Post{{ID: "p1", LikeCount: 7}},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := newService(api)

	done := make(chan error, 1)
	go func() {
		_, err := s.ToggleLike(context.Background(), "p1")
		done <- err
	}()

	<-api.entered
	p, ok := s.Cached("p1")
	require.True(t, ok)
	assert.True(t, p.LikedByUser, "like must show before the server answers")
	assert.Equal(t, 8, p.LikeCount)

	close(api.gate)
	require.NoError(t, <-done)
	p, _ = s.Cached("p1")
	assert.True(t, p.LikedByUser)
	assert.Equal(t, 8, p.LikeCount)
	assert.Equal(t, []string{"like p1"}, api.calls)
}

func TestToggleLikeRollsBackOnFailure(t *testing.T) {
	api := &fakeAPI{
		posts:   []backend.Post{{ID: "p1", LikeCount: 7}, {ID: "p2", LikeCount: 1, LikedByUser: true}},
		likeErr: errors.New("503"),
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := newService(api)

	done := make(chan error, 1)
	go func() {
		_, err := s.ToggleLike(context.Background(), "p1")
		done <- err
	}()
	<-api.entered
	p, _ := s.Cached("p1")
	assert.Equal(t, 8, p.LikeCount)

	close(api.gate)
	require.Error(t, <-done)
	p, _ = s.Cached("p1")
	assert.False(t, p.LikedByUser)
	assert.Equal(t, 7, p.LikeCount)

	// The feed was invalidated: the next read refetches.
	_, err := s.Posts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, api.fetches)
}

func TestToggleUnlike(t *testing.T) {
	api := &fakeAPI{posts: []backend.Post{{ID: "p2", LikeCount: 1, LikedByUser: true}}}
	s := newService(api)

	p, err := s.ToggleLike(context.Background(), "p2")
	require.NoError(t, err)
	assert.False(t, p.LikedByUser)
	assert.Equal(t, 0, p.LikeCount)
	assert.Equal(t, []string{"unlike p2"}, api.calls)
}

func TestToggleUnknownPost(t *testing.T) {
	s := newService(&fakeAPI{})
	_, err := s.ToggleLike(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestSetLikedDoesNotTouchOtherPosts(t *testing.T) {
	orig := []backend.Post{{ID: "a", LikeCount: 1}, {ID: "b", LikeCount: 2}}
	got := setLiked(orig, "b", true)
	assert.Equal(t, 1, got[0].LikeCount)
	assert.Equal(t, 3, got[1].LikeCount)
	assert.Equal(t, 2, orig[1].LikeCount, "input must not be modified")
}

func TestSetLikedIsIdempotent(t *testing.T) {
	// Two toggles that read the same snapshot both send a like; the cache
	// must agree with them and count it once.
	posts := []backend.Post{{ID: "a", LikeCount: 4}}
	once := setLiked(posts, "a", true)
	twice := setLiked(once, "a", true)
	assert.True(t, twice[0].LikedByUser)
	assert.Equal(t, 5, twice[0].LikeCount)

	back := setLiked(twice, "a", false)
	assert.Equal(t, 4, back[0].LikeCount)
	assert.Equal(t, 4, setLiked(back, "a", false)[0].LikeCount)
}

func TestConcurrentTogglesFromOneSnapshotAgree(t *testing.T) {
	api := &fakeAPI{posts: []backend.Post{{ID: "p1", LikeCount: 2}}}
	c := cache.New(nil)
	s := NewService(api, c, nil, zap.NewNop())
	_, err := s.Posts(context.Background())
	require.NoError(t, err)

	// Both ops were derived from the unliked snapshot.
	m1 := c.Mutate(PostsPrefix, func(old any) any { return setLiked(old.([]backend.Post), "p1", true) })
	m2 := c.Mutate(PostsPrefix, func(old any) any { return setLiked(old.([]backend.Post), "p1", true) })
	require.NoError(t, c.Commit(m1.ID))
	require.NoError(t, c.Commit(m2.ID))

	p, ok := s.Cached("p1")
	require.True(t, ok)
	assert.True(t, p.LikedByUser)
	assert.Equal(t, 3, p.LikeCount)
}

func TestFeedIsKeptPerViewer(t *testing.T) {
	api := &fakeAPI{posts: []backend.Post{{ID: "p1", LikeCount: 1, LikedByUser: true}}}
	v := &viewer{}
	s := NewService(api, cache.New(nil), v, zap.NewNop())
	ctx := context.Background()

	v.set("ana")
	posts, err := s.Posts(ctx)
	require.NoError(t, err)
	assert.True(t, posts[0].LikedByUser)

	api.mu.Lock()
	api.posts = []backend.Post{{ID: "p1", LikeCount: 1}}
	api.mu.Unlock()

	v.set("bob")
	posts, err = s.Posts(ctx)
	require.NoError(t, err)
	assert.False(t, posts[0].LikedByUser, "bob must not see ana's feed")
	assert.Equal(t, 2, api.fetches)

	p, err := s.ToggleLike(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p.LikedByUser)
	assert.Equal(t, []string{"like p1"}, api.calls)
}

func TestCreateInvalidatesFeed(t *testing.T) {
	api := &fakeAPI{posts: []backend.Post{{ID: "p1"}}}
	s := newService(api)
	ctx := context.Background()

	_, err := s.Posts(ctx)
	require.NoError(t, err)
	p, err := s.Create(ctx, "game night recap", "")
	require.NoError(t, err)
	assert.Equal(t, "p2", p.ID)

	posts, err := s.Posts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "p2", posts[0].ID)

	_, err = s.Create(ctx, "", "")
	assert.ErrorIs(t, err, ErrEmptyPost)
	_, err = s.Create(ctx, " \n ", "")
	assert.ErrorIs(t, err, ErrEmptyPost)
}
