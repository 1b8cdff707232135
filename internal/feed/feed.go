// Package feed serves the social feed from the query cache with optimistic likes.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/meeple/internal/backend"
	"github.com/matheus3301/meeple/internal/cache"
	"go.uber.org/zap"
)

// PostsPrefix prefixes the per-user cache key of the feed.
const PostsPrefix = "posts:"

// PageSize is how many posts one fetch loads.
const PageSize = 50

// ErrPostNotFound is returned when the post is not in the cached feed.
var ErrPostNotFound = errors.New("post not found")

// ErrEmptyPost is returned when a post has neither text nor image.
var ErrEmptyPost = errors.New("post needs content or an image")

// API is the subset of the backend client the feed needs.
type API interface {
	Posts(ctx context.Context, skip, take int) (*backend.Page[backend.Post], error)
	LikePost(ctx context.Context, postID string) error
	UnlikePost(ctx context.Context, postID string) error
	CreatePost(ctx context.Context, content, imageURL string) (*backend.Post, error)
}

// Viewer reports who the feed is fetched for. LikedByUser depends on it.
type Viewer interface {
	Identity() *backend.Identity
}

// Service reads and mutates the cached feed.
type Service struct {
	api    API
	cache  *cache.Cache
	viewer Viewer
	logger *zap.Logger
}

// NewService creates a feed service. A nil viewer keeps one anonymous feed.
func NewService(api API, c *cache.Cache, viewer Viewer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, cache: c, viewer: viewer, logger: logger.Named("feed")}
}

// key is the feed entry of the current viewer.
func (s *Service) key() string {
	if s.viewer == nil {
		return PostsPrefix
	}
	if id := s.viewer.Identity(); id != nil {
		return PostsPrefix + id.ID
	}
	return PostsPrefix
}

// Posts returns the cached feed, fetching it when missing or stale.
func (s *Service) Posts(ctx context.Context) ([]backend.Post, error) {
	v, err := s.cache.Fetch(ctx, s.key(), s.fetch)
	if err != nil {
		return nil, err
	}
	posts, _ := v.([]backend.Post)
	return posts, nil
}

// Refresh refetches the feed.
func (s *Service) Refresh(ctx context.Context) ([]backend.Post, error) {
	v, err := s.cache.Refetch(ctx, s.key(), s.fetch)
	if err != nil {
		return nil, err
	}
	posts, _ := v.([]backend.Post)
	return posts, nil
}

// Create publishes a post and invalidates the feed so the next read includes it.
func (s *Service) Create(ctx context.Context, content, imageURL string) (backend.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" && imageURL == "" {
		return backend.Post{}, ErrEmptyPost
	}
	p, err := s.api.CreatePost(ctx, content, imageURL)
	if err != nil {
		return backend.Post{}, fmt.Errorf("create post: %w", err)
	}
	s.cache.Invalidate(s.key())
	return *p, nil
}

func (s *Service) fetch(ctx context.Context) (any, error) {
	page, err := s.api.Posts(ctx, 0, PageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}
	return page.Items, nil
}

// ToggleLike sets the like on postID to the opposite of what the cache shows,
// then calls the backend. On failure the cached post is restored and the feed is
// invalidated.
func (s *Service) ToggleLike(ctx context.Context, postID string) (backend.Post, error) {
	key := s.key()
	posts, err := s.Posts(ctx)
	if err != nil {
		return backend.Post{}, err
	}
	current, ok := find(posts, postID)
	if !ok {
		return backend.Post{}, ErrPostNotFound
	}

	liked := !current.LikedByUser
	m := s.cache.Mutate(key, func(old any) any {
		posts, _ := old.([]backend.Post)
		return setLiked(posts, postID, liked)
	})

	call := s.api.LikePost
	if !liked {
		call = s.api.UnlikePost
	}
	if err := call(ctx, postID); err != nil {
		if rerr := s.cache.Rollback(m.ID); rerr != nil {
			s.logger.Debug("like already settled", zap.Error(rerr))
		}
		s.cache.Invalidate(key)
		s.logger.Warn("like toggle failed, rolled back", zap.String("post_id", postID), zap.Error(err))
		return current, fmt.Errorf("toggle like: %w", err)
	}
	if err := s.cache.Commit(m.ID); err != nil {
		// Purged while in flight, the feed belongs to someone else now.
		s.logger.Debug("like already settled", zap.Error(err))
	}
	if v, ok := s.cache.Get(key); ok {
		posts, _ := v.([]backend.Post)
		if updated, ok := find(posts, postID); ok {
			return updated, nil
		}
	}
	updated, _ := find(setLiked([]backend.Post{current}, postID, liked), postID)
	return updated, nil
}

// Cached returns the post as currently held by the cache, optimistic changes included.
func (s *Service) Cached(postID string) (backend.Post, bool) {
	v, ok := s.cache.Get(s.key())
	if !ok {
		return backend.Post{}, false
	}
	posts, _ := v.([]backend.Post)
	return find(posts, postID)
}

func find(posts []backend.Post, id string) (backend.Post, bool) {
	for _, p := range posts {
		if p.ID == id {
			return p, true
		}
	}
	return backend.Post{}, false
}

// setLiked returns a copy of posts with the like on id set to liked. The count
// only moves when the flag changes.
func setLiked(posts []backend.Post, id string, liked bool) []backend.Post {
	out := make([]backend.Post, len(posts))
	copy(out, posts)
	for i := range out {
		if out[i].ID != id || out[i].LikedByUser == liked {
			continue
		}
		out[i].LikedByUser = liked
		if liked {
			out[i].LikeCount++
		} else {
			out[i].LikeCount--
		}
	}
	return out
}
