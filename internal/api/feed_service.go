package api

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/matheus3301/meeple/internal/backend"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func (c *Control) Posts(ctx context.Context, req *PostsRequest) (*PostsResponse, error) {
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	var (
		posts []backend.Post
		err   error
	)
	if req.Refresh {
		posts, err = c.Feed.Refresh(ctx)
	} else {
		posts, err = c.Feed.Posts(ctx)
	}
	if err != nil {
		return nil, toStatus("posts", err)
	}
	return &PostsResponse{Posts: posts}, nil
}

// ToggleLike flips the like optimistically. On failure the feed is already
// rolled back when the error reaches the caller.
func (c *Control) ToggleLike(ctx context.Context, req *ToggleLikeRequest) (*ToggleLikeResponse, error) {
	if req.PostID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "post id is required")
	}
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	post, err := c.Feed.ToggleLike(ctx, req.PostID)
	if err != nil {
		return nil, toStatus("toggle like", err)
	}
	return &ToggleLikeResponse{Post: post}, nil
}

func (c *Control) CreatePost(ctx context.Context, req *CreatePostRequest) (*PostResponse, error) {
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	post, err := c.Feed.Create(ctx, req.Content, req.ImageURL)
	if err != nil {
		return nil, toStatus("create post", err)
	}
	return &PostResponse{Post: post}, nil
}

// Upload stores a file with the backend and returns its URL, for use as a post,
// message or avatar image.
func (c *Control) Upload(ctx context.Context, req *UploadRequest) (*UploadResponse, error) {
	name := filepath.Base(req.Filename)
	if name == "." || name == string(filepath.Separator) || len(req.Data) == 0 {
		return nil, grpcstatus.Error(codes.InvalidArgument, "file name and content are required")
	}
	if len(req.Data) > MaxUploadBytes {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "file is %d bytes, limit is %d", len(req.Data), MaxUploadBytes)
	}
	if _, _, err := c.requireIdentity(); err != nil {
		return nil, err
	}
	url, err := c.API.Upload(ctx, name, bytes.NewReader(req.Data))
	if err != nil {
		return nil, toStatus("upload", err)
	}
	c.logger.Info("file uploaded", zap.String("name", name), zap.Int("bytes", len(req.Data)))
	return &UploadResponse{URL: url}, nil
}
