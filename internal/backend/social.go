package backend

import (
	"context"
	"net/http"
)

// Friends lists accepted friendships.
func (c *Client) Friends(ctx context.Context) ([]Friend, error) {
	var friends []Friend
	if err := c.do(ctx, http.MethodGet, "/friends", nil, nil, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// FriendRequests lists pending incoming requests.
func (c *Client) FriendRequests(ctx context.Context) ([]FriendRequest, error) {
	var reqs []FriendRequest
	if err := c.do(ctx, http.MethodGet, "/friends/requests", nil, nil, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// SendFriendRequest asks userID to become a friend.
func (c *Client) SendFriendRequest(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/friends/requests", nil, map[string]string{"userId": userID}, nil)
}

func (c *Client) AcceptFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/friends/requests/"+seg(requestID)+"/accept", nil, nil, nil)
}

func (c *Client) RejectFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, http.MethodPost, "/friends/requests/"+seg(requestID)+"/reject", nil, nil, nil)
}

// Posts returns one page of the social feed.
func (c *Client) Posts(ctx context.Context, skip, take int) (*Page[Post], error) {
	var page Page[Post]
	if err := c.do(ctx, http.MethodGet, "/posts", pageQuery(skip, take), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreatePost publishes a feed entry.
func (c *Client) CreatePost(ctx context.Context, content, imageURL string) (*Post, error) {
	body := map[string]string{"content": content}
	if imageURL != "" {
		body["imageUrl"] = imageURL
	}
	var p Post
	if err := c.do(ctx, http.MethodPost, "/posts", nil, body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) LikePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodPost, "/posts/"+seg(postID)+"/like", nil, nil, nil)
}

func (c *Client) UnlikePost(ctx context.Context, postID string) error {
	return c.do(ctx, http.MethodDelete, "/posts/"+seg(postID)+"/like", nil, nil, nil)
}
