package api

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
)

// ControlClient calls the control service over an established connection.
// The connection must use the JSON content-subtype (see CodecName).
type ControlClient struct {
	cc grpc.ClientConnInterface
}

// NewControlClient wraps cc.
func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, c *ControlClient, method string, in *Req, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) Status(ctx context.Context, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[Empty, StatusResponse](ctx, c, "Status", &Empty{}, opts...)
}

func (c *ControlClient) SignIn(ctx context.Context, in *SignInRequest, opts ...grpc.CallOption) (*IdentityResponse, error) {
	return invoke[SignInRequest, IdentityResponse](ctx, c, "SignIn", in, opts...)
}

func (c *ControlClient) SignUp(ctx context.Context, in *SignUpRequest, opts ...grpc.CallOption) (*IdentityResponse, error) {
	return invoke[SignUpRequest, IdentityResponse](ctx, c, "SignUp", in, opts...)
}

func (c *ControlClient) SignOut(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := invoke[Empty, Empty](ctx, c, "SignOut", &Empty{}, opts...)
	return err
}

func (c *ControlClient) Refresh(ctx context.Context, opts ...grpc.CallOption) (*IdentityResponse, error) {
	return invoke[Empty, IdentityResponse](ctx, c, "Refresh", &Empty{}, opts...)
}

func (c *ControlClient) UpdateProfile(ctx context.Context, in *UpdateProfileRequest, opts ...grpc.CallOption) (*IdentityResponse, error) {
	return invoke[UpdateProfileRequest, IdentityResponse](ctx, c, "UpdateProfile", in, opts...)
}

func (c *ControlClient) ForgotPassword(ctx context.Context, email string, opts ...grpc.CallOption) error {
	_, err := invoke[ForgotPasswordRequest, Empty](ctx, c, "ForgotPassword", &ForgotPasswordRequest{Email: email}, opts...)
	return err
}

func (c *ControlClient) ResetPassword(ctx context.Context, in *ResetPasswordRequest, opts ...grpc.CallOption) error {
	_, err := invoke[ResetPasswordRequest, Empty](ctx, c, "ResetPassword", in, opts...)
	return err
}

func (c *ControlClient) ListChats(ctx context.Context, in *ListChatsRequest, opts ...grpc.CallOption) (*ListChatsResponse, error) {
	return invoke[ListChatsRequest, ListChatsResponse](ctx, c, "ListChats", in, opts...)
}

func (c *ControlClient) History(ctx context.Context, in *HistoryRequest, opts ...grpc.CallOption) (*HistoryResponse, error) {
	return invoke[HistoryRequest, HistoryResponse](ctx, c, "History", in, opts...)
}

func (c *ControlClient) Send(ctx context.Context, in *SendRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendRequest, SendResponse](ctx, c, "Send", in, opts...)
}

func (c *ControlClient) MarkRead(ctx context.Context, chatID string, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[ChatRequest, SendResponse](ctx, c, "MarkRead", &ChatRequest{ChatID: chatID}, opts...)
}

func (c *ControlClient) OpenChat(ctx context.Context, chatID string, opts ...grpc.CallOption) (*OpenChatResponse, error) {
	return invoke[ChatRequest, OpenChatResponse](ctx, c, "OpenChat", &ChatRequest{ChatID: chatID}, opts...)
}

func (c *ControlClient) CloseChat(ctx context.Context, chatID string, opts ...grpc.CallOption) (*CloseChatResponse, error) {
	return invoke[ChatRequest, CloseChatResponse](ctx, c, "CloseChat", &ChatRequest{ChatID: chatID}, opts...)
}

func (c *ControlClient) Search(ctx context.Context, in *SearchRequest, opts ...grpc.CallOption) (*SearchResponse, error) {
	return invoke[SearchRequest, SearchResponse](ctx, c, "Search", in, opts...)
}

func (c *ControlClient) Members(ctx context.Context, chatID string, opts ...grpc.CallOption) (*MembersResponse, error) {
	return invoke[ChatRequest, MembersResponse](ctx, c, "Members", &ChatRequest{ChatID: chatID}, opts...)
}

func (c *ControlClient) Posts(ctx context.Context, in *PostsRequest, opts ...grpc.CallOption) (*PostsResponse, error) {
	return invoke[PostsRequest, PostsResponse](ctx, c, "Posts", in, opts...)
}

func (c *ControlClient) ToggleLike(ctx context.Context, postID string, opts ...grpc.CallOption) (*ToggleLikeResponse, error) {
	return invoke[ToggleLikeRequest, ToggleLikeResponse](ctx, c, "ToggleLike", &ToggleLikeRequest{PostID: postID}, opts...)
}

func (c *ControlClient) CreatePost(ctx context.Context, in *CreatePostRequest, opts ...grpc.CallOption) (*PostResponse, error) {
	return invoke[CreatePostRequest, PostResponse](ctx, c, "CreatePost", in, opts...)
}

func (c *ControlClient) Upload(ctx context.Context, in *UploadRequest, opts ...grpc.CallOption) (*UploadResponse, error) {
	return invoke[UploadRequest, UploadResponse](ctx, c, "Upload", in, opts...)
}

func (c *ControlClient) Events(ctx context.Context, in *EventsRequest, opts ...grpc.CallOption) (*EventsResponse, error) {
	return invoke[EventsRequest, EventsResponse](ctx, c, "Events", in, opts...)
}

func (c *ControlClient) ToggleParticipation(ctx context.Context, eventID string, opts ...grpc.CallOption) (*EventResponse, error) {
	return invoke[EventRequest, EventResponse](ctx, c, "ToggleParticipation", &EventRequest{EventID: eventID}, opts...)
}

func (c *ControlClient) CheckIn(ctx context.Context, in *CheckInRequest, opts ...grpc.CallOption) (*EventResponse, error) {
	return invoke[CheckInRequest, EventResponse](ctx, c, "CheckIn", in, opts...)
}

func (c *ControlClient) Friends(ctx context.Context, in *FriendsRequest, opts ...grpc.CallOption) (*FriendsResponse, error) {
	return invoke[FriendsRequest, FriendsResponse](ctx, c, "Friends", in, opts...)
}

func (c *ControlClient) FriendAction(ctx context.Context, action, id string, opts ...grpc.CallOption) error {
	_, err := invoke[FriendActionRequest, Empty](ctx, c, "FriendAction", &FriendActionRequest{Action: action, ID: id}, opts...)
	return err
}

func (c *ControlClient) Notifications(ctx context.Context, in *NotificationsRequest, opts ...grpc.CallOption) (*NotificationsResponse, error) {
	return invoke[NotificationsRequest, NotificationsResponse](ctx, c, "Notifications", in, opts...)
}

func (c *ControlClient) ReadNotification(ctx context.Context, id string, opts ...grpc.CallOption) error {
	_, err := invoke[ReadNotificationRequest, Empty](ctx, c, "ReadNotification", &ReadNotificationRequest{ID: id}, opts...)
	return err
}

// Watch streams events to fn until ctx ends, the daemon closes the stream or fn
// returns an error.
func (c *ControlClient) Watch(ctx context.Context, in *WatchRequest, fn func(*WatchEvent) error, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ControlDesc.Streams[0], fullMethod("Watch"), opts...)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(WatchEvent)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}
