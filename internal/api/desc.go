package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "meeple.v1.Control"

// ControlServer is the daemon side of the control service.
type ControlServer interface {
	Status(context.Context, *Empty) (*StatusResponse, error)
	SignIn(context.Context, *SignInRequest) (*IdentityResponse, error)
	SignUp(context.Context, *SignUpRequest) (*IdentityResponse, error)
	SignOut(context.Context, *Empty) (*Empty, error)
	Refresh(context.Context, *Empty) (*IdentityResponse, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*IdentityResponse, error)
	ForgotPassword(context.Context, *ForgotPasswordRequest) (*Empty, error)
	ResetPassword(context.Context, *ResetPasswordRequest) (*Empty, error)
	ListChats(context.Context, *ListChatsRequest) (*ListChatsResponse, error)
	History(context.Context, *HistoryRequest) (*HistoryResponse, error)
	Send(context.Context, *SendRequest) (*SendResponse, error)
	MarkRead(context.Context, *ChatRequest) (*SendResponse, error)
	OpenChat(context.Context, *ChatRequest) (*OpenChatResponse, error)
	CloseChat(context.Context, *ChatRequest) (*CloseChatResponse, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
	Members(context.Context, *ChatRequest) (*MembersResponse, error)
	Posts(context.Context, *PostsRequest) (*PostsResponse, error)
	ToggleLike(context.Context, *ToggleLikeRequest) (*ToggleLikeResponse, error)
	CreatePost(context.Context, *CreatePostRequest) (*PostResponse, error)
	Upload(context.Context, *UploadRequest) (*UploadResponse, error)
	Events(context.Context, *EventsRequest) (*EventsResponse, error)
	ToggleParticipation(context.Context, *EventRequest) (*EventResponse, error)
	CheckIn(context.Context, *CheckInRequest) (*EventResponse, error)
	Friends(context.Context, *FriendsRequest) (*FriendsResponse, error)
	FriendAction(context.Context, *FriendActionRequest) (*Empty, error)
	Notifications(context.Context, *NotificationsRequest) (*NotificationsResponse, error)
	ReadNotification(context.Context, *ReadNotificationRequest) (*Empty, error)
	Watch(*WatchRequest, grpc.ServerStream) error
}

// ControlDesc describes the control service for grpc.Server.RegisterService.
var ControlDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", ControlServer.Status),
		unary("SignIn", ControlServer.SignIn),
		unary("SignUp", ControlServer.SignUp),
		unary("SignOut", ControlServer.SignOut),
		unary("Refresh", ControlServer.Refresh),
		unary("UpdateProfile", ControlServer.UpdateProfile),
		unary("ForgotPassword", ControlServer.ForgotPassword),
		unary("ResetPassword", ControlServer.ResetPassword),
		unary("ListChats", ControlServer.ListChats),
		unary("History", ControlServer.History),
		unary("Send", ControlServer.Send),
		unary("MarkRead", ControlServer.MarkRead),
		unary("OpenChat", ControlServer.OpenChat),
		unary("CloseChat", ControlServer.CloseChat),
		unary("Search", ControlServer.Search),
		unary("Members", ControlServer.Members),
		unary("Posts", ControlServer.Posts),
		unary("ToggleLike", ControlServer.ToggleLike),
		unary("CreatePost", ControlServer.CreatePost),
		unary("Upload", ControlServer.Upload),
		unary("Events", ControlServer.Events),
		unary("ToggleParticipation", ControlServer.ToggleParticipation),
		unary("CheckIn", ControlServer.CheckIn),
		unary("Friends", ControlServer.Friends),
		unary("FriendAction", ControlServer.FriendAction),
		unary("Notifications", ControlServer.Notifications),
		unary("ReadNotification", ControlServer.ReadNotification),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ControlServer).Watch(in, stream)
			},
		},
	},
	Metadata: "meeple/v1/control",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(ControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*Req))
			})
		},
	}
}
