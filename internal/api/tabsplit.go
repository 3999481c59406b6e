package api

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

const (
	SessionServiceName = "tabsplit.v1.SessionService"
	ReceiptServiceName = "tabsplit.v1.ReceiptService"
	DeviceServiceName  = "tabsplit.v1.DeviceService"
)

const (
	SessionServiceGetSessionProcedure     = "/tabsplit.v1.SessionService/GetSession"
	SessionServiceUpsertSessionProcedure  = "/tabsplit.v1.SessionService/UpsertSession"
	SessionServiceWatchSessionProcedure   = "/tabsplit.v1.SessionService/WatchSession"
	SessionServiceCreateSessionProcedure  = "/tabsplit.v1.SessionService/CreateSession"
	ReceiptServiceExtractReceiptProcedure = "/tabsplit.v1.ReceiptService/ExtractReceipt"
	DeviceServiceRegisterDeviceProcedure  = "/tabsplit.v1.DeviceService/RegisterDevice"
)

// SessionServiceHandler stores and broadcasts session documents.
type SessionServiceHandler interface {
	GetSession(context.Context, *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error)
	UpsertSession(context.Context, *connect.Request[UpsertSessionRequest]) (*connect.Response[UpsertSessionResponse], error)
	WatchSession(context.Context, *connect.Request[WatchSessionRequest], *connect.ServerStream[WatchSessionResponse]) error
	CreateSession(context.Context, *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error)
}

// NewSessionServiceHandler returns the path prefix and handler of the
// session service.
func NewSessionServiceHandler(svc SessionServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	get := connect.NewUnaryHandler(SessionServiceGetSessionProcedure, svc.GetSession, opts...)
	upsert := connect.NewUnaryHandler(SessionServiceUpsertSessionProcedure, svc.UpsertSession, opts...)
	watch := connect.NewServerStreamHandler(SessionServiceWatchSessionProcedure, svc.WatchSession, opts...)
	create := connect.NewUnaryHandler(SessionServiceCreateSessionProcedure, svc.CreateSession, opts...)
	return "/" + SessionServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SessionServiceGetSessionProcedure:
			get.ServeHTTP(w, r)
		case SessionServiceUpsertSessionProcedure:
			upsert.ServeHTTP(w, r)
		case SessionServiceWatchSessionProcedure:
			watch.ServeHTTP(w, r)
		case SessionServiceCreateSessionProcedure:
			create.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// SessionServiceClient is the client of the session service.
type SessionServiceClient interface {
	GetSession(context.Context, *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error)
	UpsertSession(context.Context, *connect.Request[UpsertSessionRequest]) (*connect.Response[UpsertSessionResponse], error)
	WatchSession(context.Context, *connect.Request[WatchSessionRequest]) (*connect.ServerStreamForClient[WatchSessionResponse], error)
	CreateSession(context.Context, *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error)
}

// NewSessionServiceClient returns a client for the server at baseURL.
func NewSessionServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) SessionServiceClient {
	opts = clientOptions(opts)
	return &sessionServiceClient{
		get:    connect.NewClient[GetSessionRequest, GetSessionResponse](httpClient, baseURL+SessionServiceGetSessionProcedure, opts...),
		upsert: connect.NewClient[UpsertSessionRequest, UpsertSessionResponse](httpClient, baseURL+SessionServiceUpsertSessionProcedure, opts...),
		watch:  connect.NewClient[WatchSessionRequest, WatchSessionResponse](httpClient, baseURL+SessionServiceWatchSessionProcedure, opts...),
		create: connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+SessionServiceCreateSessionProcedure, opts...),
	}
}

type sessionServiceClient struct {
	get    *connect.Client[GetSessionRequest, GetSessionResponse]
	upsert *connect.Client[UpsertSessionRequest, UpsertSessionResponse]
	watch  *connect.Client[WatchSessionRequest, WatchSessionResponse]
	create *connect.Client[CreateSessionRequest, CreateSessionResponse]
}

func (c *sessionServiceClient) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	return c.get.CallUnary(ctx, req)
}

func (c *sessionServiceClient) UpsertSession(ctx context.Context, req *connect.Request[UpsertSessionRequest]) (*connect.Response[UpsertSessionResponse], error) {
	return c.upsert.CallUnary(ctx, req)
}

func (c *sessionServiceClient) WatchSession(ctx context.Context, req *connect.Request[WatchSessionRequest]) (*connect.ServerStreamForClient[WatchSessionResponse], error) {
	return c.watch.CallServerStream(ctx, req)
}

func (c *sessionServiceClient) CreateSession(ctx context.Context, req *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	return c.create.CallUnary(ctx, req)
}

// ReceiptServiceHandler reads receipt images.
type ReceiptServiceHandler interface {
	ExtractReceipt(context.Context, *connect.Request[ExtractReceiptRequest]) (*connect.Response[ExtractReceiptResponse], error)
}

// NewReceiptServiceHandler returns the path prefix and handler of the
// receipt service.
func NewReceiptServiceHandler(svc ReceiptServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(handlerOptions(opts), connect.WithReadMaxBytes(receiptReadMaxBytes))
	extract := connect.NewUnaryHandler(ReceiptServiceExtractReceiptProcedure, svc.ExtractReceipt, opts...)
	return "/" + ReceiptServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ReceiptServiceExtractReceiptProcedure:
			extract.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// receiptReadMaxBytes fits a base64 encoded image of the maximum size.
const receiptReadMaxBytes = 16 << 20

// ReceiptServiceClient is the client of the receipt service.
type ReceiptServiceClient interface {
	ExtractReceipt(context.Context, *connect.Request[ExtractReceiptRequest]) (*connect.Response[ExtractReceiptResponse], error)
}

// NewReceiptServiceClient returns a client for the server at baseURL.
func NewReceiptServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) ReceiptServiceClient {
	return &receiptServiceClient{
		extract: connect.NewClient[ExtractReceiptRequest, ExtractReceiptResponse](httpClient, baseURL+ReceiptServiceExtractReceiptProcedure, clientOptions(opts)...),
	}
}

type receiptServiceClient struct {
	extract *connect.Client[ExtractReceiptRequest, ExtractReceiptResponse]
}

func (c *receiptServiceClient) ExtractReceipt(ctx context.Context, req *connect.Request[ExtractReceiptRequest]) (*connect.Response[ExtractReceiptResponse], error) {
	return c.extract.CallUnary(ctx, req)
}

// DeviceServiceHandler issues device tokens.
type DeviceServiceHandler interface {
	RegisterDevice(context.Context, *connect.Request[RegisterDeviceRequest]) (*connect.Response[RegisterDeviceResponse], error)
}

// NewDeviceServiceHandler returns the path prefix and handler of the device
// service.
func NewDeviceServiceHandler(svc DeviceServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	register := connect.NewUnaryHandler(DeviceServiceRegisterDeviceProcedure, svc.RegisterDevice, handlerOptions(opts)...)
	return "/" + DeviceServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case DeviceServiceRegisterDeviceProcedure:
			register.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// DeviceServiceClient is the client of the device service.
type DeviceServiceClient interface {
	RegisterDevice(context.Context, *connect.Request[RegisterDeviceRequest]) (*connect.Response[RegisterDeviceResponse], error)
}

// NewDeviceServiceClient returns a client for the server at baseURL.
func NewDeviceServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) DeviceServiceClient {
	return &deviceServiceClient{
		register: connect.NewClient[RegisterDeviceRequest, RegisterDeviceResponse](httpClient, baseURL+DeviceServiceRegisterDeviceProcedure, clientOptions(opts)...),
	}
}

type deviceServiceClient struct {
	register *connect.Client[RegisterDeviceRequest, RegisterDeviceResponse]
}

func (c *deviceServiceClient) RegisterDevice(ctx context.Context, req *connect.Request[RegisterDeviceRequest]) (*connect.Response[RegisterDeviceResponse], error) {
	return c.register.CallUnary(ctx, req)
}
