// Package ws is an asynchronous JSON web-service client.
//
// A WS client holds the configuration shared by every call to one backend:
// base URL, default headers, request adapter and retrier, error handler and
// logging. Its verb methods (GetJSON, PostVoid, PutMultipart, ...) build a
// Request from that configuration and return an *async.Call delivered on the
// client's Executor.
//
// Every call goes through the same pipeline: adapt the request, exchange it
// over the transport, ask the retrier on failure, parse the body, check the
// collection key path and schema, then run the error handler. Failures are
// reported as *Error values whose Kind tells which step failed.
//
//	api := ws.New("https://api.example.com", ws.WithCollectionKeyPath("data"))
//	users, err := ws.GetCollection[User](ctx, api, "/users", nil).Await(ctx)
package ws
