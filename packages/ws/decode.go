package ws

import (
	"context"

	"github.com/abdul-hamid-achik/ws/packages/async"
	"github.com/abdul-hamid-achik/ws/packages/json"
	"github.com/abdul-hamid-achik/ws/packages/params"
)

// Decode maps a JSON call onto a typed value. Bodies that do not fit T fail
// with KindParsing.
func Decode[T any](call *async.Call[json.JSON]) *async.Call[T] {
	return async.TryMap(call, func(body json.JSON) (T, error) {
		var v T
		if err := body.Decode(&v); err != nil {
			return v, &Error{Kind: KindParsing, Err: err}
		}
		return v, nil
	})
}

// DecodeCollection maps the array at keyPath onto a slice of T. An empty
// keyPath decodes the whole body.
func DecodeCollection[T any](call *async.Call[json.JSON], keyPath string) *async.Call[[]T] {
	return async.TryMap(call, func(body json.JSON) ([]T, error) {
		items, err := body.ArrayAt(keyPath)
		if err != nil {
			return nil, &Error{Kind: KindShape, Err: err}
		}
		out := make([]T, 0, len(items))
		for _, item := range items {
			var v T
			if err := item.Decode(&v); err != nil {
				return nil, &Error{Kind: KindParsing, Err: err}
			}
			out = append(out, v)
		}
		return out, nil
	})
}

// FetchCollection fetches r and decodes the array at its effective
// collection key path.
func FetchCollection[T any](ctx context.Context, r *Request) *async.Call[[]T] {
	return DecodeCollection[T](r.Fetch(ctx), r.CollectionKeyPath())
}

// GetCollection is the typed counterpart of WS.GetJSON for list endpoints.
// The result is delivered on the client's executor.
func GetCollection[T any](ctx context.Context, w *WS, url string, p *params.Params) *async.Call[[]T] {
	return FetchCollection[T](ctx, w.GetRequest(url, p)).ReceiveOn(w.Executor)
}
