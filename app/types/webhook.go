package types

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-billing/app/gateway"
)

// MaxCallbackBodyBytes bounds provider webhook payloads.
const MaxCallbackBodyBytes = 1 << 20

// NewCallbackFromContext captures the raw webhook request. The body is kept
// byte-for-byte because signatures are computed over it.
func NewCallbackFromContext(ctx echo.Context) (gateway.Callback, error) {
	req := ctx.Request()
	cb := gateway.Callback{
		Query:  req.URL.Query(),
		Header: req.Header.Clone(),
	}
	if req.Body == nil || req.Method == http.MethodGet {
		return cb, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(ctx.Response(), req.Body, MaxCallbackBodyBytes))
	if err != nil {
		return cb, fmt.Errorf("read callback body: %w", err)
	}
	cb.Body = body
	return cb, nil
}
