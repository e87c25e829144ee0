// Package handler provides type-safe HTTP request handling.
//
// A HandlerFunc binds the request into a typed value and returns a Response.
// Wrap adapts it to http.HandlerFunc:
//
//	type StatusRequest struct {
//		UserID string `path:"userId"`
//	}
//
//	func status(ctx handler.Context, req StatusRequest) handler.Response {
//		active, err := svc.Status(ctx, req.UserID)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(map[string]bool{"subscriptionActive": active})
//	}
//
//	r.Get("/subscription-status/{userId}", handler.Wrap(status,
//		handler.WithBinders[handler.Context, StatusRequest](binder.Path(chi.URLParam)),
//	))
//
// # Responses
//
//	handler.JSON(v)                         // 200 with v as the body
//	handler.JSON(v, handler.WithJSONStatus(201))
//	handler.JSONError(err)                  // {"error":{"code","message","details"}}
//	handler.Empty()                         // 204
//	handler.EmptyWithStatus(http.StatusOK)  // 200, no body
//
// JSONError derives the status from the error chain: validator.ValidationErrors
// map to 422 with per-field details, HTTPError values carry their own code,
// anything else is a 500 without the error text.
//
// # Errors
//
// Binding and render failures go to the ErrorHandler. NewErrorHandler logs the
// failure with the request id and renders it through an ErrorRenderer, which
// is where an application maps its domain errors to HTTPError values.
package handler
