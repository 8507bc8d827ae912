// Package httpapi exposes the ephemera actions as a JSON API on chi.
//
// Handlers translate requests into actions calls and map *actions.Error
// kinds onto status codes. Every error body is {"error": "<message>"}.
// Sessions travel as "Authorization: Bearer <token>".
package httpapi
