/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import "net/http"

// Fixed status codes carried by every Response.
const (
	StatusSucceeded = http.StatusOK
	StatusFailed    = http.StatusInternalServerError
	StatusNotFound  = http.StatusNotFound
)

// Response is the envelope returned by every service operation. Payload is
// nil whenever Succeeded is false.
type Response[T any] struct {
	Succeeded  bool   `json:"succeeded"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Payload    *T     `json:"payload,omitempty"`
}

// OK wraps payload in a successful envelope.
func OK[T any](payload T) *Response[T] {
	return &Response[T]{
		Succeeded:  true,
		StatusCode: StatusSucceeded,
		Message:    "ok",
		Payload:    &payload,
	}
}

// Fail returns a failed envelope with the given summary message.
func Fail[T any](message string) *Response[T] {
	return &Response[T]{
		Succeeded:  false,
		StatusCode: StatusFailed,
		Message:    message,
	}
}

// NotFound returns an unsuccessful envelope for a lookup that matched nothing.
// It is not a failure of the storage layer.
func NotFound[T any](message string) *Response[T] {
	return &Response[T]{
		Succeeded:  false,
		StatusCode: StatusNotFound,
		Message:    message,
	}
}
