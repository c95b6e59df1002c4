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

package strata

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/types"
)

type factoryKey struct{}

// NewContext returns ctx carrying f.
func NewContext(ctx context.Context, f *Factory) context.Context {
	return context.WithValue(ctx, factoryKey{}, f)
}

// FromContext returns the factory stored by Middleware or NewContext.
func FromContext(ctx context.Context) (*Factory, bool) {
	f, ok := ctx.Value(factoryKey{}).(*Factory)
	return f, ok && f != nil
}

// Middleware gives every request its own Factory: initialized before the
// handler runs and disposed when it returns. Share the configuration by
// passing a database.Once loader. A request whose unit of work cannot
// start gets a failed envelope and the handler is not called.
func Middleware(loader database.ConfigLoader, opts ...Option) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f := NewFactory(loader, opts...)
			if err := f.Initialize(r.Context()); err != nil {
				f.Logger().Error("unit of work failed to start", "path", r.URL.Path, "error", err)
				WriteJSON(w, types.Fail[struct{}](errors.Summary(err)))
				return
			}
			defer func() {
				if err := f.Dispose(); err != nil {
					f.Logger().Warn("failed to dispose unit of work", "error", err)
				}
			}()
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), f)))
		})
	}
}

// WriteJSON writes resp with its status code.
func WriteJSON[T any](w http.ResponseWriter, resp *types.Response[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
