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

package strata_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/strata"
	"github.com/tomoncle/strata/database"
	"github.com/tomoncle/strata/errors"
	"github.com/tomoncle/strata/testing/factorytest"
	"github.com/tomoncle/strata/types"
)

func captureLogger() (database.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return database.NewLogrusLogger(logger), hook
}

func TestHandleSuccess(t *testing.T) {
	logger, hook := captureLogger()
	resp := strata.Handle(context.Background(), logger, "memo.count", func(ctx context.Context) (int, error) {
		return 3, nil
	})
	assert.True(t, resp.Succeeded)
	assert.Equal(t, types.StatusSucceeded, resp.StatusCode)
	assert.Equal(t, 3, *resp.Payload)
	assert.Empty(t, hook.AllEntries())
}

func TestHandleHidesStorageDetail(t *testing.T) {
	logger, hook := captureLogger()
	cause := stderrors.New(`pq: relation "memos" does not exist`)
	resp := strata.Handle(context.Background(), logger, "memo.page", func(ctx context.Context) (int, error) {
		return 0, errors.NewStorageError("memos", "select", "no_table", cause)
	})

	assert.False(t, resp.Succeeded)
	assert.Nil(t, resp.Payload)
	assert.Equal(t, types.StatusFailed, resp.StatusCode)
	assert.Equal(t, "storage failure while executing select on memos", resp.Message)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "service operation failed", entry.Message)
	assert.Equal(t, "memo.page", entry.Data["op"])
	assert.ErrorIs(t, entry.Data["error"].(error), cause)
}

func TestHandleRecoversPanics(t *testing.T) {
	logger, hook := captureLogger()
	resp := strata.Handle(context.Background(), logger, "memo.boom", func(ctx context.Context) (string, error) {
		panic("boom")
	})
	assert.False(t, resp.Succeeded)
	assert.Equal(t, "internal error", resp.Message)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "service operation panicked", entry.Message)
	assert.Equal(t, "boom", entry.Data["panic"])
	assert.NotEmpty(t, entry.Data["stack"])
}

func TestHandleNilLogger(t *testing.T) {
	resp := strata.Handle[int](context.Background(), nil, "op", func(ctx context.Context) (int, error) {
		return 0, errors.NewArgumentError("x", 1, "bad")
	})
	assert.False(t, resp.Succeeded)
	assert.Equal(t, "invalid argument x=1: bad", resp.Message)
}

func TestHandleFind(t *testing.T) {
	hit := strata.HandleFind(context.Background(), nil, "memo.get", "memo", func(ctx context.Context) (memo, bool, error) {
		return memo{ID: 1}, true, nil
	})
	assert.True(t, hit.Succeeded)

	miss := strata.HandleFind(context.Background(), nil, "memo.get", "memo", func(ctx context.Context) (memo, bool, error) {
		return memo{}, false, nil
	})
	assert.False(t, miss.Succeeded)
	assert.Equal(t, types.StatusNotFound, miss.StatusCode)
	assert.Equal(t, "memo not found", miss.Message)
	assert.Nil(t, miss.Payload)
}

func TestServiceOperations(t *testing.T) {
	f := factorytest.New(t, models())
	s, err := strata.Resolve(f, newMemoService)
	require.NoError(t, err)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, s.Repo.Create(ctx, &memoRecord{Text: text}, "t"))
	}

	page := s.GetPage(ctx, 1, 2)
	require.True(t, page.Succeeded, page.Message)
	assert.Equal(t, 3, page.Payload.TotalRowCount)
	assert.Len(t, page.Payload.Results, 2)

	bad := s.GetPage(ctx, 0, 2)
	assert.False(t, bad.Succeeded)
	assert.Nil(t, bad.Payload)

	del := s.Delete(ctx, int64(1), "t")
	require.True(t, del.Succeeded)
	assert.True(t, *del.Payload)
	assert.Equal(t, types.StatusNotFound, s.Get(ctx, int64(1)).StatusCode)

	restore := s.Restore(ctx, int64(1), "t")
	require.True(t, restore.Succeeded)
	got := s.Get(ctx, int64(1))
	require.True(t, got.Succeeded)
	assert.Equal(t, "a", got.Payload.Text)

	list := s.List(ctx, types.NewQueryFilter("?TableAlias.text <> ?", "b"))
	require.True(t, list.Succeeded)
	assert.Len(t, *list.Payload, 2)
}

func TestMiddlewareScopesFactoryToRequest(t *testing.T) {
	var seen *strata.Factory
	handler := strata.Middleware(
		database.Once(database.StaticLoader(factorytest.Config())),
		strata.WithModels(models()),
		strata.WithLogger(database.NopLogger()),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := strata.FromContext(r.Context())
		require.True(t, ok)
		seen = f
		s, err := strata.Resolve(f, newMemoService)
		require.NoError(t, err)
		strata.WriteJSON(w, s.GetPage(r.Context(), 1, 10))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/memos", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body types.Response[types.PagedResult[memo]]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Succeeded)
	assert.Equal(t, 0, body.Payload.TotalRowCount)

	require.NotNil(t, seen)
	assert.Equal(t, strata.Disposed, seen.State())
}

func TestMiddlewareFailsWithoutConfiguration(t *testing.T) {
	called := false
	handler := strata.Middleware(database.StaticLoader(&database.Config{}), strata.WithLogger(database.NopLogger()))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body types.Response[struct{}]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Succeeded)
	assert.Contains(t, body.Message, "configuration missing")
}

func TestFromContextWithoutFactory(t *testing.T) {
	_, ok := strata.FromContext(context.Background())
	assert.False(t, ok)
}
