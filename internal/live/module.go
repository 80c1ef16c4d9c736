// Copyright 2024 blogkit
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package live

import (
	"github.com/blogkit/livecomment/internal/live/internal/cache"
	"github.com/blogkit/livecomment/internal/live/internal/session"
	"github.com/blogkit/livecomment/internal/live/internal/web"
)

type Module struct {
	Hdl   *Handler
	Cache *CommentCache
}

type Handler = web.Handler

type CommentCache = cache.CommentCache
type CacheEntry = cache.Entry

// Session 也可以绕开 HTTP 层直接嵌进别的服务
type Session = session.LiveSession
type SessionConfig = session.Config
type Event = session.Event

const (
	KindConnectionChange = session.KindConnectionChange
	KindTypingSync       = session.KindTypingSync
)

var (
	ErrSessionClosed     = session.ErrSessionClosed
	ErrSessionNotStarted = session.ErrSessionNotStarted

	NewSession = session.New
)
