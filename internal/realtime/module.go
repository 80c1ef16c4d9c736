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

package realtime

import (
	"github.com/blogkit/livecomment/internal/realtime/internal/domain"
	"github.com/blogkit/livecomment/internal/realtime/internal/service"
)

type Module struct {
	Factory  *Factory
	Presence PresenceStore
}

type Factory = service.Factory
type Manager = service.Manager
type Identity = service.Identity
type EventHandler = service.EventHandler
type PresenceStore = service.PresenceStore

type Event = domain.Event
type EventComment = domain.Comment
type Typing = domain.Typing
type Presence = domain.Presence
type Status = domain.Status

const (
	KindCommentNew    = domain.KindCommentNew
	KindCommentUpdate = domain.KindCommentUpdate
	KindCommentDelete = domain.KindCommentDelete
	KindTyping        = domain.KindTyping
	KindPresenceSync  = domain.KindPresenceSync

	StatusUnsubscribed = domain.StatusUnsubscribed
	StatusSubscribing  = domain.StatusSubscribing
	StatusSubscribed   = domain.StatusSubscribed
	StatusReconnecting = domain.StatusReconnecting
)

var (
	NewAnonymousIdentity = service.NewAnonymousIdentity
	NewFactory           = service.NewFactory
)
