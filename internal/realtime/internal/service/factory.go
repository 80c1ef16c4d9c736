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

package service

import (
	"github.com/ecodeclub/mq-api"
)

// Factory 每个实时会话一个 Manager，工厂只负责把共享依赖配进去
type Factory struct {
	q        mq.MQ
	presence PresenceStore
}

func NewFactory(q mq.MQ, presence PresenceStore) *Factory {
	return &Factory{q: q, presence: presence}
}

func (f *Factory) New(postSlug string, identity Identity) *Manager {
	if identity.ClientID == "" {
		identity = NewAnonymousIdentity()
	}
	return NewManager(f.q, f.presence, postSlug, identity)
}
