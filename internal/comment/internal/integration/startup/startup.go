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

package startup

import (
	"github.com/blogkit/livecomment/internal/comment"
	testioc "github.com/blogkit/livecomment/internal/test/ioc"
)

func InitModule() (*comment.Module, error) {
	return comment.InitModule(testioc.InitDB(), testioc.InitCache(), testioc.InitMQ())
}

func InitHandler() (*comment.Handler, error) {
	m, err := InitModule()
	if err != nil {
		return nil, err
	}
	return m.Hdl, nil
}
