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

package domain

import "errors"

// 这一组错误是永久性失败：重试不会改变结果，所以重试层必须原样放行
var (
	ErrContentInvalid     = errors.New("评论内容非法")
	ErrParentNotFound     = errors.New("父评论不存在")
	ErrCommentNotFound    = errors.New("评论不存在")
	ErrCommentDeleted     = errors.New("评论已被删除")
	ErrNotAuthor          = errors.New("不是评论的作者")
	ErrAnonymousImmutable = errors.New("匿名评论不允许编辑或删除")
)

// Permanent 判断 err 是否属于永久性失败（校验、权限、不存在这一类）。
// 其余错误一律当作瞬时失败处理，可以重试
func Permanent(err error) bool {
	for _, target := range []error{
		ErrContentInvalid,
		ErrParentNotFound,
		ErrCommentNotFound,
		ErrCommentDeleted,
		ErrNotAuthor,
		ErrAnonymousImmutable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
