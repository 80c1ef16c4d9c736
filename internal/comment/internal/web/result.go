package web

import (
	"errors"

	"github.com/blogkit/livecomment/internal/comment/internal/domain"
	"github.com/blogkit/livecomment/internal/comment/internal/errs"
	"github.com/ecodeclub/ginx"
)

var (
	systemErrorResult = ginx.Result{
		Code: errs.SystemError.Code,
		Msg:  errs.SystemError.Msg,
	}
	invalidInputResult = ginx.Result{
		Code: errs.InvalidInput.Code,
		Msg:  errs.InvalidInput.Msg,
	}
	notFoundResult = ginx.Result{
		Code: errs.CommentNotFound.Code,
		Msg:  errs.CommentNotFound.Msg,
	}
	permissionDeniedResult = ginx.Result{
		Code: errs.PermissionDenied.Code,
		Msg:  errs.PermissionDenied.Msg,
	}
	commentDeletedResult = ginx.Result{
		Code: errs.CommentDeleted.Code,
		Msg:  errs.CommentDeleted.Msg,
	}
)

// toResult 把领域错误映射成给前端的错误码
func toResult(err error) ginx.Result {
	switch {
	case errors.Is(err, domain.ErrContentInvalid),
		errors.Is(err, domain.ErrParentNotFound):
		return invalidInputResult
	case errors.Is(err, domain.ErrCommentNotFound):
		return notFoundResult
	case errors.Is(err, domain.ErrNotAuthor),
		errors.Is(err, domain.ErrAnonymousImmutable):
		return permissionDeniedResult
	case errors.Is(err, domain.ErrCommentDeleted):
		return commentDeletedResult
	default:
		return systemErrorResult
	}
}
