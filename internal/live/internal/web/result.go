package web

import (
	"github.com/blogkit/livecomment/internal/live/internal/errs"
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
	sessionNotFoundResult = ginx.Result{
		Code: errs.SessionNotFound.Code,
		Msg:  errs.SessionNotFound.Msg,
	}
)
