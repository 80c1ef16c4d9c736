package errs

var (
	SystemError      = ErrorCode{Code: 517001, Msg: "系统错误"}
	InvalidInput     = ErrorCode{Code: 517002, Msg: "请求参数非法"}
	CommentNotFound  = ErrorCode{Code: 517003, Msg: "评论不存在"}
	PermissionDenied = ErrorCode{Code: 517004, Msg: "没有操作权限"}
	CommentDeleted   = ErrorCode{Code: 517005, Msg: "评论已被删除"}
)

type ErrorCode struct {
	Code int
	Msg  string
}
