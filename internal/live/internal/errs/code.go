package errs

type ErrorCode struct {
	Code int
	Msg  string
}

var (
	SystemError     = ErrorCode{Code: 518001, Msg: "系统错误"}
	InvalidInput    = ErrorCode{Code: 518002, Msg: "非法输入"}
	SessionNotFound = ErrorCode{Code: 518003, Msg: "实时会话不存在"}
)
