package errors

import "errors"

// ErrSourceUnavailable 考勤数据源不可用（数据库查询失败、超时等）
// 仓储层包装底层错误，服务层与处理器据此返回 503
var ErrSourceUnavailable = errors.New("考勤数据源暂不可用，请稍后重试")
