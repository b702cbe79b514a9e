package types

import "github.com/matrix-org/util"

// JSONResponse renders an ErrorResult in matrix-org/util's JSONResponse
// shape (the same one the teacher's HTTP handlers return), so a thin
// transport layer sitting in front of this engine can return an
// ErrorResult without re-deriving a status code from its ErrorCode.
func (e *ErrorResult) JSONResponse() util.JSONResponse {
	switch e.Code {
	case CannotPeek:
		return util.JSONResponse{
			Code: 403,
			JSON: struct {
				ErrCode string `json:"errcode"`
				Err     string `json:"error"`
			}{ErrCode: "M_FORBIDDEN", Err: "cannot peek into this room"},
		}
	default:
		return util.JSONResponse{
			Code: 500,
			JSON: struct {
				ErrCode string `json:"errcode"`
				Err     string `json:"error"`
			}{ErrCode: "M_UNKNOWN", Err: string(e.Code)},
		}
	}
}
