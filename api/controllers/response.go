package controllers

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"monitoring-service/service/monitoring"
)

// APIResponse 统一API响应结构
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

const (
	statusOK    = 0
	statusError = -1
)

// renderSuccess 输出成功响应
func renderSuccess(w http.ResponseWriter, r *http.Request, httpStatus int, msg string, data interface{}) {
	render.Status(r, httpStatus)
	render.JSON(w, r, APIResponse{
		Status: statusOK,
		Msg:    msg,
		Data:   data,
	})
}

// renderError 输出错误响应
func renderError(w http.ResponseWriter, r *http.Request, httpStatus int, msg string) {
	render.Status(r, httpStatus)
	render.JSON(w, r, APIResponse{
		Status: statusError,
		Msg:    msg,
	})
}

// renderServiceError 按监控服务的错误类型映射 HTTP 状态码
func renderServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	httpStatus := http.StatusInternalServerError
	switch {
	case errors.Is(err, monitoring.ErrRuleNotFound), errors.Is(err, monitoring.ErrAlertNotFound):
		httpStatus = http.StatusNotFound
	case errors.Is(err, monitoring.ErrRuleExists):
		httpStatus = http.StatusConflict
	case errors.Is(err, monitoring.ErrInvalidRule):
		httpStatus = http.StatusBadRequest
	}
	renderError(w, r, httpStatus, msg+": "+err.Error())
}
