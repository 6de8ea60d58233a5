// Package respond 统一 JSON 响应信封与错误映射。
//
// 成功: {result: true, status: "success", message, data?}
// 失败: {result: false, status: "error", message, errors?}
// 校验失败固定 422 加字段级错误；未识别的错误折叠成 500 与
// 固定文案，原始错误只进日志。
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"taskmanager/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// DefaultErrorMessage 是 500 响应的固定文案。
const DefaultErrorMessage = "An unexpected error occurred. Please try again later."

func init() {
	// 让校验错误按 json 标签报字段名，而不是 Go 字段名
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// Success 返回不带数据的成功响应。
func Success(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{
		"result":  true,
		"status":  "success",
		"message": message,
	})
}

// SuccessWithData 返回带数据的成功响应。
func SuccessWithData(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, gin.H{
		"result":  true,
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

// Error 返回错误响应。
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"result":  false,
		"status":  "error",
		"message": message,
	})
}

// ValidationFailed 返回 422 和字段级错误。
func ValidationFailed(c *gin.Context, fieldErrors map[string][]string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"result":  false,
		"status":  "error",
		"message": "Validation failed",
		"errors":  fieldErrors,
	})
}

// BindingError 把绑定/校验失败转换成统一的 422 响应。
func BindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := map[string][]string{}
		for _, fe := range verrs {
			field := fe.Field()
			fields[field] = append(fields[field], fieldMessage(fe))
		}
		ValidationFailed(c, fields)
		return
	}

	var serr *json.SyntaxError
	var terr *json.UnmarshalTypeError
	if errors.As(err, &serr) || errors.As(err, &terr) {
		ValidationFailed(c, map[string][]string{"body": {"The request body is malformed."}})
		return
	}

	ValidationFailed(c, map[string][]string{"body": {err.Error()}})
}

// HandleError 把服务层错误映射为响应。
//
// apperr.Error 按其状态码返回；其余一律 500 加固定文案，
// 原始错误记入日志。
func HandleError(c *gin.Context, logger *slog.Logger, where string, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		Error(c, appErr.Status, appErr.Message)
		return
	}

	if logger != nil {
		logger.Error("unhandled error",
			slog.String("where", where),
			slog.String("error", err.Error()),
		)
	}
	Error(c, http.StatusInternalServerError, DefaultErrorMessage)
}

// fieldMessage 按校验标签生成面向用户的字段错误文案。
func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s field must be at least %s characters.", field, fe.Param())
		}
		return fmt.Sprintf("The %s field must be at least %s.", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s field must not be greater than %s characters.", field, fe.Param())
		}
		return fmt.Sprintf("The %s field must not be greater than %s.", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("The %s field must be one of: %s.", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "len":
		return fmt.Sprintf("The %s field must be %s characters.", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("The %s field must be a valid date.", field)
	default:
		return fmt.Sprintf("The %s field is invalid.", field)
	}
}
