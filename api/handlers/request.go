package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/types"
)

// maxBodySize 请求体上限 1 MB
const maxBodySize = 1 << 20

// DecodeJSONBody 严格解码单个 JSON 对象：拒绝未知字段、尾随数据与超限请求体。
// 失败时已写出错误响应，调用方直接返回即可。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if err := decodeStrict(w, r, dst); err != nil {
		WriteError(w, err, logger)
		return err
	}
	return nil
}

func decodeStrict(w http.ResponseWriter, r *http.Request, dst any) *types.Error {
	if r.Body == nil || r.Body == http.NoBody {
		return types.NewError(types.ErrInvalidRequest, "request body is empty")
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return types.NewError(types.ErrInvalidRequest, "request body too large").
				WithCause(err).WithHTTPStatus(http.StatusRequestEntityTooLarge)
		case errors.Is(err, io.EOF):
			return types.NewError(types.ErrInvalidRequest, "request body is empty")
		default:
			return types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
		}
	}
	if dec.More() {
		return types.NewError(types.ErrInvalidRequest, "request body must contain a single JSON object")
	}
	return nil
}

// ValidateContentType 要求 application/json，不符合时写出 415
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && mt == "application/json" {
		return true
	}
	WriteErrorMessage(w, http.StatusUnsupportedMediaType, types.ErrInvalidRequest,
		"Content-Type must be application/json", logger)
	return false
}
