package handlers

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// 空白だけの文字列を拒否する
var notBlankValidator validator.Func = func(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

var registerOnce sync.Once

// RegisterValidators はカスタムバリデーションをginのバリデーターに登録します。
// binding:"notblank" を持つ構造体をバインドする前に呼ぶ必要があります。
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("notblank", notBlankValidator)
		}
	})
}
