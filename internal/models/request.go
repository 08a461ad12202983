// internal/models/request.go
package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultPageCount = 5
	MaxPageCount     = 12 // 与 binding 标签中的上限一致
)

// StoryRequest 创建向导中收集的故事参数
type StoryRequest struct {
	ChildName         string   `json:"child_name" binding:"required"`
	ChildAge          int      `json:"child_age" binding:"omitempty,min=1,max=12"`
	Theme             string   `json:"theme" binding:"required"`
	Setting           string   `json:"setting,omitempty"`
	Companions        []string `json:"companions,omitempty"` // 故事中的伙伴
	Moral             string   `json:"moral,omitempty"`
	PageCount         int      `json:"page_count" binding:"omitempty,min=1,max=12"`
	IllustrationStyle string   `json:"illustration_style,omitempty"`
	Language          string   `json:"language,omitempty"`
}

// Normalize 去除多余空白并填充默认值
func (r *StoryRequest) Normalize() {
	r.ChildName = strings.TrimSpace(r.ChildName)
	r.Theme = strings.TrimSpace(r.Theme)
	r.Setting = strings.TrimSpace(r.Setting)
	r.Moral = strings.TrimSpace(r.Moral)
	r.IllustrationStyle = strings.TrimSpace(r.IllustrationStyle)

	companions := make([]string, 0, len(r.Companions))
	for _, c := range r.Companions {
		if c = strings.TrimSpace(c); c != "" {
			companions = append(companions, c)
		}
	}
	r.Companions = companions

	if r.PageCount == 0 {
		r.PageCount = DefaultPageCount
	}
	if r.IllustrationStyle == "" {
		r.IllustrationStyle = "watercolor"
	}
	if r.Language == "" {
		r.Language = "en"
	}
}

// requestValidator 与 gin 绑定使用同一套 binding 标签，字段名取 json 标签
var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate 按 binding 标签检查请求参数，返回第一个不合法的字段说明。
// 应在 Normalize 之后调用，此时页数已有默认值。
func (r *StoryRequest) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		return errors.New(ValidationMessage(err))
	}
	if r.PageCount == 0 {
		return fmt.Errorf("page_count must be between 1 and %d", MaxPageCount)
	}
	return nil
}

// ValidationMessage 将校验错误转换为面向调用方的字段说明
func ValidationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}
