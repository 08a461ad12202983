// internal/llm/providers/providers.go
package providers

import (
	"github.com/narratica/narratica/internal/llm"
	"github.com/narratica/narratica/internal/llm/providers/mock"
	"github.com/narratica/narratica/internal/llm/providers/openrouter"
)

// RegisterDefaults 注册内置的提供者
func RegisterDefaults(reg *llm.Registry) *llm.Registry {
	reg.Register(openrouter.Name, openrouter.New)
	reg.Register(mock.Name, mock.New)
	return reg
}

// NewDefaultRegistry 创建包含内置提供者的注册表
func NewDefaultRegistry() *llm.Registry {
	return RegisterDefaults(llm.NewRegistry())
}
