package ai

import (
	"strings"
	"sync"
)

// ModelCapabilities 模型能力描述
type ModelCapabilities struct {
	// SupportsSamplingParams 是否接受 temperature / max_tokens
	// 推理系模型（o1/o3/gpt-5 等）会拒绝这两个参数
	SupportsSamplingParams bool
}

// reasoningMarkers 推理系模型的代际标记
var reasoningMarkers = []string{"o1", "o3", "gpt-4.1", "gpt-5"}

// Registry 模型能力注册表
// 每个模型名只解析一次能力标记，之后查表，不在调用路径上反复做字符串匹配
type Registry struct {
	mu      sync.RWMutex
	entries map[string]ModelCapabilities
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]ModelCapabilities)}
}

// Resolve 返回模型能力，首次出现的模型名解析后缓存
func (r *Registry) Resolve(model string) ModelCapabilities {
	r.mu.RLock()
	caps, ok := r.entries[model]
	r.mu.RUnlock()
	if ok {
		return caps
	}

	caps = detectCapabilities(model)

	r.mu.Lock()
	r.entries[model] = caps
	r.mu.Unlock()
	return caps
}

func detectCapabilities(model string) ModelCapabilities {
	name := strings.ToLower(model)
	for _, marker := range reasoningMarkers {
		if strings.Contains(name, marker) {
			return ModelCapabilities{SupportsSamplingParams: false}
		}
	}
	return ModelCapabilities{SupportsSamplingParams: true}
}
