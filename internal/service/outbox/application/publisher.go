// internal/service/outbox/application/publisher.go
package application

import "context"

// Publisher 是按事件类型的发布能力接口。新增事件类型只需注册一个
// 新的 Publisher，worker 本身不用改。发布失败直接向上抛给 worker。
type Publisher interface {
	Supports(eventType string) bool
	Publish(ctx context.Context, payload []byte) error
}

// Registry 是启动时显式构建的 publisher 列表，按引用传给 worker，
// 没有任何包级注册表。
type Registry struct {
	publishers []Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	return &Registry{publishers: publishers}
}

// Lookup 返回第一个声明支持该事件类型的 publisher。
func (r *Registry) Lookup(eventType string) (Publisher, bool) {
	for _, p := range r.publishers {
		if p.Supports(eventType) {
			return p, true
		}
	}
	return nil, false
}
