package persona

import "strings"

// Store 角色查询接口
type Store interface {
	List() []Persona
	FindByName(name string) (Persona, bool)
}

// MemoryStore 基于内存切片的 Store 实现
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore 使用给定角色创建 MemoryStore
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List 返回全部角色
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByName 按名称或 ID 查找角色，忽略大小写与首尾空白
func (s *MemoryStore) FindByName(name string) (Persona, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Persona{}, false
	}
	for _, item := range s.items {
		if strings.EqualFold(item.Name, name) || strings.EqualFold(item.ID, name) {
			return item, true
		}
	}
	return Persona{}, false
}
