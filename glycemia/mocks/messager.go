package mocks

import (
	"ichor/glycemia/defs"
	"sync"
)

type Messager struct {
	Channels map[string][]defs.MessageData
	Main     *defs.MessageData

	mu sync.Mutex
}

func NewMessager() *Messager {
	return &Messager{Channels: make(map[string][]defs.MessageData)}
}

func (m *Messager) SendMessage(data defs.MessageData, chName string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Channels[chName] = append(m.Channels[chName], data)
	return uint64(len(m.Channels[chName])), nil
}

func (m *Messager) UpdateMainMessage(data defs.MessageData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Main = &data
	return nil
}
